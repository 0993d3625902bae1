package room

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/gameerr"
	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/random"
	"github.com/wfunc/battleserver/session"
)

const (
	// CodeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	DefaultCodeLength = 6
	MaxRoomNameLength = 64
	// bcrypt only looks at the first 72 bytes and refuses longer input.
	MaxPasswordBytes = 72
)

type Options struct {
	Random       random.Random
	CodeLength   int
	PasswordCost int

	// Zero disables the idle timer for that phase.
	PlacementTimeout time.Duration
	TurnTimeout      time.Duration
	Scheduler        Scheduler

	Recorder Recorder
	Observer Observer
}

// Manager is the registry of live rooms. Its mutex guards only the room
// collection and the identity index; it is never held while a room runs.
type Manager struct {
	rooms    map[string]*Room
	order    []*Room
	members  map[string]string // session id -> room id
	notifier Notifier
	nextSeq  uint64
	opts     Options
	mutex    sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts Options) *Manager {
	if opts.Random == nil {
		opts.Random = random.New()
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	if opts.PasswordCost == 0 {
		opts.PasswordCost = bcrypt.DefaultCost
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Manager{
		rooms:    make(map[string]*Room),
		members:  make(map[string]string),
		notifier: nopNotifier{},
		opts:     opts,
	}
}

// SetNotifier wires the directory publisher. Call before serving traffic.
func (m *Manager) SetNotifier(n Notifier) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.notifier = n
}

// CreateRoom opens a room with owner as its only player. The roomCreated
// acknowledgement is queued before the room becomes visible, so it reaches the
// owner ahead of any playerJoined.
func (m *Manager) CreateRoom(owner *session.Session, name string, private bool, password string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, gameerr.ErrInvalidRoomName.WithDetail("room name is empty")
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return nil, gameerr.ErrInvalidRoomName.WithDetail("room name longer than %d characters", MaxRoomNameLength)
	}
	if private && password == "" {
		return nil, gameerr.ErrPasswordRequired
	}
	if private && len(password) > MaxPasswordBytes {
		return nil, gameerr.ErrInvalidPassword.WithDetail("password longer than %d bytes", MaxPasswordBytes)
	}
	if m.memberOf(owner.ID) {
		return nil, gameerr.ErrAlreadyInRoom
	}

	var hash []byte
	if private {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), m.opts.PasswordCost)
		if err != nil {
			return nil, err
		}
	}

	m.mutex.Lock()
	if _, exists := m.members[owner.ID]; exists {
		m.mutex.Unlock()
		return nil, gameerr.ErrAlreadyInRoom
	}
	id := m.newCode()
	m.nextSeq++
	room := newRoom(id, name, private, hash, m.nextSeq, owner, &m.opts)
	if err := owner.SendJSON(network.MsgTypeRoomCreated, network.RoomAck{RoomID: id, Room: room.Summary().Info()}); err != nil {
		logger.Log.Debugw("dropped roomCreated", "session", owner.ID, "error", err)
	}
	m.rooms[id] = room
	m.order = append(m.order, room)
	m.members[owner.ID] = id
	count := len(m.rooms)
	notifier := m.notifier
	m.mutex.Unlock()

	logger.Log.Infow("room created", "room", id, "name", name, "private", private, "owner", owner.ID)
	m.opts.Observer.SetActiveRooms(count)
	if !private {
		notifier.RoomsChanged()
	}
	return room, nil
}

// newCode draws room codes until one is free. Caller holds the lock.
func (m *Manager) newCode() string {
	for {
		id := m.opts.Random.String(m.opts.CodeLength, CodeAlphabet)
		if _, exists := m.rooms[id]; !exists {
			return id
		}
	}
}

// JoinRoom adds s as the second player of roomID, which starts placement.
func (m *Manager) JoinRoom(s *session.Session, roomID, password string) (*Room, error) {
	roomID = strings.ToUpper(strings.TrimSpace(roomID))

	m.mutex.Lock()
	if _, exists := m.members[s.ID]; exists {
		m.mutex.Unlock()
		return nil, gameerr.ErrAlreadyInRoom
	}
	room, exists := m.rooms[roomID]
	if !exists {
		m.mutex.Unlock()
		return nil, gameerr.ErrRoomNotFound
	}
	// reserve the identity so a concurrent create or join fails fast
	m.members[s.ID] = roomID
	notifier := m.notifier
	m.mutex.Unlock()

	err := m.admit(room, s, password)
	if err != nil {
		m.mutex.Lock()
		delete(m.members, s.ID)
		m.mutex.Unlock()
		return nil, err
	}

	logger.Log.Infow("room joined", "room", roomID, "session", s.ID)
	if !room.Private {
		notifier.RoomsChanged()
	}
	return room, nil
}

func (m *Manager) admit(room *Room, s *session.Session, password string) error {
	if room.Summary().Full() {
		return gameerr.ErrRoomFull
	}
	if room.Private {
		// bcrypt compares the full hash; it never stops at the first differing byte
		if bcrypt.CompareHashAndPassword(room.passwordHash, []byte(password)) != nil {
			return gameerr.ErrBadPassword
		}
	}

	var err error
	if xerr := room.exec(func() { err = room.join(s) }); xerr != nil {
		return xerr
	}
	return err
}

// LeaveRoom removes s from its room, forfeiting an unfinished match, and
// deletes the room once it is empty. It reports whether s was in a room.
func (m *Manager) LeaveRoom(s *session.Session) bool {
	m.mutex.RLock()
	roomID, exists := m.members[s.ID]
	room := m.rooms[roomID]
	m.mutex.RUnlock()
	if !exists || room == nil {
		return false
	}

	var empty bool
	if err := room.exec(func() { empty = room.leave(s) }); err != nil {
		empty = true
	}

	m.mutex.Lock()
	delete(m.members, s.ID)
	if empty {
		m.removeLocked(room)
	}
	count := len(m.rooms)
	notifier := m.notifier
	m.mutex.Unlock()

	if empty {
		room.Close()
		logger.Log.Infow("room closed", "room", roomID)
	}
	logger.Log.Infow("room left", "room", roomID, "session", s.ID)
	m.opts.Observer.SetActiveRooms(count)
	if !room.Private {
		notifier.RoomsChanged()
	}
	return true
}

func (m *Manager) removeLocked(room *Room) {
	if m.rooms[room.ID] != room {
		return
	}
	delete(m.rooms, room.ID)
	for i, r := range m.order {
		if r == room {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SubmitFleet routes a placement to the sender's room.
func (m *Manager) SubmitFleet(s *session.Session, fleet board.Fleet) error {
	room, err := m.RoomOf(s.ID)
	if err != nil {
		return err
	}
	return room.SubmitFleet(s, fleet)
}

// SubmitShot routes a shot to the sender's room.
func (m *Manager) SubmitShot(s *session.Session, c board.Coord) error {
	room, err := m.RoomOf(s.ID)
	if err != nil {
		return err
	}
	return room.SubmitShot(s, c)
}

// RoomOf returns the room the identity belongs to.
func (m *Manager) RoomOf(sessionID string) (*Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	roomID, exists := m.members[sessionID]
	if !exists {
		return nil, gameerr.ErrNotAMember
	}
	room, exists := m.rooms[roomID]
	if !exists {
		return nil, gameerr.ErrNotAMember
	}
	return room, nil
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// ListPublicJoinable returns public rooms waiting for a second player,
// oldest first.
func (m *Manager) ListPublicJoinable() []*Summary {
	var out []*Summary
	for _, s := range m.Rooms() {
		if s.Joinable() {
			out = append(out, s)
		}
	}
	return out
}

// Rooms returns a snapshot of every live room in creation order.
func (m *Manager) Rooms() []*Summary {
	m.mutex.RLock()
	out := make([]*Summary, 0, len(m.order))
	for _, r := range m.order {
		out = append(out, r.Summary())
	}
	m.mutex.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Close stops every room loop.
func (m *Manager) Close() {
	m.mutex.Lock()
	rooms := m.order
	m.rooms = make(map[string]*Room)
	m.order = nil
	m.members = make(map[string]string)
	m.mutex.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

func (m *Manager) memberOf(sessionID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, exists := m.members[sessionID]
	return exists
}
