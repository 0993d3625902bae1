// room/room.go
package room

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/gameerr"
	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/models"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/session"
	"github.com/wfunc/battleserver/state"
)

type command struct {
	fn   func()
	done chan struct{}
}

// Room pairs at most two sessions for one match. Membership and the match are
// owned by the room's loop goroutine; every mutation runs there through exec,
// and every message a mutation produces is queued to the members from there,
// so both members observe the same order.
type Room struct {
	ID           string
	Name         string
	Private      bool
	CreatedAt    time.Time
	passwordHash []byte
	seq          uint64
	opts         *Options

	// owned by loop
	players   []*session.Session
	slots     [2]*session.Session
	match     *state.Match
	startedAt time.Time
	closed    bool
	timerID   int64
	timerGen  uint64

	summary   atomic.Pointer[Summary]
	inbox     chan command
	closeChan chan struct{}
	closeOnce sync.Once
}

func newRoom(id, name string, private bool, passwordHash []byte, seq uint64, owner *session.Session, opts *Options) *Room {
	r := &Room{
		ID:           id,
		Name:         name,
		Private:      private,
		CreatedAt:    time.Now(),
		passwordHash: passwordHash,
		seq:          seq,
		opts:         opts,
		players:      []*session.Session{owner},
		inbox:        make(chan command),
		closeChan:    make(chan struct{}),
	}
	r.publish()
	go r.loop()
	return r
}

// Summary returns the latest snapshot of the room.
func (r *Room) Summary() *Summary {
	return r.summary.Load()
}

// SubmitFleet places sender's fleet.
func (r *Room) SubmitFleet(sender *session.Session, fleet board.Fleet) error {
	var err error
	if xerr := r.exec(func() { err = r.submitFleet(sender, fleet) }); xerr != nil {
		return gameerr.ErrNotAMember
	}
	return err
}

// SubmitShot fires sender's shot at the opponent.
func (r *Room) SubmitShot(sender *session.Session, c board.Coord) error {
	var err error
	if xerr := r.exec(func() { err = r.submitShot(sender, c) }); xerr != nil {
		return gameerr.ErrNotAMember
	}
	return err
}

// Close stops the loop. Pending and later exec calls fail with RoomNotFound.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
	})
}

// exec runs fn on the loop goroutine and waits for it to finish.
func (r *Room) exec(fn func()) error {
	done := make(chan struct{})
	select {
	case r.inbox <- command{fn: fn, done: done}:
	case <-r.closeChan:
		return gameerr.ErrRoomNotFound
	}
	<-done
	return nil
}

// loop 是房间的主循环，串行执行所有修改
func (r *Room) loop() {
	for {
		select {
		case cmd := <-r.inbox:
			cmd.fn()
			close(cmd.done)
		case <-r.closeChan:
			r.disarm()
			return
		}
	}
}

// --- everything below runs on the loop goroutine ---

func (r *Room) join(s *session.Session) error {
	if r.closed {
		return gameerr.ErrRoomNotFound
	}
	if r.match != nil || len(r.players) >= 2 {
		return gameerr.ErrRoomFull
	}

	r.players = append(r.players, s)
	r.publish()

	r.send(s, network.MsgTypeRoomJoined, network.RoomAck{RoomID: r.ID, Room: r.Summary().Info()})
	r.broadcastExcept(s, network.MsgTypePlayerJoined, network.PlayerNotice{Player: s.Info()})

	if len(r.players) == 2 {
		r.startMatch()
	}
	return nil
}

func (r *Room) startMatch() {
	r.slots = [2]*session.Session{r.players[0], r.players[1]}
	r.match = state.NewMatch(r.opts.Random)
	r.startedAt = time.Now()
	r.publish()

	logger.Log.Infow("placement started", "room", r.ID,
		"player0", r.slots[0].ID, "player1", r.slots[1].ID)
	r.broadcast(network.MsgTypePlacementStarted, network.PlacementStarted{Room: r.Summary().Info()})
	r.arm(r.opts.PlacementTimeout)
}

// leave removes s and reports whether the room is now empty.
func (r *Room) leave(s *session.Session) (empty bool) {
	idx := r.indexOf(s)
	if idx < 0 {
		return len(r.players) == 0
	}

	var events []state.Event
	if r.match != nil && r.match.Phase() != state.PhaseGameOver {
		if slot := r.slotOf(s); slot != state.NoSlot {
			events, _ = r.match.Forfeit(slot)
		}
	}

	r.players = append(r.players[:idx], r.players[idx+1:]...)
	if len(r.players) == 0 {
		r.closed = true
		r.disarm()
	}
	r.publish()

	r.send(s, network.MsgTypeRoomLeft, network.RoomLeft{RoomID: r.ID})
	r.broadcast(network.MsgTypePlayerLeft, network.PlayerNotice{Player: s.Info()})
	r.deliver(events)

	return r.closed
}

func (r *Room) submitFleet(s *session.Session, fleet board.Fleet) error {
	if r.indexOf(s) < 0 {
		return gameerr.ErrNotAMember
	}
	if r.match == nil {
		return gameerr.ErrWrongPhase
	}
	events, err := r.match.SubmitFleet(r.slotOf(s), fleet)
	r.deliver(events)
	return err
}

func (r *Room) submitShot(s *session.Session, c board.Coord) error {
	if r.indexOf(s) < 0 {
		return gameerr.ErrNotAMember
	}
	if r.match == nil {
		return gameerr.ErrWrongPhase
	}
	events, err := r.match.SubmitShot(r.slotOf(s), c)
	r.deliver(events)
	return err
}

func (r *Room) expire(gen uint64) {
	if gen != r.timerGen || r.match == nil {
		return
	}
	r.timerID = 0
	events, _ := r.match.Expire()
	if len(events) > 0 {
		logger.Log.Infow("match expired", "room", r.ID)
	}
	r.deliver(events)
}

// deliver turns match events into messages, in order.
func (r *Room) deliver(events []state.Event) {
	for _, e := range events {
		switch e.Type {
		case state.EventFleetAccepted:
			r.send(r.slots[e.Slot], network.MsgTypeFleetAccepted, network.FleetAccepted{})
		case state.EventBattleStarted:
			r.publish()
			r.broadcast(network.MsgTypeBattleStarted, network.TurnNotice{CurrentTurn: r.slots[e.Turn].ID})
			r.arm(r.opts.TurnTimeout)
		case state.EventShotResolved:
			r.broadcast(network.MsgTypeShotResult, network.ShotResult{
				X:        e.Coord.X,
				Y:        e.Coord.Y,
				Hit:      e.Hit,
				Sunk:     e.Sunk != "",
				ShipType: string(e.Sunk),
				Player:   r.slots[e.Slot].ID,
			})
		case state.EventTurnChanged:
			r.broadcast(network.MsgTypeTurnChanged, network.TurnNotice{CurrentTurn: r.slots[e.Turn].ID})
			r.arm(r.opts.TurnTimeout)
		case state.EventGameOver:
			r.disarm()
			r.publish()
			r.broadcast(network.MsgTypeGameOver, network.GameOver{
				Winner: r.slotID(e.Winner),
				Reason: string(e.Reason),
			})
			r.finished(e)
		}
	}
}

func (r *Room) finished(e state.Event) {
	logger.Log.Infow("match finished", "room", r.ID, "winner", r.slotID(e.Winner), "reason", e.Reason)
	r.opts.Observer.IncMatchesFinished(string(e.Reason))

	record := &models.MatchRecord{
		RoomID:     r.ID,
		RoomName:   r.Name,
		Reason:     string(e.Reason),
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}
	for slot, s := range r.slots {
		outcome := models.OutcomeNone
		switch {
		case e.Winner == slot:
			outcome = models.OutcomeWin
			record.WinnerName = s.Name()
		case e.Winner != state.NoSlot:
			outcome = models.OutcomeLoss
		}
		record.Players = append(record.Players, models.PlayerResult{
			PlayerID:   s.ID,
			Name:       s.Name(),
			Outcome:    outcome,
			ShotsFired: r.match.ShotsFired(slot),
			Hits:       r.match.HitsLanded(slot),
			ShotsTaken: r.match.ShotsReceived(slot),
		})
	}
	r.opts.Recorder.RecordMatch(record)
}

// arm replaces the idle timer. A zero duration just cancels it.
func (r *Room) arm(d time.Duration) {
	r.disarm()
	if d <= 0 || r.opts.Scheduler == nil {
		return
	}
	gen := r.timerGen
	r.timerID = r.opts.Scheduler.AddTimer(d, 0, func() {
		_ = r.exec(func() { r.expire(gen) })
	})
}

func (r *Room) disarm() {
	r.timerGen++
	if r.timerID != 0 && r.opts.Scheduler != nil {
		r.opts.Scheduler.RemoveTimer(r.timerID)
	}
	r.timerID = 0
}

func (r *Room) publish() {
	phase := PhaseWaiting
	if r.match != nil {
		phase = string(r.match.Phase())
	}
	players := make([]network.PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p.Info())
	}
	r.summary.Store(&Summary{
		ID:        r.ID,
		Name:      r.Name,
		Private:   r.Private,
		Phase:     phase,
		Players:   players,
		CreatedAt: r.CreatedAt,
		seq:       r.seq,
	})
}

func (r *Room) send(s *session.Session, msgID uint16, v interface{}) {
	if s == nil {
		return
	}
	if err := s.SendJSON(msgID, v); err != nil {
		logger.Log.Debugw("dropped room message", "room", r.ID, "session", s.ID, "msg", msgID, "error", err)
	}
}

func (r *Room) broadcast(msgID uint16, v interface{}) {
	for _, p := range r.players {
		r.send(p, msgID, v)
	}
}

func (r *Room) broadcastExcept(skip *session.Session, msgID uint16, v interface{}) {
	for _, p := range r.players {
		if p != skip {
			r.send(p, msgID, v)
		}
	}
}

func (r *Room) indexOf(s *session.Session) int {
	for i, p := range r.players {
		if p == s {
			return i
		}
	}
	return -1
}

func (r *Room) slotOf(s *session.Session) int {
	for i, p := range r.slots {
		if p == s {
			return i
		}
	}
	return state.NoSlot
}

func (r *Room) slotID(slot int) string {
	if slot < 0 || slot > 1 || r.slots[slot] == nil {
		return ""
	}
	return r.slots[slot].ID
}
