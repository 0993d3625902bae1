package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/gameerr"
	"github.com/wfunc/battleserver/models"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/random"
	"github.com/wfunc/battleserver/session"
)

type ManagerSuite struct {
	suite.Suite
	rnd       *random.Sequence
	notifier  *countingNotifier
	recorder  *memoryRecorder
	scheduler *manualScheduler
	manager   *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.rnd = &random.Sequence{}
	s.notifier = &countingNotifier{}
	s.recorder = &memoryRecorder{}
	s.scheduler = newManualScheduler()
	s.manager = NewRoomManager(Options{
		Random:       s.rnd,
		PasswordCost: bcrypt.MinCost,
		Recorder:     s.recorder,
		Scheduler:    s.scheduler,
	})
	s.manager.SetNotifier(s.notifier)
}

func (s *ManagerSuite) TearDownTest() {
	s.manager.Close()
}

// pair creates a public room for a and joins b, starting placement.
func (s *ManagerSuite) pair() (*Room, *session.Session, *MockConnection, *session.Session, *MockConnection) {
	a, aConn := newTestSession("a")
	b, bConn := newTestSession("b")
	room, err := s.manager.CreateRoom(a, "harbour", false, "")
	s.Require().NoError(err)
	_, err = s.manager.JoinRoom(b, room.ID, "")
	s.Require().NoError(err)
	return room, a, aConn, b, bConn
}

// battle pairs two players and places both fleets; slot 0 (a) fires first.
func (s *ManagerSuite) battle() (*Room, *session.Session, *MockConnection, *session.Session, *MockConnection) {
	s.rnd.Ints = []int{0}
	room, a, aConn, b, bConn := s.pair()
	s.Require().NoError(s.manager.SubmitFleet(a, testFleet(s.T())))
	s.Require().NoError(s.manager.SubmitFleet(b, testFleet(s.T())))
	s.Require().Equal("battle", room.Summary().Phase)
	return room, a, aConn, b, bConn
}

func (s *ManagerSuite) TestCreateRoom() {
	s.rnd.Strings = []string{"ABC234"}
	owner, conn := newTestSession("owner")

	room, err := s.manager.CreateRoom(owner, "  harbour  ", false, "")
	s.Require().NoError(err)
	s.Equal("ABC234", room.ID)
	s.Equal("harbour", room.Name)

	var ack network.RoomAck
	conn.Last(s.T(), network.MsgTypeRoomCreated, &ack)
	s.Equal("ABC234", ack.RoomID)
	s.Equal([]network.PlayerInfo{{ID: "owner", Name: "name-owner"}}, ack.Room.Players)
	s.Equal(PhaseWaiting, ack.Room.Phase)

	s.Len(s.manager.ListPublicJoinable(), 1)
	s.Equal(1, s.notifier.Count())

	got, err := s.manager.RoomOf("owner")
	s.Require().NoError(err)
	s.Same(room, got)
}

func (s *ManagerSuite) TestCreateRoomValidation() {
	owner, _ := newTestSession("owner")

	_, err := s.manager.CreateRoom(owner, "   ", false, "")
	s.ErrorIs(err, gameerr.ErrInvalidRoomName)

	_, err = s.manager.CreateRoom(owner, "secret", true, "")
	s.ErrorIs(err, gameerr.ErrPasswordRequired)

	_, err = s.manager.CreateRoom(owner, "secret", true, strings.Repeat("x", MaxPasswordBytes+1))
	s.ErrorIs(err, gameerr.ErrInvalidPassword)
	gerr, ok := gameerr.As(err)
	s.Require().True(ok)
	s.Equal(gameerr.ClassValidation, gerr.Class)

	_, err = s.manager.CreateRoom(owner, "first", false, "")
	s.Require().NoError(err)
	_, err = s.manager.CreateRoom(owner, "second", false, "")
	s.ErrorIs(err, gameerr.ErrAlreadyInRoom)

	s.Equal(1, s.manager.Count())
}

func (s *ManagerSuite) TestCreateRoomRegeneratesCollidingCode() {
	s.rnd.Strings = []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	a, _ := newTestSession("a")
	b, _ := newTestSession("b")

	first, err := s.manager.CreateRoom(a, "one", false, "")
	s.Require().NoError(err)
	second, err := s.manager.CreateRoom(b, "two", false, "")
	s.Require().NoError(err)

	s.Equal("AAAAAA", first.ID)
	s.Equal("BBBBBB", second.ID)
}

func (s *ManagerSuite) TestRoomCodesUseUnambiguousAlphabet() {
	m := NewRoomManager(Options{PasswordCost: bcrypt.MinCost})
	defer m.Close()

	for i := 0; i < 50; i++ {
		owner, _ := newTestSession(fmt.Sprintf("owner-%d", i))
		room, err := m.CreateRoom(owner, "r", false, "")
		s.Require().NoError(err)
		s.Len(room.ID, DefaultCodeLength)
		s.NotContains(room.ID, "O")
		s.NotContains(room.ID, "0")
		s.NotContains(room.ID, "I")
		s.NotContains(room.ID, "1")
	}
	s.Equal(50, m.Count())
}

func (s *ManagerSuite) TestPrivateRoomPassword() {
	a, aConn := newTestSession("a")
	b, bConn := newTestSession("b")

	room, err := s.manager.CreateRoom(a, "secret", true, "ahoy")
	s.Require().NoError(err)
	s.NotContains(string(room.passwordHash), "ahoy")
	s.Empty(s.manager.ListPublicJoinable(), "private rooms are never listed")
	s.Equal(0, s.notifier.Count())

	_, err = s.manager.JoinRoom(b, room.ID, "wrong")
	s.ErrorIs(err, gameerr.ErrBadPassword)
	s.Len(room.Summary().Players, 1)
	_, err = s.manager.RoomOf("b")
	s.ErrorIs(err, gameerr.ErrNotAMember, "a failed join leaves no membership behind")

	_, err = s.manager.JoinRoom(b, room.ID, "ahoy")
	s.Require().NoError(err)
	s.Len(room.Summary().Players, 2)

	s.Equal([]uint16{network.MsgTypeRoomCreated, network.MsgTypePlayerJoined, network.MsgTypePlacementStarted}, aConn.IDs())
	s.Equal([]uint16{network.MsgTypeRoomJoined, network.MsgTypePlacementStarted}, bConn.IDs())
}

func (s *ManagerSuite) TestJoinErrors() {
	room, _, _, _, _ := s.pair()
	c, _ := newTestSession("c")

	_, err := s.manager.JoinRoom(c, "ZZZZZZ", "")
	s.ErrorIs(err, gameerr.ErrRoomNotFound)

	_, err = s.manager.JoinRoom(c, room.ID, "")
	s.ErrorIs(err, gameerr.ErrRoomFull)
	s.Len(room.Summary().Players, 2)

	a2, _ := newTestSession("a")
	_, err = s.manager.JoinRoom(a2, room.ID, "")
	s.ErrorIs(err, gameerr.ErrAlreadyInRoom)
}

func (s *ManagerSuite) TestJoinIsCaseInsensitive() {
	s.rnd.Strings = []string{"ABC234"}
	a, _ := newTestSession("a")
	b, _ := newTestSession("b")
	_, err := s.manager.CreateRoom(a, "r", false, "")
	s.Require().NoError(err)

	_, err = s.manager.JoinRoom(b, " abc234 ", "")
	s.NoError(err)
}

func (s *ManagerSuite) TestConcurrentJoinsAdmitOne() {
	owner, _ := newTestSession("owner")
	room, err := s.manager.CreateRoom(owner, "race", false, "")
	s.Require().NoError(err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		full     int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _ := newTestSession(fmt.Sprintf("p%d", i))
			_, err := s.manager.JoinRoom(p, room.ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if gameerr.ErrRoomFull.Is(err) {
				full++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, admitted)
	s.Equal(19, full)
	s.Len(room.Summary().Players, 2)
	s.Equal("placement", room.Summary().Phase)
	s.Empty(s.manager.ListPublicJoinable())
}

func (s *ManagerSuite) TestListPublicJoinableOrder() {
	s.rnd.Strings = []string{"CCCCCC", "AAAAAA", "BBBBBB"}
	for _, id := range []string{"x", "y", "z"} {
		owner, _ := newTestSession(id)
		_, err := s.manager.CreateRoom(owner, "room-"+id, false, "")
		s.Require().NoError(err)
	}

	var ids []string
	for _, r := range s.manager.ListPublicJoinable() {
		ids = append(ids, r.ID)
	}
	s.Equal([]string{"CCCCCC", "AAAAAA", "BBBBBB"}, ids, "oldest first")

	joiner, _ := newTestSession("j")
	_, err := s.manager.JoinRoom(joiner, "AAAAAA", "")
	s.Require().NoError(err)

	ids = nil
	for _, r := range s.manager.ListPublicJoinable() {
		ids = append(ids, r.ID)
	}
	s.Equal([]string{"CCCCCC", "BBBBBB"}, ids)
}

func (s *ManagerSuite) TestActionsOutsideRoom() {
	stranger, _ := newTestSession("stranger")
	s.ErrorIs(s.manager.SubmitFleet(stranger, testFleet(s.T())), gameerr.ErrNotAMember)
	s.ErrorIs(s.manager.SubmitShot(stranger, board.Coord{}), gameerr.ErrNotAMember)
	s.False(s.manager.LeaveRoom(stranger), "leaving without a room is a no-op")
}

func (s *ManagerSuite) TestFleetBeforeOpponentIsWrongPhase() {
	owner, _ := newTestSession("owner")
	_, err := s.manager.CreateRoom(owner, "alone", false, "")
	s.Require().NoError(err)

	s.ErrorIs(s.manager.SubmitFleet(owner, testFleet(s.T())), gameerr.ErrWrongPhase)
}

func (s *ManagerSuite) TestPlacementMessages() {
	s.rnd.Ints = []int{1}
	_, a, aConn, b, bConn := s.pair()
	aConn.Reset()
	bConn.Reset()

	s.Require().NoError(s.manager.SubmitFleet(a, testFleet(s.T())))
	s.Equal([]uint16{network.MsgTypeFleetAccepted}, aConn.IDs())
	s.Empty(bConn.IDs(), "fleet acceptance is private")

	err := s.manager.SubmitFleet(a, testFleet(s.T()))
	s.ErrorIs(err, gameerr.ErrInvalidFleet)

	s.ErrorIs(s.manager.SubmitFleet(b, testFleet(s.T())[:4]), gameerr.ErrInvalidFleet)
	s.Require().NoError(s.manager.SubmitFleet(b, testFleet(s.T())))

	var started network.TurnNotice
	aConn.Last(s.T(), network.MsgTypeBattleStarted, &started)
	s.Equal("b", started.CurrentTurn)
	bConn.Last(s.T(), network.MsgTypeBattleStarted, &started)
	s.Equal("b", started.CurrentTurn)
}

func (s *ManagerSuite) TestShotsAndTurns() {
	_, a, aConn, b, bConn := s.battle()

	s.ErrorIs(s.manager.SubmitShot(b, board.Coord{X: 0, Y: 0}), gameerr.ErrNotYourTurn)
	s.ErrorIs(s.manager.SubmitShot(a, board.Coord{X: 10, Y: 0}), gameerr.ErrInvalidCoordinate)
	s.Require().NoError(s.manager.SubmitShot(a, board.Coord{X: 0, Y: 0}))

	var shot network.ShotResult
	bConn.Last(s.T(), network.MsgTypeShotResult, &shot)
	s.Equal(network.ShotResult{X: 0, Y: 0, Hit: true, Player: "a"}, shot)

	var turn network.TurnNotice
	aConn.Last(s.T(), network.MsgTypeTurnChanged, &turn)
	s.Equal("b", turn.CurrentTurn)

	s.Require().NoError(s.manager.SubmitShot(b, board.Coord{X: 0, Y: 0}))
	s.ErrorIs(s.manager.SubmitShot(a, board.Coord{X: 0, Y: 0}), gameerr.ErrAlreadyShot)
}

func (s *ManagerSuite) TestFullGame() {
	room, a, aConn, b, bConn := s.battle()

	misses := []board.Coord{}
	for y := 5; y < board.Size; y++ {
		for x := 0; x < board.Size; x++ {
			misses = append(misses, board.Coord{X: x, Y: y})
		}
	}

	cells := fleetCells(s.T())
	for i, c := range cells {
		s.Require().NoError(s.manager.SubmitShot(a, c))
		if i < len(cells)-1 {
			s.Require().NoError(s.manager.SubmitShot(b, misses[i]))
		}
	}

	var last network.ShotResult
	aConn.Last(s.T(), network.MsgTypeShotResult, &last)
	s.Equal(network.ShotResult{X: 3, Y: 4, Hit: true, Sunk: true, ShipType: "destroyer", Player: "a"}, last)

	var over network.GameOver
	bConn.Last(s.T(), network.MsgTypeGameOver, &over)
	s.Equal(network.GameOver{Winner: "a", Reason: "allShipsSunk"}, over)

	// both members saw the same battle transcript
	battleMsgs := []uint16{network.MsgTypeBattleStarted, network.MsgTypeShotResult, network.MsgTypeTurnChanged, network.MsgTypeGameOver}
	s.Equal(aConn.Only(battleMsgs...), bConn.Only(battleMsgs...))

	s.ErrorIs(s.manager.SubmitShot(b, board.Coord{X: 9, Y: 9}), gameerr.ErrWrongPhase)
	s.Equal("gameOver", room.Summary().Phase)

	records := s.recorder.Records()
	s.Require().Len(records, 1)
	s.Equal("allShipsSunk", records[0].Reason)
	s.Equal("name-a", records[0].WinnerName)
	s.Equal(models.OutcomeWin, records[0].Players[0].Outcome)
	s.Equal(len(cells), records[0].Players[0].ShotsFired)
	s.Equal(models.OutcomeLoss, records[0].Players[1].Outcome)

	// a finished room takes nobody new, even once someone leaves
	s.True(s.manager.LeaveRoom(b))
	c, _ := newTestSession("c")
	_, err := s.manager.JoinRoom(c, room.ID, "")
	s.ErrorIs(err, gameerr.ErrRoomFull)
	s.Empty(s.manager.ListPublicJoinable())
}

func (s *ManagerSuite) TestLeaveDuringPlacementForfeits() {
	room, a, aConn, b, bConn := s.pair()
	aConn.Reset()
	bConn.Reset()

	s.True(s.manager.LeaveRoom(a))

	s.Equal([]uint16{network.MsgTypeRoomLeft}, aConn.IDs())
	s.Equal([]uint16{network.MsgTypePlayerLeft, network.MsgTypeGameOver}, bConn.IDs())

	var over network.GameOver
	bConn.Last(s.T(), network.MsgTypeGameOver, &over)
	s.Equal(network.GameOver{Winner: "b", Reason: "opponentLeft"}, over)

	s.Len(room.Summary().Players, 1)
	s.Equal(1, s.manager.Count())
	s.Require().Len(s.recorder.Records(), 1)

	s.False(s.manager.LeaveRoom(a), "leave is idempotent")

	s.True(s.manager.LeaveRoom(b))
	s.Equal(0, s.manager.Count())
	_, ok := s.manager.GetRoom(room.ID)
	s.False(ok)
	s.Len(s.recorder.Records(), 1, "no second forfeit after gameOver")
}

func (s *ManagerSuite) TestLeaveWaitingRoomDeletesIt() {
	owner, _ := newTestSession("owner")
	room, err := s.manager.CreateRoom(owner, "brief", false, "")
	s.Require().NoError(err)

	s.True(s.manager.LeaveRoom(owner))
	s.Equal(0, s.manager.Count())
	s.Empty(s.manager.ListPublicJoinable())
	s.Equal(2, s.notifier.Count())

	joiner, _ := newTestSession("late")
	_, err = s.manager.JoinRoom(joiner, room.ID, "")
	s.ErrorIs(err, gameerr.ErrRoomNotFound)

	// the same identity may open a new room afterwards
	_, err = s.manager.CreateRoom(owner, "again", false, "")
	s.NoError(err)
}

func (s *ManagerSuite) TestDirectoryNotifications() {
	room, a, _, b, _ := s.pair()
	s.Equal(2, s.notifier.Count(), "create and fill")

	s.True(s.manager.LeaveRoom(a))
	s.True(s.manager.LeaveRoom(b))
	s.Equal(4, s.notifier.Count())
	s.Nil(s.manager.rooms[room.ID])
}

func (s *ManagerSuite) TestConcurrentShotsStayOrdered() {
	_, a, aConn, b, bConn := s.battle()

	var wg sync.WaitGroup
	for _, p := range []*session.Session{a, b} {
		wg.Add(1)
		go func(p *session.Session) {
			defer wg.Done()
			for y := 0; y < board.Size; y++ {
				for x := 0; x < board.Size; x++ {
					_ = s.manager.SubmitShot(p, board.Coord{X: x, Y: y})
				}
			}
		}(p)
	}
	wg.Wait()

	battleMsgs := []uint16{network.MsgTypeShotResult, network.MsgTypeTurnChanged, network.MsgTypeGameOver}
	transcript := aConn.Only(battleMsgs...)
	s.Equal(transcript, bConn.Only(battleMsgs...))

	// shots alternate strictly between the two players
	var shots []network.ShotResult
	for _, p := range aConn.sent {
		if p.MsgID == network.MsgTypeShotResult {
			var r network.ShotResult
			s.Require().NoError(json.Unmarshal(p.Data, &r))
			shots = append(shots, r)
		}
	}
	s.Require().NotEmpty(shots)
	for i := 1; i < len(shots); i++ {
		s.NotEqual(shots[i-1].Player, shots[i].Player, "shot %d", i)
	}
}

func (s *ManagerSuite) TestIdleTimeoutDisabledByDefault() {
	s.pair()
	s.Empty(s.scheduler.Pending())
}

func (s *ManagerSuite) TestPlacementTimeout() {
	s.manager.opts.PlacementTimeout = 30 * time.Second
	room, a, _, _, bConn := s.pair()
	s.Equal([]time.Duration{30 * time.Second}, s.scheduler.Pending())

	s.Require().NoError(s.manager.SubmitFleet(a, testFleet(s.T())))
	s.scheduler.FireAll()

	var over network.GameOver
	bConn.Last(s.T(), network.MsgTypeGameOver, &over)
	s.Equal(network.GameOver{Winner: "a", Reason: "idleTimeout"}, over)
	s.Equal("gameOver", room.Summary().Phase)
	s.Empty(s.scheduler.Pending())
}

func (s *ManagerSuite) TestTurnTimeoutRearmsEachTurn() {
	s.manager.opts.TurnTimeout = 10 * time.Second
	_, a, aConn, _, _ := s.battle()
	s.Equal([]time.Duration{10 * time.Second}, s.scheduler.Pending())

	s.Require().NoError(s.manager.SubmitShot(a, board.Coord{X: 9, Y: 9}))
	s.Len(s.scheduler.Pending(), 1, "the previous turn timer is cancelled")

	s.scheduler.FireAll()
	var over network.GameOver
	aConn.Last(s.T(), network.MsgTypeGameOver, &over)
	s.Equal(network.GameOver{Winner: "a", Reason: "idleTimeout"}, over)
}

func (s *ManagerSuite) TestStaleTimerIsIgnored() {
	s.manager.opts.TurnTimeout = 10 * time.Second
	room, a, _, _, _ := s.battle()

	var stale func()
	s.scheduler.mu.Lock()
	for _, cb := range s.scheduler.tasks {
		stale = cb
	}
	s.scheduler.mu.Unlock()

	s.Require().NoError(s.manager.SubmitShot(a, board.Coord{X: 9, Y: 9}))
	stale()
	s.Equal("battle", room.Summary().Phase)
}
