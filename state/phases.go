package state

import (
	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/gameerr"
)

// placementState accepts one fleet per slot.
type placementState struct {
	matchStateBase
}

func (s *placementState) SubmitFleet(slot int, fleet board.Fleet) error {
	m := s.match
	if m.slots[slot].Ready {
		return gameerr.InvalidFleet("fleet already submitted")
	}

	placed := fleet.Clone()
	board.AssignKinds(placed)
	if err := board.ValidateFleet(placed); err != nil {
		return err
	}

	m.slots[slot].Fleet = placed
	m.slots[slot].Ready = true
	m.emit(Event{Type: EventFleetAccepted, Slot: slot})

	if m.bothReady() {
		return m.machine.ChangeState(&battleState{matchStateBase{id: PhaseBattle, match: m}})
	}
	return nil
}

// battleState alternates shots between the slots.
type battleState struct {
	matchStateBase
}

// OnEnter flips the single fair coin that picks the first shooter.
func (s *battleState) OnEnter() {
	m := s.match
	m.turn = m.coin.Intn(2)
	m.emit(Event{Type: EventBattleStarted, Turn: m.turn})
}

func (s *battleState) SubmitShot(slot int, c board.Coord) error {
	m := s.match
	if slot != m.turn {
		return gameerr.ErrNotYourTurn
	}
	if !c.InBounds() {
		return gameerr.ErrInvalidCoordinate.WithDetail("(%d,%d) is off the grid", c.X, c.Y)
	}

	target := &m.slots[1-slot]
	out, err := board.ResolveShot(target.Fleet, target.Received, c)
	if err != nil {
		return err
	}
	m.slots[slot].Fired++
	m.emit(Event{Type: EventShotResolved, Slot: slot, Coord: c, Hit: out.Hit, Sunk: out.Sunk})

	if out.AllSunk {
		return m.finish(slot, ReasonAllShipsSunk)
	}
	m.turn = 1 - slot
	m.emit(Event{Type: EventTurnChanged, Turn: m.turn})
	return nil
}

// gameOverState is terminal.
type gameOverState struct {
	matchStateBase
}

func (s *gameOverState) OnEnter() {
	m := s.match
	m.turn = NoSlot
	m.emit(Event{Type: EventGameOver, Winner: m.winner, Reason: m.reason})
}
