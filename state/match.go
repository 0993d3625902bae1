// Package state implements the per-room match state machine:
// placement -> battle -> gameOver.
package state

import (
	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/gameerr"
	"github.com/wfunc/battleserver/random"
)

// Slot is one player's side of a match.
type Slot struct {
	Fleet    board.Fleet
	Received board.ShotSet
	Ready    bool
	Fired    int
}

// Match is the authoritative game data for one room. It is not safe for
// concurrent use; the room's loop is its only caller.
type Match struct {
	slots   [2]Slot
	turn    int
	winner  int
	reason  EndReason
	machine StateMachine
	coin    random.Random
	pending []Event
}

// NewMatch starts a match in placement. coin decides who fires first.
func NewMatch(coin random.Random) *Match {
	m := &Match{
		turn:   NoSlot,
		winner: NoSlot,
		coin:   coin,
	}
	for i := range m.slots {
		m.slots[i].Received = board.ShotSet{}
	}

	m.machine = NewBaseStateMachine(&placementState{matchStateBase{id: PhasePlacement, match: m}})
	m.machine.AddTransition(PhasePlacement, PhaseBattle, m.bothReady)
	m.machine.AddTransition(PhasePlacement, PhaseGameOver, nil)
	m.machine.AddTransition(PhaseBattle, PhaseGameOver, nil)
	return m
}

// Phase returns the current phase.
func (m *Match) Phase() Phase {
	return m.machine.GetCurrentState().GetID()
}

// TurnOwner returns the slot allowed to fire, or NoSlot outside battle.
func (m *Match) TurnOwner() int {
	return m.turn
}

// Result returns the winner (NoSlot when none) and reason once the match is over.
func (m *Match) Result() (int, EndReason) {
	return m.winner, m.reason
}

// Ready reports whether slot has an accepted fleet.
func (m *Match) Ready(slot int) bool {
	return validSlot(slot) && m.slots[slot].Ready
}

// ShotsReceived returns how many shots slot's fleet has taken.
func (m *Match) ShotsReceived(slot int) int {
	if !validSlot(slot) {
		return 0
	}
	return len(m.slots[slot].Received)
}

// ShotsFired returns the number of shots slot has fired.
func (m *Match) ShotsFired(slot int) int {
	if !validSlot(slot) {
		return 0
	}
	return m.slots[slot].Fired
}

// HitsLanded returns how many of the opponent's ship cells slot has hit.
func (m *Match) HitsLanded(slot int) int {
	if !validSlot(slot) {
		return 0
	}
	hits := 0
	for _, ship := range m.slots[1-slot].Fleet {
		hits += len(ship.Hits())
	}
	return hits
}

// SubmitFleet places slot's fleet.
func (m *Match) SubmitFleet(slot int, fleet board.Fleet) ([]Event, error) {
	if !validSlot(slot) {
		return nil, gameerr.ErrNotAMember
	}
	err := m.machine.GetCurrentState().SubmitFleet(slot, fleet)
	return m.flush(), err
}

// SubmitShot fires at the opponent of slot.
func (m *Match) SubmitShot(slot int, c board.Coord) ([]Event, error) {
	if !validSlot(slot) {
		return nil, gameerr.ErrNotAMember
	}
	err := m.machine.GetCurrentState().SubmitShot(slot, c)
	return m.flush(), err
}

// Forfeit ends an unfinished match in favour of slot's opponent. Calling it
// once the match is over does nothing.
func (m *Match) Forfeit(slot int) ([]Event, error) {
	if !validSlot(slot) {
		return nil, gameerr.ErrNotAMember
	}
	if m.Phase() == PhaseGameOver {
		return nil, nil
	}
	err := m.finish(1-slot, ReasonOpponentLeft)
	return m.flush(), err
}

// Expire ends a stalled match. In placement the unready side loses, or nobody
// wins if neither side placed; in battle the turn owner loses.
func (m *Match) Expire() ([]Event, error) {
	var err error
	switch m.Phase() {
	case PhasePlacement:
		switch {
		case !m.slots[0].Ready && !m.slots[1].Ready:
			err = m.finish(NoSlot, ReasonIdleTimeout)
		case !m.slots[0].Ready:
			err = m.finish(1, ReasonIdleTimeout)
		default:
			err = m.finish(0, ReasonIdleTimeout)
		}
	case PhaseBattle:
		err = m.finish(1-m.turn, ReasonIdleTimeout)
	default:
		return nil, nil
	}
	return m.flush(), err
}

func (m *Match) bothReady() bool {
	return m.slots[0].Ready && m.slots[1].Ready
}

func (m *Match) finish(winner int, reason EndReason) error {
	m.winner = winner
	m.reason = reason
	return m.machine.ChangeState(&gameOverState{matchStateBase{id: PhaseGameOver, match: m}})
}

func (m *Match) emit(e Event) {
	m.pending = append(m.pending, e)
}

func (m *Match) flush() []Event {
	out := m.pending
	m.pending = nil
	return out
}

func validSlot(slot int) bool {
	return slot == 0 || slot == 1
}
