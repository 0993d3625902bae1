package state

import (
	"errors"

	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/gameerr"
)

// StateMachine drives a match through its phases.
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from Phase, to Phase, condition func() bool)
}

// State is one phase of a match. Actions that a phase does not accept fail
// with gameerr.ErrWrongPhase.
type State interface {
	OnEnter()
	OnExit()
	GetID() Phase
	SubmitFleet(slot int, fleet board.Fleet) error
	SubmitShot(slot int, c board.Coord) error
}

// ErrTransitionNotAllowed is returned when a state transition is not registered
// or its condition does not hold.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only follows registered transitions. It is not safe for
// concurrent use; the owning room serializes access.
type BaseStateMachine struct {
	currentState State
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[Phase]map[Phase]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	conditions, exists := sm.transitions[sm.currentState.GetID()]
	if !exists {
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newState.GetID()]
	if !exists || (condition != nil && !condition()) {
		return ErrTransitionNotAllowed
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	return sm.currentState
}

// AddTransition permits from -> to while condition holds. A nil condition
// always holds.
func (sm *BaseStateMachine) AddTransition(from Phase, to Phase, condition func() bool) {
	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
}

// matchStateBase rejects every action; phases override what they accept.
type matchStateBase struct {
	id    Phase
	match *Match
}

func (s *matchStateBase) GetID() Phase {
	return s.id
}

func (s *matchStateBase) OnEnter() {}

func (s *matchStateBase) OnExit() {}

func (s *matchStateBase) SubmitFleet(slot int, fleet board.Fleet) error {
	return gameerr.ErrWrongPhase.WithDetail("cannot place ships during %s", s.id)
}

func (s *matchStateBase) SubmitShot(slot int, c board.Coord) error {
	return gameerr.ErrWrongPhase.WithDetail("cannot fire during %s", s.id)
}
