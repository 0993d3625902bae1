package state

import "github.com/wfunc/battleserver/board"

// Phase is the coarse lifecycle stage of a match.
type Phase string

const (
	PhasePlacement Phase = "placement"
	PhaseBattle    Phase = "battle"
	PhaseGameOver  Phase = "gameOver"
)

// EndReason explains why a match reached gameOver.
type EndReason string

const (
	ReasonAllShipsSunk EndReason = "allShipsSunk"
	ReasonOpponentLeft EndReason = "opponentLeft"
	ReasonIdleTimeout  EndReason = "idleTimeout"
)

// NoSlot marks an undefined turn owner or winner.
const NoSlot = -1

// EventType identifies what a match transition produced.
type EventType string

const (
	EventFleetAccepted EventType = "fleetAccepted"
	EventBattleStarted EventType = "battleStarted"
	EventShotResolved  EventType = "shotResolved"
	EventTurnChanged   EventType = "turnChanged"
	EventGameOver      EventType = "gameOver"
)

// Event is an observable result of a committed transition. Events are
// returned in the order they happened; only the fields relevant to Type are
// set.
type Event struct {
	Type   EventType
	Slot   int // actor: the slot whose fleet was accepted or who fired
	Turn   int // turn owner after battleStarted / turnChanged
	Coord  board.Coord
	Hit    bool
	Sunk   board.Kind
	Winner int
	Reason EndReason
}

// Private reports whether only the acting slot should see the event.
func (e Event) Private() bool {
	return e.Type == EventFleetAccepted
}
