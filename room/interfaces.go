package room

import (
	"time"

	"github.com/wfunc/battleserver/models"
)

// Notifier is told when the set of publicly joinable rooms may have changed.
// It is defined here to break the import cycle between room and broadcast.
type Notifier interface {
	RoomsChanged()
}

// Recorder receives every finished match. Implementations must not block.
type Recorder interface {
	RecordMatch(record *models.MatchRecord)
}

// Scheduler runs delayed callbacks; timer.TimerManager satisfies it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// Observer receives room level metrics.
type Observer interface {
	SetActiveRooms(count int)
	IncMatchesFinished(reason string)
}

type nopNotifier struct{}

func (nopNotifier) RoomsChanged() {}

type nopRecorder struct{}

func (nopRecorder) RecordMatch(*models.MatchRecord) {}

type nopObserver struct{}

func (nopObserver) SetActiveRooms(int)         {}
func (nopObserver) IncMatchesFinished(string) {}
