package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/models"
)

// Archive writes finished matches to a Database from a background goroutine
// so room loops never wait on I/O.
type Archive struct {
	db      Database
	queue   chan *models.MatchRecord
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func NewArchive(db Database, buffer int) *Archive {
	if buffer <= 0 {
		buffer = 128
	}
	a := &Archive{
		db:      db,
		queue:   make(chan *models.MatchRecord, buffer),
		timeout: 5 * time.Second,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// RecordMatch queues a record. It never blocks; records are dropped when the
// queue is full or the archive is closed.
func (a *Archive) RecordMatch(record *models.MatchRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- record:
	default:
		logger.Log.Warnw("match archive queue full, dropping record", "room", record.RoomID)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (a *Archive) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *Archive) run() {
	defer a.wg.Done()
	for record := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.db.SaveMatchRecord(ctx, record); err != nil {
			logger.Log.Errorw("failed to archive match", "room", record.RoomID, "error", err)
		}
		cancel()
	}
}
