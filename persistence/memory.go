package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/battleserver/models"
)

// Memory keeps the archive in process memory. It is the default when no
// database is configured and backs the tests.
type Memory struct {
	mu      sync.RWMutex
	records []models.MatchRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SaveMatchRecord(_ context.Context, record *models.MatchRecord) error {
	rec := *record
	rec.Players = append([]models.PlayerResult(nil), record.Players...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) RecentMatches(_ context.Context, limit int) ([]models.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]models.MatchRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) PlayerStats(_ context.Context, name string) (*models.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.PlayerStats{Name: name}
	for _, r := range m.records {
		for _, p := range r.Players {
			if p.Name == name {
				stats.Add(p)
			}
		}
	}
	if stats.TotalGames == 0 {
		return nil, ErrRecordNotFound
	}
	return stats, nil
}

func (m *Memory) Close() error {
	return nil
}
