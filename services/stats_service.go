// services/stats_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/wfunc/battleserver/models"
	"github.com/wfunc/battleserver/persistence"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

var ErrEmptyName = errors.New("player name is empty")

// PlayerReport is a player's archived record with derived ratios.
type PlayerReport struct {
	Stats    models.PlayerStats `json:"stats"`
	WinRate  float64            `json:"win_rate"`
	Accuracy float64            `json:"accuracy"`
}

type StatsService struct {
	db persistence.Database
}

func NewStatsService(db persistence.Database) *StatsService {
	return &StatsService{db: db}
}

// PlayerReport 获取玩家统计. A name with no archived matches yields an empty report.
func (s *StatsService) PlayerReport(ctx context.Context, name string) (*PlayerReport, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	stats, err := s.db.PlayerStats(ctx, name)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return &PlayerReport{Stats: models.PlayerStats{Name: name}}, nil
	}
	if err != nil {
		return nil, err
	}

	report := &PlayerReport{Stats: *stats}
	if decided := stats.Wins + stats.Losses; decided > 0 {
		report.WinRate = float64(stats.Wins) / float64(decided)
	}
	if stats.ShotsFired > 0 {
		report.Accuracy = float64(stats.Hits) / float64(stats.ShotsFired)
	}
	return report, nil
}

// RecentMatches clamps limit to [1, MaxRecentLimit].
func (s *StatsService) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return s.db.RecentMatches(ctx, limit)
}
