// models/models.go
package models

import (
	"time"
)

// Outcome is a player's result in an archived match.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	// OutcomeNone is recorded for both players when a match ends without a winner.
	OutcomeNone Outcome = "none"
)

// PlayerResult 玩家信息（用于对局记录）
type PlayerResult struct {
	PlayerID   string  `json:"player_id"`
	Name       string  `json:"name"`
	Outcome    Outcome `json:"outcome"`
	ShotsFired int     `json:"shots_fired"`
	Hits       int     `json:"hits"`
	ShotsTaken int     `json:"shots_taken"`
}

// MatchRecord is the archived summary of one finished match.
type MatchRecord struct {
	RoomID     string         `json:"room_id"`
	RoomName   string         `json:"room_name"`
	Reason     string         `json:"reason"`
	WinnerName string         `json:"winner_name"`
	Players    []PlayerResult `json:"players"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

func (r *MatchRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	Name       string `json:"name"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	ShotsFired int    `json:"shots_fired"`
	Hits       int    `json:"hits"`
}

// Add folds one match result into the totals.
func (s *PlayerStats) Add(p PlayerResult) {
	s.TotalGames++
	switch p.Outcome {
	case OutcomeWin:
		s.Wins++
	case OutcomeLoss:
		s.Losses++
	}
	s.ShotsFired += p.ShotsFired
	s.Hits += p.Hits
}
