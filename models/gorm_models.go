// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatch 对局记录模型
type GormMatch struct {
	gorm.Model
	RoomID     string            `gorm:"index;not null"`
	RoomName   string            `gorm:"not null"`
	Reason     string            `gorm:"not null"`
	WinnerName string            `gorm:"index"`
	StartedAt  time.Time         `gorm:"not null"`
	FinishedAt time.Time         `gorm:"index;not null"`
	Players    []GormMatchPlayer `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
}

func (GormMatch) TableName() string { return "matches" }

// GormMatchPlayer is one side of an archived match.
type GormMatchPlayer struct {
	gorm.Model
	MatchID    uint   `gorm:"index;not null"`
	PlayerID   string `gorm:"not null"`
	Name       string `gorm:"index;not null"`
	Outcome    string `gorm:"not null"`
	ShotsFired int    `gorm:"default:0"`
	Hits       int    `gorm:"default:0"`
	ShotsTaken int    `gorm:"default:0"`
}

func (GormMatchPlayer) TableName() string { return "match_players" }

func NewGormMatch(r *MatchRecord) *GormMatch {
	m := &GormMatch{
		RoomID:     r.RoomID,
		RoomName:   r.RoomName,
		Reason:     r.Reason,
		WinnerName: r.WinnerName,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, p := range r.Players {
		m.Players = append(m.Players, GormMatchPlayer{
			PlayerID:   p.PlayerID,
			Name:       p.Name,
			Outcome:    string(p.Outcome),
			ShotsFired: p.ShotsFired,
			Hits:       p.Hits,
			ShotsTaken: p.ShotsTaken,
		})
	}
	return m
}

func (m *GormMatch) Record() MatchRecord {
	r := MatchRecord{
		RoomID:     m.RoomID,
		RoomName:   m.RoomName,
		Reason:     m.Reason,
		WinnerName: m.WinnerName,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	for _, p := range m.Players {
		r.Players = append(r.Players, PlayerResult{
			PlayerID:   p.PlayerID,
			Name:       p.Name,
			Outcome:    Outcome(p.Outcome),
			ShotsFired: p.ShotsFired,
			Hits:       p.Hits,
			ShotsTaken: p.ShotsTaken,
		})
	}
	return r
}
