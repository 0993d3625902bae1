// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/battleserver/models"
)

// PostgreSQL archives matches with plain SQL over lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS matches (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(16) NOT NULL,
            room_name VARCHAR(255) NOT NULL,
            reason VARCHAR(32) NOT NULL,
            winner_name VARCHAR(255),
            started_at TIMESTAMP NOT NULL,
            finished_at TIMESTAMP NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_players (
            id SERIAL PRIMARY KEY,
            match_id INTEGER NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
            player_id VARCHAR(64) NOT NULL,
            name VARCHAR(255) NOT NULL,
            outcome VARCHAR(8) NOT NULL,
            shots_fired INTEGER NOT NULL DEFAULT 0,
            hits INTEGER NOT NULL DEFAULT 0,
            shots_taken INTEGER NOT NULL DEFAULT 0
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_matches_finished_at ON matches(finished_at);
        CREATE INDEX IF NOT EXISTS idx_match_players_name ON match_players(name);
        CREATE INDEX IF NOT EXISTS idx_match_players_match_id ON match_players(match_id);
    `)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(ctx context.Context, record *models.MatchRecord) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var matchID int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO matches (room_id, room_name, reason, winner_name, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `, record.RoomID, record.RoomName, record.Reason, record.WinnerName,
		record.StartedAt, record.FinishedAt).Scan(&matchID)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for _, pl := range record.Players {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO match_players (match_id, player_id, name, outcome, shots_fired, hits, shots_taken)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, matchID, pl.PlayerID, pl.Name, string(pl.Outcome), pl.ShotsFired, pl.Hits, pl.ShotsTaken)
		if err != nil {
			return fmt.Errorf("insert match player: %w", err)
		}
	}

	return tx.Commit()
}

func (p *PostgreSQL) RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT m.id, m.room_id, m.room_name, m.reason, COALESCE(m.winner_name, ''),
               m.started_at, m.finished_at,
               mp.player_id, mp.name, mp.outcome, mp.shots_fired, mp.hits, mp.shots_taken
        FROM (SELECT * FROM matches ORDER BY finished_at DESC, id DESC LIMIT $1) m
        JOIN match_players mp ON mp.match_id = m.id
        ORDER BY m.finished_at DESC, m.id DESC, mp.id ASC
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out    []models.MatchRecord
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			id  int64
			rec models.MatchRecord
			pl  models.PlayerResult
		)
		var outcome string
		if err := rows.Scan(&id, &rec.RoomID, &rec.RoomName, &rec.Reason, &rec.WinnerName,
			&rec.StartedAt, &rec.FinishedAt,
			&pl.PlayerID, &pl.Name, &outcome, &pl.ShotsFired, &pl.Hits, &pl.ShotsTaken); err != nil {
			return nil, err
		}
		pl.Outcome = models.Outcome(outcome)

		if id != lastID {
			out = append(out, rec)
			lastID = id
		}
		last := &out[len(out)-1]
		last.Players = append(last.Players, pl)
	}
	return out, rows.Err()
}

func (p *PostgreSQL) PlayerStats(ctx context.Context, name string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{Name: name}
	err := p.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN outcome = 'win' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN outcome = 'loss' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(shots_fired), 0),
               COALESCE(SUM(hits), 0)
        FROM match_players
        WHERE name = $1
    `, name).Scan(&stats.TotalGames, &stats.Wins, &stats.Losses, &stats.ShotsFired, &stats.Hits)
	if err != nil {
		return nil, err
	}
	if stats.TotalGames == 0 {
		return nil, ErrRecordNotFound
	}
	return stats, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
