package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			event_key TEXT PRIMARY KEY,
			seen_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE TABLE IF NOT EXISTS poke_counts (
			conversation_id TEXT PRIMARY KEY,
			poke_count INTEGER NOT NULL DEFAULT 0,
			last_poke_at TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

func formatSQLiteTime(value time.Time) string {
	return value.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(input string) time.Time {
	text := strings.TrimSpace(input)
	if text == "" {
		return time.Time{}
	}
	parsed, err := time.ParseInLocation(sqliteTimeLayout, text, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
