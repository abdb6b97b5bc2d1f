package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const dedupRetention = 7 * 24 * time.Hour

// HasProcessed reports whether an event key has already been handled.
func (s *Store) HasProcessed(ctx context.Context, eventKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT 1 FROM processed_events WHERE event_key = ?`,
		eventKey,
	).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("query processed event: %w", err)
}

// MarkProcessed records an event key and opportunistically prunes entries
// older than the retention window. Duplicate marks are a no-op.
func (s *Store) MarkProcessed(ctx context.Context, eventKey string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO processed_events (event_key, seen_at) VALUES (?, ?)`,
		eventKey,
		formatSQLiteTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return s.PruneProcessed(ctx, time.Now().UTC().Add(-dedupRetention))
}

// PruneProcessed drops dedup entries seen before the cutoff.
func (s *Store) PruneProcessed(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM processed_events WHERE seen_at < ?`,
		formatSQLiteTime(olderThan),
	)
	if err != nil {
		return fmt.Errorf("prune processed events: %w", err)
	}
	return nil
}
