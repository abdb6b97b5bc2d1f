package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IncrementPokeCount bumps the re-engagement counter for a conversation and
// stamps the poke time.
func (s *Store) IncrementPokeCount(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO poke_counts (conversation_id, poke_count, last_poke_at)
		 VALUES (?, 1, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
			poke_count = poke_count + 1,
			last_poke_at = excluded.last_poke_at`,
		conversationID,
		formatSQLiteTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("increment poke count: %w", err)
	}
	return nil
}

// ResetPokeCount clears the counter once a conversation becomes active again.
func (s *Store) ResetPokeCount(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM poke_counts WHERE conversation_id = ?`,
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("reset poke count: %w", err)
	}
	return nil
}

func (s *Store) PokeCount(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT poke_count FROM poke_counts WHERE conversation_id = ?`,
		conversationID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query poke count: %w", err)
	}
	return count, nil
}
