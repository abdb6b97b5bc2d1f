package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one immutable message in a conversation. Ordering is by CreatedAt
// with insertion order breaking ties.
type Turn struct {
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

type AppendTurnInput struct {
	ConversationID string
	Role           string
	Content        string
	// At overrides the insertion timestamp; zero means now. Used by tests and
	// by history imports, never by the live pipeline.
	At time.Time
}

// ConversationSummary is the dashboard-facing per-conversation aggregate.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	TurnCount      int       `json:"turn_count"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// PokeCandidate is the scheduling read model derived from the turn log:
// the conversation still sits inside the provider's 24h reply window but has
// been silent for 12h or more.
type PokeCandidate struct {
	ConversationID string
	LastInboundAt  time.Time
	LastAnyAt      time.Time
}

func (s *Store) AppendTurn(ctx context.Context, input AppendTurnInput) error {
	conversationID := strings.TrimSpace(input.ConversationID)
	role := strings.TrimSpace(input.Role)
	if conversationID == "" || role == "" {
		return fmt.Errorf("append turn: conversation id and role are required")
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO turns (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID,
		role,
		input.Content,
		formatSQLiteTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// ConversationHistory returns the most recent limit turns in chronological
// order, ready for prompt assembly.
func (s *Store) ConversationHistory(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT conversation_id, role, content, created_at
		 FROM turns
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		strings.TrimSpace(conversationID),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	recent := make([]Turn, 0, limit)
	for rows.Next() {
		var turn Turn
		var createdAtText string
		if err := rows.Scan(&turn.ConversationID, &turn.Role, &turn.Content, &createdAtText); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.CreatedAt = parseSQLiteTime(createdAtText)
		recent = append(recent, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Rows arrive newest first; flip to chronological.
	for left, right := 0, len(recent)-1; left < right; left, right = left+1, right-1 {
		recent[left], recent[right] = recent[right], recent[left]
	}
	return recent, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT conversation_id, COUNT(*), MAX(created_at)
		 FROM turns
		 GROUP BY conversation_id
		 ORDER BY MAX(created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]ConversationSummary, 0, 32)
	for rows.Next() {
		var summary ConversationSummary
		var lastText string
		if err := rows.Scan(&summary.ConversationID, &summary.TurnCount, &lastText); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		summary.LastMessageAt = parseSQLiteTime(lastText)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return summaries, nil
}

// PokeCandidates selects conversations whose last user turn is newer than 24h
// before now while no turn of any role landed in the last 12h. Eligibility is
// recomputed from the log every sweep, nothing is stored.
func (s *Store) PokeCandidates(ctx context.Context, now time.Time) ([]PokeCandidate, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	rows, err := s.db.QueryContext(
		ctx,
		`WITH latest AS (
			SELECT conversation_id,
			       MAX(CASE WHEN role = 'user' THEN created_at END) AS last_user_at,
			       MAX(created_at) AS last_any_at
			FROM turns
			GROUP BY conversation_id
		)
		SELECT conversation_id, last_user_at, last_any_at
		FROM latest
		WHERE last_user_at IS NOT NULL
		  AND last_user_at > datetime(?, '-24 hours')
		  AND last_any_at < datetime(?, '-12 hours')`,
		formatSQLiteTime(now),
		formatSQLiteTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query poke candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]PokeCandidate, 0, 8)
	for rows.Next() {
		var candidate PokeCandidate
		var userText, anyText string
		if err := rows.Scan(&candidate.ConversationID, &userText, &anyText); err != nil {
			return nil, fmt.Errorf("scan poke candidate: %w", err)
		}
		candidate.LastInboundAt = parseSQLiteTime(userText)
		candidate.LastAnyAt = parseSQLiteTime(anyText)
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poke candidates: %w", err)
	}
	return candidates, nil
}
