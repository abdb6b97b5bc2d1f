package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func appendAt(t *testing.T, s *Store, conversationID, role, content string, at time.Time) {
	t.Helper()
	err := s.AppendTurn(context.Background(), AppendTurnInput{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		At:             at,
	})
	if err != nil {
		t.Fatalf("append turn: %v", err)
	}
}

func TestAppendTurnValidation(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendTurn(context.Background(), AppendTurnInput{Role: RoleUser, Content: "hi"})
	if err == nil {
		t.Fatal("expected error for missing conversation id")
	}
	err = s.AppendTurn(context.Background(), AppendTurnInput{ConversationID: "123", Content: "hi"})
	if err == nil {
		t.Fatal("expected error for missing role")
	}
}

func TestConversationHistoryOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		appendAt(t, s, "4915700000001", role, fmt.Sprintf("msg-%02d", i), base.Add(time.Duration(i)*time.Minute))
	}
	appendAt(t, s, "4915700000099", RoleUser, "other conversation", base)

	history, err := s.ConversationHistory(context.Background(), "4915700000001", 15)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 15 {
		t.Fatalf("expected 15 turns, got %d", len(history))
	}
	if history[0].Content != "msg-05" {
		t.Fatalf("expected oldest kept turn msg-05, got %q", history[0].Content)
	}
	if history[14].Content != "msg-19" {
		t.Fatalf("expected newest turn last, got %q", history[14].Content)
	}
	for i := 1; i < len(history); i++ {
		if history[i].CreatedAt.Before(history[i-1].CreatedAt) {
			t.Fatalf("history not chronological at index %d", i)
		}
	}
}

func TestConversationHistorySameSecondOrdering(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendAt(t, s, "123", RoleUser, "first", at)
	appendAt(t, s, "123", RoleAssistant, "second", at)
	appendAt(t, s, "123", RoleUser, "third", at)

	history, err := s.ConversationHistory(context.Background(), "123", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(history))
	}
	if history[0].Content != "first" || history[2].Content != "third" {
		t.Fatalf("insertion order lost within same timestamp: %+v", history)
	}
}

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendAt(t, s, "111", RoleUser, "a", base)
	appendAt(t, s, "111", RoleAssistant, "b", base.Add(time.Minute))
	appendAt(t, s, "222", RoleUser, "c", base.Add(2*time.Minute))

	summaries, err := s.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(summaries))
	}
	if summaries[0].ConversationID != "222" {
		t.Fatalf("expected most recently active first, got %q", summaries[0].ConversationID)
	}
	if summaries[1].TurnCount != 2 {
		t.Fatalf("expected 2 turns for 111, got %d", summaries[1].TurnCount)
	}
}

func TestPokeCandidatesWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Eligible: user spoke 14h ago, nothing since.
	appendAt(t, s, "eligible", RoleUser, "still thinking", now.Add(-14*time.Hour))

	// Too old: last user turn beyond the 24h window.
	appendAt(t, s, "stale", RoleUser, "old lead", now.Add(-30*time.Hour))

	// Too fresh: assistant replied 2h ago.
	appendAt(t, s, "fresh", RoleUser, "question", now.Add(-14*time.Hour))
	appendAt(t, s, "fresh", RoleAssistant, "answer", now.Add(-2*time.Hour))

	// Assistant-only conversation never qualifies.
	appendAt(t, s, "outbound-only", RoleAssistant, "broadcast", now.Add(-14*time.Hour))

	candidates, err := s.PokeCandidates(context.Background(), now)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %+v", candidates)
	}
	if candidates[0].ConversationID != "eligible" {
		t.Fatalf("unexpected candidate %q", candidates[0].ConversationID)
	}
}
