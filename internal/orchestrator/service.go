// Package orchestrator runs the reply pipeline: one inbound envelope in, at
// most one outbound message out, everything recorded in the conversation log.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sableworks/warelay/internal/convlock"
	"github.com/sableworks/warelay/internal/corpus"
	"github.com/sableworks/warelay/internal/ingest"
	"github.com/sableworks/warelay/internal/livefeed"
	"github.com/sableworks/warelay/internal/reasoning"
	"github.com/sableworks/warelay/internal/store"
)

const lastResortFallback = "I apologize, but I'm currently experiencing technical difficulties."

// Phrases that signal a closed deal or confirmed payment. An inbound text
// containing one of these marks the recent exchange as worth learning.
var successKeywords = []string{"paid", "done", "sent", "confirmed", "thank you", "thanks"}

type Gateway interface {
	Send(ctx context.Context, number, text string) (string, error)
}

type ContextProvider interface {
	RetrieveContext(query string, topK, maxChars int) corpus.Context
}

type Knowledge interface {
	Content() string
	AppendLearnedPattern(conversationID string, exchange []string) error
}

type Exclusions interface {
	Contains(conversationID string) bool
}

type Config struct {
	HistoryLimit            int
	ContextHistoryThreshold int
	ContextTopK             int
	ContextMaxChars         int
	AutoLearnEnabled        bool
}

func (c *Config) applyDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 15
	}
	if c.ContextHistoryThreshold <= 0 {
		c.ContextHistoryThreshold = 3
	}
	if c.ContextTopK <= 0 {
		c.ContextTopK = 5
	}
	if c.ContextMaxChars <= 0 {
		c.ContextMaxChars = 2000
	}
}

type Service struct {
	cfg        Config
	store      *store.Store
	engine     reasoning.Engine
	gateway    Gateway
	retriever  ContextProvider
	knowledge  Knowledge
	exclusions Exclusions
	hub        *livefeed.Hub
	locks      *convlock.Table
	logger     *slog.Logger
}

func New(
	cfg Config,
	st *store.Store,
	engine reasoning.Engine,
	gateway Gateway,
	retriever ContextProvider,
	kb Knowledge,
	excl Exclusions,
	hub *livefeed.Hub,
	locks *convlock.Table,
	logger *slog.Logger,
) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		engine:     engine,
		gateway:    gateway,
		retriever:  retriever,
		knowledge:  kb,
		exclusions: excl,
		hub:        hub,
		locks:      locks,
		logger:     logger.With("component", "orchestrator"),
	}
}

// HandleInbound processes one accepted webhook envelope. The caller already
// holds the conversation's serializer slot.
func (s *Service) HandleInbound(ctx context.Context, envelope ingest.Envelope) error {
	seen, err := s.store.HasProcessed(ctx, envelope.EventKey)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		s.logger.Debug("duplicate envelope under lock", "event_key", envelope.EventKey)
		return nil
	}

	if s.exclusions != nil && s.exclusions.Contains(envelope.ConversationID) {
		s.logger.Info("conversation excluded", "conversation_id", envelope.ConversationID)
		return s.store.MarkProcessed(ctx, envelope.EventKey)
	}

	err = s.store.AppendTurn(ctx, store.AppendTurnInput{
		ConversationID: envelope.ConversationID,
		Role:           store.RoleUser,
		Content:        envelope.Text,
	})
	if err != nil {
		return fmt.Errorf("record inbound turn: %w", err)
	}

	history, err := s.store.ConversationHistory(ctx, envelope.ConversationID, s.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	// Retrieval pays off early in a conversation; once a few turns exist the
	// dialogue itself carries the context.
	var retrieved corpus.Context
	if s.retriever != nil && len(history) < s.cfg.ContextHistoryThreshold {
		retrieved = s.retriever.RetrieveContext(
			envelope.Text, s.cfg.ContextTopK, s.cfg.ContextMaxChars)
	}

	reply := s.generateReply(ctx, envelope, history, retrieved.Text)

	err = s.store.AppendTurn(ctx, store.AppendTurnInput{
		ConversationID: envelope.ConversationID,
		Role:           store.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		return fmt.Errorf("record assistant turn: %w", err)
	}

	if _, err := s.gateway.Send(ctx, envelope.ConversationID, reply); err != nil {
		s.logger.Error("outbound send failed",
			"conversation_id", envelope.ConversationID, "error", err)
	}

	if err := s.store.MarkProcessed(ctx, envelope.EventKey); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	if s.hub != nil {
		s.hub.Publish(livefeed.Event{
			Kind:         livefeed.KindReply,
			Conversation: envelope.ConversationID,
			Text:         envelope.Text,
			Reply:        reply,
		})
	}

	if err := s.store.ResetPokeCount(ctx, envelope.ConversationID); err != nil {
		s.logger.Error("poke count reset failed",
			"conversation_id", envelope.ConversationID, "error", err)
	}

	s.maybeLearn(envelope, history)

	s.logger.Info("inbound handled",
		"conversation_id", envelope.ConversationID,
		"event_key", envelope.EventKey,
		"context_used", retrieved.Used,
		"context_chunks", len(retrieved.Chunks))
	return nil
}

// generateReply calls the engine with the prior turns (the just-recorded
// user turn rides in Request.Text, not in the history) and substitutes a
// fixed apology when the engine fails outright.
func (s *Service) generateReply(ctx context.Context, envelope ingest.Envelope, history []store.Turn, contextText string) string {
	prior := history
	if len(prior) > 0 {
		prior = prior[:len(prior)-1]
	}
	turns := make([]reasoning.Turn, 0, len(prior))
	for _, turn := range prior {
		turns = append(turns, reasoning.Turn{Role: turn.Role, Content: turn.Content})
	}

	var knowledgeText string
	if s.knowledge != nil {
		knowledgeText = s.knowledge.Content()
	}

	result, err := s.engine.Generate(ctx, reasoning.Request{
		ConversationID: envelope.ConversationID,
		Text:           envelope.Text,
		History:        turns,
		Knowledge:      knowledgeText,
		Context:        contextText,
	})
	if err != nil {
		s.logger.Error("reply generation failed",
			"conversation_id", envelope.ConversationID, "error", err)
		return lastResortFallback
	}
	if strings.TrimSpace(result.Text) == "" {
		return lastResortFallback
	}
	return result.Text
}

// maybeLearn appends the closing exchange to the knowledge base when the
// customer's text signals a completed deal.
func (s *Service) maybeLearn(envelope ingest.Envelope, history []store.Turn) {
	if !s.cfg.AutoLearnEnabled || s.knowledge == nil {
		return
	}
	if len(history) < 2 {
		return
	}
	lowered := strings.ToLower(envelope.Text)
	matched := false
	for _, keyword := range successKeywords {
		if strings.Contains(lowered, keyword) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	// History already ends with the inbound turn that carried the keyword.
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	exchange := make([]string, 0, len(recent))
	for _, turn := range recent {
		exchange = append(exchange, turn.Role+": "+turn.Content)
	}

	if err := s.knowledge.AppendLearnedPattern(envelope.ConversationID, exchange); err != nil {
		s.logger.Error("auto-learn append failed",
			"conversation_id", envelope.ConversationID, "error", err)
		return
	}
	s.logger.Info("learned closing exchange", "conversation_id", envelope.ConversationID)
}

// Direct sends an operator-written message, bypassing the engine but going
// through the same serializer slot and conversation log.
func (s *Service) Direct(ctx context.Context, conversationID, text string) error {
	conversationID = strings.TrimSpace(conversationID)
	text = strings.TrimSpace(text)
	if conversationID == "" || text == "" {
		return fmt.Errorf("direct send: conversation id and text are required")
	}
	return s.locks.Do(conversationID, func() error {
		if _, err := s.gateway.Send(ctx, conversationID, text); err != nil {
			return fmt.Errorf("direct send: %w", err)
		}
		err := s.store.AppendTurn(ctx, store.AppendTurnInput{
			ConversationID: conversationID,
			Role:           store.RoleAssistant,
			Content:        text,
		})
		if err != nil {
			return fmt.Errorf("record direct turn: %w", err)
		}
		if s.hub != nil {
			s.hub.Publish(livefeed.Event{
				Kind:         livefeed.KindDirect,
				Conversation: conversationID,
				Reply:        text,
			})
		}
		return nil
	})
}

// Poke delivers a scheduler-originated follow-up. It claims the serializer
// slot so a poke can never interleave with an in-flight reply for the same
// conversation.
func (s *Service) Poke(ctx context.Context, conversationID, text string) error {
	return s.locks.Do(conversationID, func() error {
		if _, err := s.gateway.Send(ctx, conversationID, text); err != nil {
			return fmt.Errorf("poke send: %w", err)
		}
		err := s.store.AppendTurn(ctx, store.AppendTurnInput{
			ConversationID: conversationID,
			Role:           store.RoleAssistant,
			Content:        text,
		})
		if err != nil {
			return fmt.Errorf("record poke turn: %w", err)
		}
		if err := s.store.IncrementPokeCount(ctx, conversationID); err != nil {
			s.logger.Error("poke count increment failed",
				"conversation_id", conversationID, "error", err)
		}
		if s.hub != nil {
			s.hub.Publish(livefeed.Event{
				Kind:         livefeed.KindPoke,
				Conversation: conversationID,
				Reply:        text,
			})
		}
		return nil
	})
}
