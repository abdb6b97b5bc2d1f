// Package poker runs the re-engagement sweep: conversations that went quiet
// while still inside the provider's reply window get a short follow-up.
package poker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sableworks/warelay/internal/reasoning"
	"github.com/sableworks/warelay/internal/store"
)

const (
	minPokeLength = 10
	maxPokeLength = 300
)

// Canned follow-ups used when AI personalization fails or produces something
// implausible.
var cannedPokes = []string{
	"Hey! Just checking in, did you have any other questions?",
	"Hi again! I'm here if you'd like to continue where we left off.",
	"Just following up, let me know if you'd like any more details.",
	"Hey! Still happy to help whenever you're ready.",
}

type Candidates interface {
	PokeCandidates(ctx context.Context, now time.Time) ([]store.PokeCandidate, error)
	ConversationHistory(ctx context.Context, conversationID string, limit int) ([]store.Turn, error)
}

type Dispatcher interface {
	Poke(ctx context.Context, conversationID, text string) error
}

type Exclusions interface {
	Contains(conversationID string) bool
}

type Config struct {
	Schedule     string
	InitialDelay time.Duration
	SendGap      time.Duration
	HistoryLimit int
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = "0 * * * *"
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 30 * time.Second
	}
	if c.SendGap <= 0 {
		c.SendGap = 2 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
}

type Service struct {
	cfg        Config
	candidates Candidates
	dispatcher Dispatcher
	engine     reasoning.Engine
	exclusions Exclusions
	logger     *slog.Logger
	schedule   cron.Schedule
}

func New(cfg Config, candidates Candidates, dispatcher Dispatcher, engine reasoning.Engine, excl Exclusions, logger *slog.Logger) (*Service, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse poke schedule %q: %w", cfg.Schedule, err)
	}
	return &Service{
		cfg:        cfg,
		candidates: candidates,
		dispatcher: dispatcher,
		engine:     engine,
		exclusions: excl,
		logger:     logger.With("component", "poker"),
		schedule:   schedule,
	}, nil
}

// Run blocks until the context is cancelled, sweeping once shortly after
// start and then on the configured cron schedule.
func (s *Service) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.InitialDelay):
	}
	s.Sweep(ctx)

	for {
		next := s.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
			s.Sweep(ctx)
		}
	}
}

// Sweep pokes every eligible, non-excluded conversation with pacing between
// sends. Individual failures are logged and do not stop the sweep.
func (s *Service) Sweep(ctx context.Context) {
	candidates, err := s.candidates.PokeCandidates(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("candidate query failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	s.logger.Info("poke sweep started", "candidates", len(candidates))

	sent := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}
		if s.exclusions != nil && s.exclusions.Contains(candidate.ConversationID) {
			continue
		}
		if sent > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.SendGap):
			}
		}

		text := s.composePoke(ctx, candidate.ConversationID)
		if err := s.dispatcher.Poke(ctx, candidate.ConversationID, text); err != nil {
			s.logger.Error("poke dispatch failed",
				"conversation_id", candidate.ConversationID, "error", err)
			continue
		}
		sent++
	}
	s.logger.Info("poke sweep finished", "sent", sent)
}

// composePoke asks the engine for a personalized nudge based on recent
// history, falling back to a canned line when the result is missing or an
// implausible length.
func (s *Service) composePoke(ctx context.Context, conversationID string) string {
	if s.engine == nil {
		return s.canned()
	}
	history, err := s.candidates.ConversationHistory(ctx, conversationID, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Error("poke history load failed",
			"conversation_id", conversationID, "error", err)
		return s.canned()
	}

	turns := make([]reasoning.Turn, 0, len(history))
	for _, turn := range history {
		turns = append(turns, reasoning.Turn{Role: turn.Role, Content: turn.Content})
	}
	result, err := s.engine.Generate(ctx, reasoning.Request{
		ConversationID: conversationID,
		Text: "The customer has gone quiet. Write one short, friendly follow-up " +
			"message continuing this conversation naturally. Reply with the message only.",
		History: turns,
	})
	if err != nil {
		s.logger.Error("poke generation failed",
			"conversation_id", conversationID, "error", err)
		return s.canned()
	}

	text := strings.TrimSpace(result.Text)
	if len(text) <= minPokeLength || len(text) >= maxPokeLength {
		return s.canned()
	}
	return text
}

func (s *Service) canned() string {
	return cannedPokes[rand.Intn(len(cannedPokes))]
}
