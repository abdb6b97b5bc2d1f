// Package knowledge manages the sales knowledge-base file that seeds the
// reasoning prompt. Content is cached in memory; administrative updates and
// learned-pattern appends go straight to disk and refresh the cache.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const fallbackContent = "You are a helpful customer support agent."

type Service struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	content string
}

func New(path string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	service := &Service{path: path, logger: logger}
	service.Reload()
	return service
}

// Content returns the cached knowledge text, or a minimal fallback when the
// file is missing so prompt assembly never works with an empty system section.
func (s *Service) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if strings.TrimSpace(s.content) == "" {
		return fallbackContent
	}
	return s.content
}

func (s *Service) Update(content string) error {
	if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write knowledge file: %w", err)
	}
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
	return nil
}

func (s *Service) Reload() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("knowledge reload failed", "path", s.path, "error", err)
		}
		return
	}
	s.mu.Lock()
	s.content = string(raw)
	s.mu.Unlock()
}

// AppendLearnedPattern records a closed exchange at the end of the knowledge
// file so future prompts can reuse it. Append-only by design.
func (s *Service) AppendLearnedPattern(conversationID string, exchange []string) error {
	entry := fmt.Sprintf(
		"\n\n---\n### Auto-Learned Pattern (%s)\nConversation %s\n```\n%s\n```\n",
		time.Now().UTC().Format(time.RFC3339),
		conversationID,
		strings.Join(exchange, "\n"),
	)
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open knowledge file: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("append learned pattern: %w", err)
	}

	s.mu.Lock()
	s.content += entry
	s.mu.Unlock()
	return nil
}
