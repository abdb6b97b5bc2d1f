// Package watcher reloads the knowledge and corpus files when they change on
// disk, so edits take effect without a restart.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type Service struct {
	knowledgePath string
	corpusPath    string
	logger        *slog.Logger
	onKnowledge   func()
	onCorpus      func()
	watcher       *fsnotify.Watcher
}

func New(knowledgePath, corpusPath string, logger *slog.Logger, onKnowledge, onCorpus func()) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		knowledgePath: filepath.Clean(knowledgePath),
		corpusPath:    filepath.Clean(corpusPath),
		logger:        logger.With("component", "watcher"),
		onKnowledge:   onKnowledge,
		onCorpus:      onCorpus,
		watcher:       fileWatcher,
	}, nil
}

// Start blocks until the context is cancelled. The parent directories are
// watched rather than the files themselves so editors that replace files
// (write to temp, rename over) are still seen.
func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(s.knowledgePath): {},
		filepath.Dir(s.corpusPath):    {},
	}
	for dir := range dirs {
		if err := s.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch dir %s: %w", dir, err)
		}
	}
	s.logger.Info("file watcher started",
		"knowledge", s.knowledgePath, "corpus", s.corpusPath)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("file watcher stopped")
			return nil
		case event := <-s.watcher.Events:
			s.handleEvent(event)
		case err := <-s.watcher.Errors:
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	switch filepath.Clean(event.Name) {
	case s.knowledgePath:
		s.logger.Info("knowledge file changed", "op", event.Op.String())
		if s.onKnowledge != nil {
			s.onKnowledge()
		}
	case s.corpusPath:
		s.logger.Info("corpus file changed", "op", event.Op.String())
		if s.onCorpus != nil {
			s.onCorpus()
		}
	}
}
