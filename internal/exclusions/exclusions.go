// Package exclusions tracks conversations that opted out of automated
// replies. The set lives in a JSON side file and every mutation is persisted
// immediately so sweeps and restarts see the same view.
package exclusions

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

type Set struct {
	path string

	mu      sync.RWMutex
	entries map[string]struct{}
}

func Load(path string) (*Set, error) {
	set := &Set{path: path, entries: make(map[string]struct{})}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("read exclusion file: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode exclusion file: %w", err)
	}
	for _, id := range ids {
		set.entries[id] = struct{}{}
	}
	return set, nil
}

func (s *Set) Contains(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[conversationID]
	return ok
}

func (s *Set) Add(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[conversationID]; ok {
		return nil
	}
	s.entries[conversationID] = struct{}{}
	return s.persistLocked()
}

func (s *Set) Remove(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[conversationID]; !ok {
		return nil
	}
	delete(s.entries, conversationID)
	return s.persistLocked()
}

func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Set) persistLocked() error {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode exclusion file: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write exclusion file: %w", err)
	}
	return nil
}
