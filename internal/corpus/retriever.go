// Package corpus is an in-memory keyword retriever over a pre-chunked text
// corpus. The bag-of-words scoring is a stable contract: callers depend on the
// exact numbers.
package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

type Chunk struct {
	ID      json.Number `json:"id"`
	Source  string      `json:"source"`
	Content string      `json:"content"`
}

type Match struct {
	Score float64
	Chunk Chunk
}

type UsedChunk struct {
	ID     json.Number `json:"id"`
	Source string      `json:"source"`
	Score  float64     `json:"score"`
}

type Context struct {
	Text   string
	Chunks []UsedChunk
	Used   bool
}

type Status struct {
	Loaded     bool   `json:"loaded"`
	ChunkCount int    `json:"chunk_count"`
	Path       string `json:"path"`
}

const previewChars = 800

type Retriever struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	chunks []Chunk
	loaded bool
}

func NewRetriever(path string, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{path: path, logger: logger}
}

// Load reads the chunk file into memory. A missing file is not an error: the
// retriever simply stays empty and Search returns nothing.
func (r *Retriever) Load() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Info("corpus file not found, retrieval disabled", "path", r.path)
			return nil
		}
		return fmt.Errorf("read corpus file: %w", err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return fmt.Errorf("decode corpus file: %w", err)
	}

	r.mu.Lock()
	r.chunks = chunks
	r.loaded = true
	r.mu.Unlock()
	r.logger.Info("corpus loaded", "path", r.path, "chunks", len(chunks))
	return nil
}

// Reload is Load for watcher callbacks; failures keep the previous corpus.
func (r *Retriever) Reload() {
	if err := r.Load(); err != nil {
		r.logger.Error("corpus reload failed", "path", r.path, "error", err)
	}
}

func (r *Retriever) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{Loaded: r.loaded, ChunkCount: len(r.chunks), Path: r.path}
}

var nonWordPattern = regexp.MustCompile(`[^a-z0-9_]+`)

func queryWords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	words := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) <= 2 {
			continue
		}
		word := nonWordPattern.ReplaceAllString(field, "")
		if word == "" {
			continue
		}
		words = append(words, word)
	}
	return words
}

// Search scores every chunk against the query words: each word that appears
// at least once contributes 1 + 0.1 per occurrence. Ties keep corpus order.
func (r *Retriever) Search(query string, topK int) []Match {
	r.mu.RLock()
	chunks := r.chunks
	loaded := r.loaded
	r.mu.RUnlock()

	if !loaded || len(chunks) == 0 {
		return nil
	}
	words := queryWords(query)
	if len(words) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(chunks))
	for _, chunk := range chunks {
		content := strings.ToLower(chunk.Content)
		score := 0.0
		for _, word := range words {
			occurrences := strings.Count(content, word)
			if occurrences > 0 {
				score += 1 + 0.1*float64(occurrences)
			}
		}
		if score > 0 {
			matches = append(matches, Match{Score: score, Chunk: chunk})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// RetrieveContext builds a single source-labeled context string from the top
// matches, greedily appending truncated previews and stopping before any
// addition that would push the text past maxChars. The returned chunk list
// covers only what was actually included.
func (r *Retriever) RetrieveContext(query string, topK, maxChars int) Context {
	matches := r.Search(query, topK)
	if len(matches) == 0 {
		return Context{}
	}

	var builder strings.Builder
	used := make([]UsedChunk, 0, len(matches))
	for _, match := range matches {
		preview := truncateRunes(match.Chunk.Content, previewChars)
		addition := fmt.Sprintf("\n--- From: %s ---\n%s\n", match.Chunk.Source, preview)
		if builder.Len()+len(addition) > maxChars {
			break
		}
		builder.WriteString(addition)
		used = append(used, UsedChunk{
			ID:     match.Chunk.ID,
			Source: match.Chunk.Source,
			Score:  match.Score,
		})
	}

	text := strings.TrimSpace(builder.String())
	return Context{Text: text, Chunks: used, Used: text != ""}
}

func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}
