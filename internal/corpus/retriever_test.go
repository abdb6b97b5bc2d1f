package corpus

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeTestCorpus(t *testing.T, chunks []Chunk) *Retriever {
	t.Helper()
	raw, err := json.Marshal(chunks)
	if err != nil {
		t.Fatalf("marshal corpus: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rag_chunks.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	retriever := NewRetriever(path, slog.Default())
	if err := retriever.Load(); err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	return retriever
}

func TestSearchIsDeterministic(t *testing.T) {
	retriever := writeTestCorpus(t, []Chunk{
		{ID: "1", Source: "chats/a.md", Content: "User asked about a demo account and got a demo link. demo works."},
		{ID: "2", Source: "chats/b.md", Content: "Pricing for the full account plan was discussed."},
		{ID: "3", Source: "chats/c.md", Content: "A demo was requested once."},
	})

	first := retriever.Search("demo account", 3)
	second := retriever.Search("demo account", 3)
	if len(first) != len(second) {
		t.Fatalf("result count changed between calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Chunk.ID != second[i].Chunk.ID || first[i].Score != second[i].Score {
			t.Fatalf("ranking changed between calls at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestOccurrenceCountRaisesScore(t *testing.T) {
	retriever := writeTestCorpus(t, []Chunk{
		{ID: "1", Source: "a", Content: "demo demo demo"},
		{ID: "2", Source: "b", Content: "demo"},
	})

	matches := retriever.Search("demo", 2)
	if len(matches) != 2 {
		t.Fatalf("expected two matches, got %d", len(matches))
	}
	if matches[0].Chunk.ID != "1" {
		t.Fatalf("expected triple occurrence chunk first, got %s", matches[0].Chunk.ID)
	}
	if diff := matches[0].Score - 1.3; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected score 1.3 for three occurrences, got %v", matches[0].Score)
	}
	if diff := matches[1].Score - 1.1; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected score 1.1 for one occurrence, got %v", matches[1].Score)
	}
}

func TestZeroScoreChunksExcluded(t *testing.T) {
	retriever := writeTestCorpus(t, []Chunk{
		{ID: "1", Source: "a", Content: "nothing relevant here"},
		{ID: "2", Source: "b", Content: "signals pricing info"},
	})

	matches := retriever.Search("pricing", 5)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	if matches[0].Chunk.ID != "2" {
		t.Fatalf("unexpected match: %s", matches[0].Chunk.ID)
	}
}

func TestShortAndPunctuationOnlyWordsIgnored(t *testing.T) {
	retriever := writeTestCorpus(t, []Chunk{
		{ID: "1", Source: "a", Content: "an is to it"},
	})

	if matches := retriever.Search("an is to ???", 5); len(matches) != 0 {
		t.Fatalf("expected no matches for short/punctuation query, got %d", len(matches))
	}
}

func TestRetrieveContextRespectsMaxChars(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'x'
	}
	retriever := writeTestCorpus(t, []Chunk{
		{ID: "1", Source: "first.md", Content: "demo " + string(long)},
		{ID: "2", Source: "second.md", Content: "demo " + string(long)},
	})

	result := retriever.RetrieveContext("demo", 3, 900)
	if !result.Used {
		t.Fatal("expected context to be used")
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected a single chunk to fit, got %d", len(result.Chunks))
	}
	if len(result.Text) > 900 {
		t.Fatalf("context exceeds limit: %d chars", len(result.Text))
	}
	if result.Chunks[0].Source != "first.md" {
		t.Fatalf("expected highest ranked chunk, got %s", result.Chunks[0].Source)
	}
}

func TestRetrieveContextEmptyWhenNoMatch(t *testing.T) {
	retriever := writeTestCorpus(t, []Chunk{
		{ID: "1", Source: "a", Content: "unrelated"},
	})

	result := retriever.RetrieveContext("zzzqqq", 3, 2000)
	if result.Used || result.Text != "" || len(result.Chunks) != 0 {
		t.Fatalf("expected empty context, got %+v", result)
	}
}

func TestMissingCorpusFileDisablesRetrieval(t *testing.T) {
	retriever := NewRetriever(filepath.Join(t.TempDir(), "absent.json"), slog.Default())
	if err := retriever.Load(); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	status := retriever.Status()
	if status.Loaded {
		t.Fatal("expected unloaded status for missing file")
	}
	if matches := retriever.Search("demo", 3); matches != nil {
		t.Fatalf("expected nil matches, got %v", matches)
	}
}
