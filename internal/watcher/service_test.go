package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherFiresCallbacksOnWrite(t *testing.T) {
	dir := t.TempDir()
	knowledgePath := filepath.Join(dir, "kb.md")
	corpusPath := filepath.Join(dir, "corpus.json")
	if err := os.WriteFile(knowledgePath, []byte("kb"), 0o644); err != nil {
		t.Fatalf("seed kb: %v", err)
	}
	if err := os.WriteFile(corpusPath, []byte("[]"), 0o644); err != nil {
		t.Fatalf("seed corpus: %v", err)
	}

	knowledgeHits := make(chan struct{}, 4)
	corpusHits := make(chan struct{}, 4)
	service, err := New(knowledgePath, corpusPath, nil,
		func() { knowledgeHits <- struct{}{} },
		func() { corpusHits <- struct{}{} },
	)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(knowledgePath, []byte("kb v2"), 0o644); err != nil {
		t.Fatalf("write kb: %v", err)
	}
	select {
	case <-knowledgeHits:
	case <-time.After(3 * time.Second):
		t.Fatal("knowledge callback never fired")
	}

	if err := os.WriteFile(corpusPath, []byte(`[{"id":1}]`), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	select {
	case <-corpusHits:
	case <-time.After(3 * time.Second):
		t.Fatal("corpus callback never fired")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	knowledgePath := filepath.Join(dir, "kb.md")
	corpusPath := filepath.Join(dir, "corpus.json")

	hits := make(chan struct{}, 4)
	service, err := New(knowledgePath, corpusPath, nil,
		func() { hits <- struct{}{} },
		func() { hits <- struct{}{} },
	)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("noise"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-hits:
		t.Fatal("unexpected callback for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}
