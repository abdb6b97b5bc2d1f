package poker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sableworks/warelay/internal/reasoning"
	"github.com/sableworks/warelay/internal/store"
)

type fakeCandidates struct {
	candidates []store.PokeCandidate
	history    []store.Turn
	err        error
}

func (f *fakeCandidates) PokeCandidates(context.Context, time.Time) ([]store.PokeCandidate, error) {
	return f.candidates, f.err
}

func (f *fakeCandidates) ConversationHistory(context.Context, string, int) ([]store.Turn, error) {
	return f.history, nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	pokes []string
	err   error
}

func (f *fakeDispatcher) Poke(_ context.Context, conversationID, text string) error {
	f.mu.Lock()
	f.pokes = append(f.pokes, conversationID+"|"+text)
	f.mu.Unlock()
	return f.err
}

type fakeEngine struct {
	reply string
	err   error
}

func (f *fakeEngine) Generate(context.Context, reasoning.Request) (reasoning.Result, error) {
	if f.err != nil {
		return reasoning.Result{}, f.err
	}
	return reasoning.Result{Text: f.reply}, nil
}

type staticExclusions map[string]bool

func (s staticExclusions) Contains(id string) bool { return s[id] }

func newTestService(t *testing.T, candidates *fakeCandidates, dispatcher *fakeDispatcher, engine reasoning.Engine, excl Exclusions) *Service {
	t.Helper()
	service, err := New(Config{SendGap: time.Millisecond}, candidates, dispatcher, engine, excl, nil)
	if err != nil {
		t.Fatalf("new poker: %v", err)
	}
	return service
}

func TestSweepPokesCandidates(t *testing.T) {
	candidates := &fakeCandidates{candidates: []store.PokeCandidate{
		{ConversationID: "111"},
		{ConversationID: "222"},
	}}
	dispatcher := &fakeDispatcher{}
	service := newTestService(t, candidates, dispatcher, &fakeEngine{reply: "hey, still interested in the full plan?"}, nil)

	service.Sweep(context.Background())

	if len(dispatcher.pokes) != 2 {
		t.Fatalf("expected 2 pokes, got %v", dispatcher.pokes)
	}
	if !strings.HasPrefix(dispatcher.pokes[0], "111|") || !strings.HasPrefix(dispatcher.pokes[1], "222|") {
		t.Fatalf("unexpected poke order %v", dispatcher.pokes)
	}
	if !strings.Contains(dispatcher.pokes[0], "full plan") {
		t.Fatalf("expected personalized text, got %q", dispatcher.pokes[0])
	}
}

func TestSweepSkipsExcluded(t *testing.T) {
	candidates := &fakeCandidates{candidates: []store.PokeCandidate{
		{ConversationID: "111"},
		{ConversationID: "222"},
	}}
	dispatcher := &fakeDispatcher{}
	service := newTestService(t, candidates, dispatcher, nil, staticExclusions{"111": true})

	service.Sweep(context.Background())

	if len(dispatcher.pokes) != 1 || !strings.HasPrefix(dispatcher.pokes[0], "222|") {
		t.Fatalf("expected only non-excluded conversation poked, got %v", dispatcher.pokes)
	}
}

func TestComposePokeCannedWhenEngineFails(t *testing.T) {
	candidates := &fakeCandidates{candidates: []store.PokeCandidate{{ConversationID: "111"}}}
	dispatcher := &fakeDispatcher{}
	service := newTestService(t, candidates, dispatcher, &fakeEngine{err: errors.New("down")}, nil)

	service.Sweep(context.Background())

	if len(dispatcher.pokes) != 1 {
		t.Fatalf("expected canned poke, got %v", dispatcher.pokes)
	}
	text := strings.SplitN(dispatcher.pokes[0], "|", 2)[1]
	if !containsCanned(text) {
		t.Fatalf("expected canned template, got %q", text)
	}
}

func TestComposePokeRejectsImplausibleLength(t *testing.T) {
	for _, reply := range []string{"ok", strings.Repeat("x", 400)} {
		service := newTestService(t, &fakeCandidates{}, &fakeDispatcher{}, &fakeEngine{reply: reply}, nil)
		text := service.composePoke(context.Background(), "111")
		if !containsCanned(text) {
			t.Fatalf("expected canned fallback for reply %q, got %q", reply, text)
		}
	}
}

func TestSweepContinuesPastDispatchFailure(t *testing.T) {
	candidates := &fakeCandidates{candidates: []store.PokeCandidate{
		{ConversationID: "111"},
		{ConversationID: "222"},
	}}
	dispatcher := &fakeDispatcher{err: errors.New("gateway down")}
	service := newTestService(t, candidates, dispatcher, nil, nil)

	service.Sweep(context.Background())

	if len(dispatcher.pokes) != 2 {
		t.Fatalf("expected both attempts despite failures, got %v", dispatcher.pokes)
	}
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	candidates := &fakeCandidates{candidates: []store.PokeCandidate{
		{ConversationID: "111"},
		{ConversationID: "222"},
	}}
	dispatcher := &fakeDispatcher{}
	service := newTestService(t, candidates, dispatcher, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	service.Sweep(ctx)

	if len(dispatcher.pokes) != 0 {
		t.Fatalf("expected no pokes after cancel, got %v", dispatcher.pokes)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(Config{Schedule: "not a cron"}, &fakeCandidates{}, &fakeDispatcher{}, nil, nil, nil)
	if err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func containsCanned(text string) bool {
	for _, canned := range cannedPokes {
		if text == canned {
			return true
		}
	}
	return false
}
