// Package livefeed fans processed-conversation events out to connected
// observers (SSE, websocket, the tail TUI). Publishing never blocks the
// reply pipeline: slow subscribers lose events instead.
package livefeed

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 16

type Event struct {
	Kind         string `json:"kind"`
	Conversation string `json:"from"`
	Text         string `json:"text,omitempty"`
	Reply        string `json:"reply,omitempty"`
}

const (
	KindReply  = "reply"
	KindDirect = "direct"
	KindPoke   = "poke"
)

type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]chan Event
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger.With("component", "livefeed"),
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe registers a new observer. The caller must drain the channel and
// call the returned cancel function when done.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Debug("dropping event for slow subscriber", "subscriber", id)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
