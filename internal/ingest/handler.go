package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sableworks/warelay/internal/convlock"
)

const maxWebhookBody = 1 << 20

type Deduper interface {
	HasProcessed(ctx context.Context, eventKey string) (bool, error)
}

type Processor interface {
	HandleInbound(ctx context.Context, envelope Envelope) error
}

// Handler is the webhook endpoint. It acks fast: classification and the
// duplicate pre-check happen inline, everything else runs in the background
// behind a per-conversation serializer slot claimed before the ack so
// arrival order is preserved.
type Handler struct {
	deduper        Deduper
	locks          *convlock.Table
	processor      Processor
	logger         *slog.Logger
	processTimeout time.Duration
}

func NewHandler(deduper Deduper, locks *convlock.Table, processor Processor, processTimeout time.Duration, logger *slog.Logger) *Handler {
	if processTimeout <= 0 {
		processTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deduper:        deduper,
		locks:          locks,
		processor:      processor,
		logger:         logger.With("component", "ingest"),
		processTimeout: processTimeout,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("webhook body read failed", "error", err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("webhook body not json", "error", err)
		http.Error(w, "invalid payload", http.StatusInternalServerError)
		return
	}

	envelope, verdict := Classify(payload)
	if !verdict.Accept {
		h.logger.Debug("webhook discarded", "reason", verdict.Reason)
		h.ack(w)
		return
	}

	seen, err := h.deduper.HasProcessed(r.Context(), envelope.EventKey)
	if err != nil {
		h.logger.Error("dedup pre-check failed", "event_key", envelope.EventKey, "error", err)
		// Fall through: the orchestrator re-checks under the lock.
	}
	if seen {
		h.logger.Debug("webhook duplicate", "event_key", envelope.EventKey)
		h.ack(w)
		return
	}

	// The slot is claimed before the ack goes out, so two webhooks for the
	// same customer are processed in arrival order even though the work is
	// asynchronous.
	ticket := h.locks.Acquire(envelope.ConversationID)
	go h.process(ticket, envelope)

	h.ack(w)
}

func (h *Handler) process(ticket *convlock.Ticket, envelope Envelope) {
	ticket.Wait()
	defer ticket.Release()

	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	defer cancel()

	if err := h.processor.HandleInbound(ctx, envelope); err != nil {
		h.logger.Error("inbound processing failed",
			"conversation_id", envelope.ConversationID,
			"event_key", envelope.EventKey,
			"error", err)
	}
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
