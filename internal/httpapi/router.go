// Package httpapi exposes the webhook mount plus the operator endpoints:
// conversation inspection, manual sends, exclusion management, knowledge and
// corpus administration, and the live event feed.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sableworks/warelay/internal/corpus"
	"github.com/sableworks/warelay/internal/exclusions"
	"github.com/sableworks/warelay/internal/knowledge"
	"github.com/sableworks/warelay/internal/livefeed"
	"github.com/sableworks/warelay/internal/store"
)

type Sender interface {
	Direct(ctx context.Context, conversationID, text string) error
}

type Sweeper interface {
	Sweep(ctx context.Context)
}

type Dependencies struct {
	Store      *store.Store
	Sender     Sender
	Sweeper    Sweeper
	Exclusions *exclusions.Set
	Knowledge  *knowledge.Service
	Corpus     *corpus.Retriever
	Hub        *livefeed.Hub
	Webhook    http.Handler
	Logger     *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	if deps.Webhook != nil {
		mux.Handle("/webhook", deps.Webhook)
	}
	mux.HandleFunc("/api/v1/conversations", rt.handleConversations)
	mux.HandleFunc("/api/v1/conversations/", rt.handleConversationMessages)
	mux.HandleFunc("/api/v1/send", rt.handleSend)
	mux.HandleFunc("/api/v1/excluded", rt.handleExcluded)
	mux.HandleFunc("/api/v1/excluded/", rt.handleExcludedDelete)
	mux.HandleFunc("/api/v1/kb", rt.handleKnowledge)
	mux.HandleFunc("/api/v1/corpus/status", rt.handleCorpusStatus)
	mux.HandleFunc("/api/v1/poke/run", rt.handlePokeRun)
	if deps.Hub != nil {
		mux.Handle("/api/v1/live", livefeed.SSEHandler(deps.Hub, deps.Logger))
		mux.Handle("/api/v1/live/ws", livefeed.WSHandler(deps.Hub, deps.Logger))
	}
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleConversations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	summaries, err := r.deps.Store.ListConversations(req.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (r *router) handleConversationMessages(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	rest := strings.TrimPrefix(req.URL.Path, "/api/v1/conversations/")
	conversationID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "messages" || conversationID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	turns, err := r.deps.Store.ConversationHistory(req.Context(), conversationID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	messages := make([]map[string]any, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, map[string]any{
			"role":       turn.Role,
			"content":    turn.Content,
			"created_at": turn.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

func (r *router) handleSend(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload sendRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.ConversationID) == "" || strings.TrimSpace(payload.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id and text are required"})
		return
	}
	if err := r.deps.Sender.Direct(req.Context(), payload.ConversationID, payload.Text); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type excludeRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (r *router) handleExcluded(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"excluded": r.deps.Exclusions.List()})
	case http.MethodPost:
		var payload excludeRequest
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if strings.TrimSpace(payload.ConversationID) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id is required"})
			return
		}
		if err := r.deps.Exclusions.Add(payload.ConversationID); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"excluded": r.deps.Exclusions.List()})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (r *router) handleExcludedDelete(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	conversationID := strings.TrimPrefix(req.URL.Path, "/api/v1/excluded/")
	if conversationID == "" || strings.Contains(conversationID, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err := r.deps.Exclusions.Remove(conversationID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"excluded": r.deps.Exclusions.List()})
}

func (r *router) handleKnowledge(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"content": r.deps.Knowledge.Content()})
	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(req.Body, 4<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read failed"})
			return
		}
		var payload struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if err := r.deps.Knowledge.Update(payload.Content); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (r *router) handleCorpusStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, r.deps.Corpus.Status())
}

func (r *router) handlePokeRun(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	go r.deps.Sweeper.Sweep(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sweep started"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
