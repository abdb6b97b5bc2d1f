// Package xai implements the reasoning engine against the xAI
// chat-completions API. Upstream failures degrade to a fixed apologetic
// reply so the conversation pipeline never surfaces raw transport errors
// to a customer.
package xai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sableworks/warelay/internal/reasoning"
)

const (
	transportFallback = "I apologize, but I'm currently experiencing technical difficulties."
	emptyFallback     = "I apologize, I am having trouble connecting to my brain right now. Please try again later."
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.x.ai/v1"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "grok-4-1-fast-reasoning"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

func (c *Client) Generate(ctx context.Context, request reasoning.Request) (reasoning.Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return reasoning.Result{}, fmt.Errorf("%w: missing WARELAY_XAI_API_KEY", reasoning.ErrUnavailable)
	}
	userText := strings.TrimSpace(request.Text)
	if userText == "" {
		return reasoning.Result{}, nil
	}

	messages := make([]chatMessage, 0, len(request.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: buildSystemPrompt(request)})
	for _, turn := range request.History {
		role := strings.TrimSpace(turn.Role)
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	payload := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return reasoning.Result{}, fmt.Errorf("marshal xai request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return reasoning.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("xai request failed", "error", err)
		return reasoning.Result{Text: transportFallback}, nil
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		c.logger.Error("xai response read failed", "error", err)
		return reasoning.Result{Text: transportFallback}, nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Error("xai completion failed", "status", res.StatusCode, "body", strings.TrimSpace(string(respBody)))
		return reasoning.Result{Text: transportFallback}, nil
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		c.logger.Error("xai response decode failed", "error", err)
		return reasoning.Result{Text: transportFallback}, nil
	}
	if len(response.Choices) == 0 {
		c.logger.Error("xai response returned no choices")
		return reasoning.Result{Text: emptyFallback}, nil
	}
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return reasoning.Result{Text: emptyFallback}, nil
	}
	return reasoning.Result{Text: content}, nil
}

func buildSystemPrompt(request reasoning.Request) string {
	var b strings.Builder
	knowledge := strings.TrimSpace(request.Knowledge)
	if knowledge == "" {
		knowledge = "You are a helpful customer support agent."
	}
	b.WriteString(knowledge)
	if docs := strings.TrimSpace(request.Context); docs != "" {
		b.WriteString("\n\nRelevant reference material:\n")
		b.WriteString(docs)
	}
	b.WriteString("\n\nReply as a concise human sales agent over WhatsApp. Keep answers short and direct.")
	return b.String()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
