// Package wati is the outbound WhatsApp gateway. It speaks the WATI session
// message API: one POST per text, the message riding in a query parameter.
package wati

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
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

type sendResponse struct {
	Result  bool `json:"result"`
	Message struct {
		WhatsappMessageID string `json:"whatsappMessageId"`
		LocalMessageID    string `json:"localMessageId"`
	} `json:"message"`
	Info string `json:"info"`
}

// Send delivers one session message and returns the provider message id when
// the API reports one. Errors propagate to the caller; there is no retry.
func (c *Client) Send(ctx context.Context, number, text string) (string, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" || strings.TrimSpace(c.cfg.Token) == "" {
		return "", fmt.Errorf("wati gateway not configured")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return "", fmt.Errorf("send: number is required")
	}

	endpoint := fmt.Sprintf(
		"%s/api/v1/sendSessionMessage/%s?messageText=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(number),
		url.QueryEscape(text),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.Token))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wati send: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("wati send read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("wati send failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Some deployments answer with non-JSON bodies on success.
		c.logger.Debug("wati response not json", "body", strings.TrimSpace(string(respBody)))
		return "", nil
	}
	if !parsed.Result && strings.TrimSpace(parsed.Info) != "" {
		return "", fmt.Errorf("wati send rejected: %s", parsed.Info)
	}
	if id := strings.TrimSpace(parsed.Message.WhatsappMessageID); id != "" {
		return id, nil
	}
	return strings.TrimSpace(parsed.Message.LocalMessageID), nil
}
