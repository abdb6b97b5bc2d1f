package reasoning

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("reasoning unavailable")

type Turn struct {
	Role    string
	Content string
}

// Request carries everything prompt assembly needs for one reply: the fresh
// user text, prior turns in chronological order, the knowledge text that
// seeds the system prompt, and optional retrieved document context.
type Request struct {
	ConversationID string
	Text           string
	History        []Turn
	Knowledge      string
	Context        string
}

type Result struct {
	Text string
}

type Engine interface {
	Generate(ctx context.Context, request Request) (Result, error)
}
