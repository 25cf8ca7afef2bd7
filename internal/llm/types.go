package llm

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-converse/internal/conversation"
)

var ErrNoAPIKey = errors.New("llm: API key required")

// Options tunes a completion request. Zero values leave the backend default.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Stream yields the text deltas of one assistant reply. Recv returns io.EOF
// once the reply is complete.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client defines a pluggable chat model backend.
type Client interface {
	StreamChat(ctx context.Context, messages []conversation.Message, model string) (Stream, error)
}
