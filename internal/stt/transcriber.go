package stt

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-converse/internal/recording"
)

var ErrNoAPIKey = errors.New("stt: API key required")

// Transcriber turns one recorded utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, rec recording.Recording) (string, error)
}
