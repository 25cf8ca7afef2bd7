package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-converse/internal/recording"
)

type mockTranscriber struct {
	text string
}

// NewMockTranscriber returns text for every recording, or a description of
// the recording when text is empty.
func NewMockTranscriber(text string) Transcriber {
	return &mockTranscriber{text: text}
}

func (m *mockTranscriber) Transcribe(_ context.Context, rec recording.Recording) (string, error) {
	if m.text != "" {
		return m.text, nil
	}
	return fmt.Sprintf("[mock transcript duration=%s]", rec.Duration()), nil
}
