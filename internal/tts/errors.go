package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned when a hosted provider has no API key.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoiceID is returned when a request carries no voice.
	ErrNoVoiceID = errors.New("tts: voice ID required")

	// ErrUnknownVoice is returned when a voice name has no mapping.
	ErrUnknownVoice = errors.New("tts: unknown voice")

	// ErrEmptyAudio is returned when a provider answers without audio.
	ErrEmptyAudio = errors.New("tts: provider returned no audio")
)

// APIError is an HTTP error response from a TTS API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limits and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError wraps err with provider context; nil stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
