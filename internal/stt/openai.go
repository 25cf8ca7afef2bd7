package stt

import (
	"context"
	"fmt"
	"os"

	"github.com/loqalabs/loqa-converse/internal/recording"
	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

type openAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAITranscriber transcribes with the Whisper endpoint.
func NewOpenAITranscriber(cfg OpenAIConfig) (Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &openAITranscriber{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: cfg.Language,
	}, nil
}

func (t *openAITranscriber) Transcribe(ctx context.Context, rec recording.Recording) (string, error) {
	path, err := recording.SaveTemp(rec)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Language: t.language,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return resp.Text, nil
}
