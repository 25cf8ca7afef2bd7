package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAIConfig configures the OpenAI speech synthesizer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAISpeech synthesizes MP3 audio with the OpenAI speech endpoint.
type OpenAISpeech struct {
	client *openai.Client
	model  openai.SpeechModel
	logger *slog.Logger
}

func NewOpenAISpeech(cfg OpenAIConfig, logger *slog.Logger) (*OpenAISpeech, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := openai.TTSModel1
	if cfg.Model != "" {
		model = openai.SpeechModel(cfg.Model)
	}
	return &OpenAISpeech{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger.With(slog.String("component", "tts.openai")),
	}, nil
}

func (o *OpenAISpeech) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	if voiceID == "" {
		return Audio{}, ErrNoVoiceID
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voiceID),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return Audio{}, WrapError(providerOpenAI, fmt.Errorf("create speech: %w", err))
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Audio{}, WrapError(providerOpenAI, fmt.Errorf("read speech: %w", err))
	}
	if len(data) == 0 {
		return Audio{}, WrapError(providerOpenAI, ErrEmptyAudio)
	}
	o.logger.Debug("synthesized audio", slog.Int("chars", len(text)), slog.Int("bytes", len(data)))
	return Audio{Data: data, Encoding: EncodingMP3, SampleRate: 24000, Channels: 1}, nil
}
