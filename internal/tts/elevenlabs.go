package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabsConfig configures the HTTP synthesizer.
type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string
	Timeout      time.Duration
}

// ElevenLabs synthesizes each chunk with one text-to-speech request.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *slog.Logger
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSetting `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSetting struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func NewElevenLabs(cfg ElevenLabsConfig, logger *slog.Logger) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "tts.elevenlabs")),
	}, nil
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	if voiceID == "" {
		return Audio{}, ErrNoVoiceID
	}
	start := time.Now()

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: &elevenLabsVoiceSetting{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return Audio{}, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.cfg.BaseURL, voiceID, e.cfg.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Audio{}, WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return Audio{}, WrapError(providerElevenLabs, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Audio{}, e.parseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}
	if len(data) == 0 {
		return Audio{}, WrapError(providerElevenLabs, ErrEmptyAudio)
	}

	e.logger.Debug("synthesized audio",
		slog.Int("chars", len(text)),
		slog.Int("bytes", len(data)),
		slog.Duration("latency", time.Since(start)),
		slog.String("model", e.cfg.ModelID),
	)

	encoding, rate := EncodingFromOutputFormat(e.cfg.OutputFormat)
	return Audio{Data: data, Encoding: encoding, SampleRate: rate, Channels: 1}, nil
}

func (e *ElevenLabs) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(bytes.TrimSpace(body))
	var parsed elevenLabsError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail.Message != "" {
		msg = parsed.Detail.Message
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg, Provider: providerElevenLabs}
}
