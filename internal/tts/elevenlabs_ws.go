package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsStreamURL  = "wss://api.elevenlabs.io/v1/text-to-speech"
	providerElevenLabsWS = "elevenlabs_ws"
)

// ElevenLabsStreamConfig configures the stream-input synthesizer.
type ElevenLabsStreamConfig struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string
	Timeout      time.Duration
}

// ElevenLabsStream synthesizes each chunk over the ElevenLabs stream-input
// websocket and collects the audio frames until the final message.
type ElevenLabsStream struct {
	cfg    ElevenLabsStreamConfig
	dialer websocket.Dialer
	logger *slog.Logger
}

type wsInitMessage struct {
	Text             string                 `json:"text"`
	VoiceSettings    elevenLabsVoiceSetting `json:"voice_settings"`
	GenerationConfig wsGenerationConfig     `json:"generation_config"`
}

type wsGenerationConfig struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule"`
}

type wsTextMessage struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

type wsServerMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func NewElevenLabsStream(cfg ElevenLabsStreamConfig, logger *slog.Logger) (*ElevenLabsStream, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsStreamURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_turbo_v2_5"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = string(EncodingPCM24)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ElevenLabsStream{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger: logger.With(slog.String("component", "tts.elevenlabs_ws")),
	}, nil
}

func (e *ElevenLabsStream) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	if voiceID == "" {
		return Audio{}, ErrNoVoiceID
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	start := time.Now()

	endpoint := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.cfg.BaseURL, voiceID, url.QueryEscape(e.cfg.ModelID), url.QueryEscape(e.cfg.OutputFormat))
	header := http.Header{"xi-api-key": {e.cfg.APIKey}}

	conn, resp, err := e.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return Audio{}, &APIError{StatusCode: resp.StatusCode, Message: resp.Status, Provider: providerElevenLabsWS}
		}
		return Audio{}, WrapError(providerElevenLabsWS, fmt.Errorf("dial: %w", err))
	}
	defer conn.Close()

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	messages := []any{
		wsInitMessage{
			Text:             " ",
			VoiceSettings:    elevenLabsVoiceSetting{Stability: 0.5, SimilarityBoost: 0.75},
			GenerationConfig: wsGenerationConfig{ChunkLengthSchedule: []int{120, 160, 250, 290}},
		},
		wsTextMessage{Text: text + " ", Flush: true},
		wsTextMessage{Text: ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return Audio{}, WrapError(providerElevenLabsWS, fmt.Errorf("send: %w", err))
		}
	}

	var buf bytes.Buffer
	for {
		var msg wsServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return Audio{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && buf.Len() > 0 {
				break
			}
			return Audio{}, WrapError(providerElevenLabsWS, fmt.Errorf("receive: %w", err))
		}
		if msg.Error != "" || (msg.Message != "" && msg.Audio == "") {
			detail := msg.Message
			if detail == "" {
				detail = msg.Error
			}
			return Audio{}, &APIError{StatusCode: msg.Code, Message: detail, Provider: providerElevenLabsWS}
		}
		if msg.Audio != "" {
			frame, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return Audio{}, WrapError(providerElevenLabsWS, fmt.Errorf("decode audio: %w", err))
			}
			buf.Write(frame)
		}
		if msg.IsFinal {
			break
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if buf.Len() == 0 {
		return Audio{}, WrapError(providerElevenLabsWS, ErrEmptyAudio)
	}
	e.logger.Debug("synthesized audio",
		slog.Int("chars", len(text)),
		slog.Int("bytes", buf.Len()),
		slog.Duration("latency", time.Since(start)),
	)
	encoding, rate := EncodingFromOutputFormat(e.cfg.OutputFormat)
	return Audio{Data: buf.Bytes(), Encoding: encoding, SampleRate: rate, Channels: 1}, nil
}
