package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/llm"
	"github.com/loqalabs/loqa-converse/internal/pipeline"
	"github.com/loqalabs/loqa-converse/internal/stt"
	"github.com/loqalabs/loqa-converse/internal/tts"
)

const playbackSampleRate = 44100

func newTranscriber(cfg config.STTConfig) (stt.Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return stt.NewMockTranscriber(""), nil
	case "openai":
		return stt.NewOpenAITranscriber(stt.OpenAIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Language: cfg.Language,
		})
	case "exec":
		return stt.NewExecTranscriber(cfg.Command, cfg.Language)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

func newLLM(cfg config.LLMConfig) (llm.Client, error) {
	opts := llm.Options{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	switch cfg.Mode {
	case "mock":
		return llm.NewMock(), nil
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Options: opts})
	case "ollama":
		return llm.NewOllamaClient(cfg.Endpoint, opts), nil
	case "exec":
		return llm.NewExecClient(cfg.Command, opts)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

func newSynthesizer(cfg config.TTSConfig, logger *slog.Logger) (tts.Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return tts.NewMock(), nil
	case "elevenlabs":
		return tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			ModelID:      cfg.ModelID,
			OutputFormat: cfg.OutputFormat,
			Timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
		}, logger)
	case "elevenlabs_ws":
		return tts.NewElevenLabsStream(tts.ElevenLabsStreamConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			ModelID:      cfg.ModelID,
			OutputFormat: cfg.OutputFormat,
			Timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
		}, logger)
	case "openai":
		return tts.NewOpenAISpeech(tts.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, logger)
	case "exec":
		return tts.NewExecSynth(cfg.Command, 24000, 1)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

// resolveVoice maps a configured voice name to the ID the synthesizer
// expects.
func resolveVoice(cfg config.TTSConfig, name string) (string, error) {
	defaults := tts.ElevenLabsVoices
	if cfg.Mode == "openai" {
		defaults = tts.OpenAIVoices
	}
	return tts.ResolveVoice(name, cfg.Voices, defaults)
}

func newPlayer(cfg config.AudioConfig, logger *slog.Logger) (pipeline.Player, error) {
	switch cfg.Playback {
	case "speaker", "":
		return audio.NewPlayer(playbackSampleRate, logger), nil
	case "discard":
		return audio.DiscardPlayer{}, nil
	default:
		return nil, fmt.Errorf("unknown audio playback %q", cfg.Playback)
	}
}
