package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setKeys(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
}

func TestLoadDefaults(t *testing.T) {
	setKeys(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.MinChunkLen != 1000 || cfg.Pipeline.MaxChunkLen != 2000 {
		t.Fatalf("unexpected chunk thresholds %+v", cfg.Pipeline)
	}
	if cfg.LLM.Model != "gpt-4.1-nano" {
		t.Fatalf("expected default model, got %s", cfg.LLM.Model)
	}
	if cfg.TTS.APIKey != "el-test" || cfg.LLM.APIKey != "sk-test" || cfg.STT.APIKey != "sk-test" {
		t.Fatalf("expected api keys from environment")
	}
}

func TestDefaultsRequireKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELEVENLABS_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestEnvOverrides(t *testing.T) {
	setKeys(t)
	t.Setenv("LOQA_BUS_ENABLED", "true")
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_EMBEDDED", "false")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("LOQA_LLM_MODEL", "gpt-4.1")
	t.Setenv("LOQA_TTS_VOICE", "calm")
	t.Setenv("LOQA_PIPELINE_MIN_CHUNK_LEN", "200")
	t.Setenv("LOQA_PIPELINE_MAX_CHUNK_LEN", "400")
	t.Setenv("LOQA_AUDIO_MIN_RECORD_SECONDS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Bus.Enabled || cfg.Bus.Embedded {
		t.Fatalf("expected external bus enabled")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.LLM.Model != "gpt-4.1" || cfg.TTS.Voice != "calm" {
		t.Fatalf("expected model and voice overrides")
	}
	if cfg.Pipeline.MinChunkLen != 200 || cfg.Pipeline.MaxChunkLen != 400 {
		t.Fatalf("expected pipeline overrides, got %+v", cfg.Pipeline)
	}
	if cfg.Audio.MinRecordSeconds != 2.5 {
		t.Fatalf("expected min record override, got %v", cfg.Audio.MinRecordSeconds)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa.yaml")
	yaml := `
llm:
  mode: ollama
  model: llama3.2:latest
stt:
  mode: mock
tts:
  mode: mock
  voice: professional
pipeline:
  min_chunk_len: 10
  max_chunk_len: 20
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Mode != "ollama" || cfg.LLM.Endpoint != "http://localhost:11434" {
		t.Fatalf("expected ollama with default endpoint, got %+v", cfg.LLM)
	}
	if cfg.TTS.Voice != "professional" || cfg.Pipeline.MaxChunkLen != 20 {
		t.Fatalf("unexpected file values")
	}
}

func TestLoadMissingFile(t *testing.T) {
	setKeys(t)
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(missing); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadOptional(missing); err != nil {
		t.Fatalf("optional load should fall back to defaults: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	base := Default()
	base.LLM.Mode, base.STT.Mode, base.TTS.Mode = "mock", "mock", "mock"

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown model", func(c *Config) { c.LLM.Mode = "openai"; c.LLM.APIKey = "k"; c.LLM.Model = "gpt-2" }, "llm.model"},
		{"unknown voice", func(c *Config) { c.TTS.Voice = "pirate" }, "tts.voice"},
		{"max below min", func(c *Config) { c.Pipeline.MaxChunkLen = 10 }, "max_chunk_len"},
		{"exec without command", func(c *Config) { c.TTS.Mode = "exec" }, "tts.command"},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }, "retention_mode"},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.TraceExporter = "otlp" }, "otlp_endpoint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
	if err := Validate(base); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
}

func TestStreamingTTSUsesElevenLabsKey(t *testing.T) {
	setKeys(t)
	t.Setenv("LOQA_TTS_MODE", "elevenlabs_ws")
	t.Setenv("LOQA_TTS_OUTPUT_FORMAT", "pcm_24000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.Mode != "elevenlabs_ws" || cfg.TTS.APIKey != "el-test" || cfg.TTS.OutputFormat != "pcm_24000" {
		t.Fatalf("unexpected tts config %+v", cfg.TTS)
	}
}
