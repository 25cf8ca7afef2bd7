package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultSystemPrompt = "You are a compassionate and empathetic AI therapist. Respond naturally and conversationally, showing understanding and care. Your response will be spoken and not read, so make sure it sounds conversational."

// Models accepted for llm.model when llm.mode is openai.
var Models = []string{"gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano"}

// Voices accepted for tts.voice.
var Voices = []string{"therapist", "calm", "professional"}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type Config struct {
	RuntimeName  string             `yaml:"runtime_name"`
	Environment  string             `yaml:"environment"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Bus          BusConfig          `yaml:"bus"`
	EventStore   EventStoreConfig   `yaml:"event_store"`
	STT          STTConfig          `yaml:"stt"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	Audio        AudioConfig        `yaml:"audio"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Conversation ConversationConfig `yaml:"conversation"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Mode     string `yaml:"mode"` // mock, openai, exec
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Command  string `yaml:"command"`
	Language string `yaml:"language"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, openai, ollama, exec
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Mode         string            `yaml:"mode"` // mock, elevenlabs, elevenlabs_ws, openai, exec
	APIKey       string            `yaml:"api_key"`
	BaseURL      string            `yaml:"base_url"`
	Command      string            `yaml:"command"`
	Voice        string            `yaml:"voice"`
	Voices       map[string]string `yaml:"voices"`
	ModelID      string            `yaml:"model_id"`
	OutputFormat string            `yaml:"output_format"`
	TimeoutMS    int               `yaml:"timeout_ms"`
}

type AudioConfig struct {
	Playback         string  `yaml:"playback"` // speaker, discard
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
	MinRecordSeconds float64 `yaml:"min_record_seconds"`
	RecordingsDir    string  `yaml:"recordings_dir"`
}

type PipelineConfig struct {
	MinChunkLen int `yaml:"min_chunk_len"`
	MaxChunkLen int `yaml:"max_chunk_len"`
}

type ConversationConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-converse",
		Environment: "development",
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "converse",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-converse.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		STT: STTConfig{
			Mode:  "openai",
			Model: "whisper-1",
		},
		LLM: LLMConfig{
			Mode:        "openai",
			Endpoint:    "http://localhost:11434",
			Model:       "gpt-4.1-nano",
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Mode:         "elevenlabs",
			Voice:        "therapist",
			ModelID:      "eleven_multilingual_v2",
			OutputFormat: "mp3_44100_128",
			TimeoutMS:    30000,
		},
		Audio: AudioConfig{
			Playback:         "speaker",
			SampleRate:       16000,
			Channels:         1,
			MinRecordSeconds: 1,
			RecordingsDir:    "recordings",
		},
		Pipeline: PipelineConfig{
			MinChunkLen: 1000,
			MaxChunkLen: 2000,
		},
		Conversation: ConversationConfig{
			SystemPrompt: DefaultSystemPrompt,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as empty.
func LoadOptional(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

// Validate checks cfg after callers have changed it, e.g. from CLI flags.
func Validate(cfg Config) error { return validate(cfg) }

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "LOQA_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.STT.APIKey, "LOQA_STT_API_KEY")
	overrideString(&cfg.STT.BaseURL, "LOQA_STT_BASE_URL")
	overrideString(&cfg.STT.Model, "LOQA_STT_MODEL")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideString(&cfg.LLM.Mode, "LOQA_LLM_MODE")
	overrideString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.LLM.APIKey, "LOQA_LLM_API_KEY")
	overrideString(&cfg.LLM.BaseURL, "LOQA_LLM_BASE_URL")
	overrideString(&cfg.LLM.Endpoint, "LOQA_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "LOQA_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "LOQA_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "LOQA_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "LOQA_LLM_TEMPERATURE")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	if cfg.TTS.Mode == "openai" {
		overrideString(&cfg.TTS.APIKey, "OPENAI_API_KEY")
	} else {
		overrideString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	}
	overrideString(&cfg.TTS.APIKey, "LOQA_TTS_API_KEY")
	overrideString(&cfg.TTS.BaseURL, "LOQA_TTS_BASE_URL")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "LOQA_TTS_VOICE")
	overrideString(&cfg.TTS.ModelID, "LOQA_TTS_MODEL_ID")
	overrideString(&cfg.TTS.OutputFormat, "LOQA_TTS_OUTPUT_FORMAT")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_TTS_TIMEOUT_MS")
	overrideString(&cfg.Audio.Playback, "LOQA_AUDIO_PLAYBACK")
	overrideInt(&cfg.Audio.SampleRate, "LOQA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "LOQA_AUDIO_CHANNELS")
	overrideFloat(&cfg.Audio.MinRecordSeconds, "LOQA_AUDIO_MIN_RECORD_SECONDS")
	overrideString(&cfg.Audio.RecordingsDir, "LOQA_AUDIO_RECORDINGS_DIR")
	overrideInt(&cfg.Pipeline.MinChunkLen, "LOQA_PIPELINE_MIN_CHUNK_LEN")
	overrideInt(&cfg.Pipeline.MaxChunkLen, "LOQA_PIPELINE_MAX_CHUNK_LEN")
	overrideString(&cfg.Conversation.SystemPrompt, "LOQA_CONVERSATION_SYSTEM_PROMPT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "session", "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "openai":
		if cfg.STT.APIKey == "" {
			return errors.New("stt.api_key (or OPENAI_API_KEY) must be set when mode=openai")
		}
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|openai|exec")
	}
	switch cfg.LLM.Mode {
	case "mock":
	case "openai":
		if cfg.LLM.APIKey == "" {
			return errors.New("llm.api_key (or OPENAI_API_KEY) must be set when mode=openai")
		}
		if !oneOf(cfg.LLM.Model, Models) {
			return fmt.Errorf("llm.model must be one of %s", strings.Join(Models, "|"))
		}
	case "ollama":
		if cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
	case "exec":
		if cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
	default:
		return errors.New("llm.mode must be one of mock|openai|ollama|exec")
	}
	if cfg.LLM.Model == "" {
		return errors.New("llm.model must not be empty")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "elevenlabs", "elevenlabs_ws", "openai":
		if cfg.TTS.APIKey == "" {
			return fmt.Errorf("tts.api_key must be set when mode=%s", cfg.TTS.Mode)
		}
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of mock|elevenlabs|elevenlabs_ws|openai|exec")
	}
	if !oneOf(cfg.TTS.Voice, Voices) {
		return fmt.Errorf("tts.voice must be one of %s", strings.Join(Voices, "|"))
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	switch cfg.Audio.Playback {
	case "speaker", "discard":
	default:
		return errors.New("audio.playback must be one of speaker|discard")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.MinRecordSeconds < 0 {
		return errors.New("audio.min_record_seconds must be >= 0")
	}
	if cfg.Pipeline.MinChunkLen <= 0 {
		return errors.New("pipeline.min_chunk_len must be positive")
	}
	if cfg.Pipeline.MaxChunkLen < cfg.Pipeline.MinChunkLen {
		return errors.New("pipeline.max_chunk_len must be >= min_chunk_len")
	}
	if strings.TrimSpace(cfg.Conversation.SystemPrompt) == "" {
		return errors.New("conversation.system_prompt must not be empty")
	}
	return nil
}
