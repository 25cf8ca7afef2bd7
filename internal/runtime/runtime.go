// Package runtime assembles a conversation runtime from configuration: the
// speech, model and synthesis backends, the pipeline, persistence, the
// event bus and telemetry.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/loqalabs/loqa-converse/internal/bus"
	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/loqalabs/loqa-converse/internal/eventstore"
	"github.com/loqalabs/loqa-converse/internal/natsserver"
	"github.com/loqalabs/loqa-converse/internal/pipeline"
	"github.com/loqalabs/loqa-converse/internal/protocol"
	"github.com/loqalabs/loqa-converse/internal/recording"
)

// Options customise New beyond what configuration covers.
type Options struct {
	// Echo receives the streamed reply text.
	Echo io.Writer
	// Player replaces the player selected by audio.playback.
	Player pipeline.Player
}

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	pipeline *pipeline.Pipeline
	player   pipeline.Player
	voiceID  string
	store    *eventstore.Store
	recorder *eventstore.Recorder
	nats     *natsserver.EmbeddedServer
	bus      *bus.Client

	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup
}

// New builds every component named by cfg. On error anything already
// started is shut down again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (_ *Runtime, err error) {
	r := &Runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = r.Close(context.Background())
		}
	}()

	shutdownTelemetry, metricHandler, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	if cfg.Telemetry.PrometheusBind != "" {
		if err := r.startHTTP(cfg.Telemetry.PrometheusBind, metricHandler); err != nil {
			return nil, err
		}
	}

	r.store, err = eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	r.recorder = eventstore.NewRecorder(r.store, logger)
	observers := pipeline.Observers{r.recorder}

	if cfg.Bus.Enabled {
		publisher, err := r.connectBus(ctx)
		if err != nil {
			return nil, err
		}
		observers = append(observers, publisher)
	}

	transcriber, err := newTranscriber(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("stt backend: %w", err)
	}
	model, err := newLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm backend: %w", err)
	}
	synth, err := newSynthesizer(cfg.TTS, logger)
	if err != nil {
		return nil, fmt.Errorf("tts backend: %w", err)
	}
	r.player = opts.Player
	if r.player == nil {
		if r.player, err = newPlayer(cfg.Audio, logger); err != nil {
			return nil, err
		}
	}
	if r.voiceID, err = resolveVoice(cfg.TTS, cfg.TTS.Voice); err != nil {
		return nil, err
	}

	r.pipeline, err = pipeline.New(pipeline.Config{
		LLM:         model,
		Model:       cfg.LLM.Model,
		Synthesizer: synth,
		Player:      r.player,
		Transcriber: transcriber,
		MinChunkLen: cfg.Pipeline.MinChunkLen,
		MaxChunkLen: cfg.Pipeline.MaxChunkLen,
		Echo:        opts.Echo,
		Observer:    observers,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	r.ready.Store(true)
	logger.Info("runtime started",
		slog.String("llm", cfg.LLM.Mode),
		slog.String("model", cfg.LLM.Model),
		slog.String("stt", cfg.STT.Mode),
		slog.String("tts", cfg.TTS.Mode),
		slog.String("voice", cfg.TTS.Voice),
	)
	return r, nil
}

func (r *Runtime) connectBus(ctx context.Context) (*bus.EventPublisher, error) {
	busCfg := r.cfg.Bus
	ns, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.nats = ns
	if ns != nil {
		busCfg.Servers = []string{ns.ClientURL()}
	}

	r.bus, err = bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return nil, err
	}
	var maxAge time.Duration
	if days := r.cfg.EventStore.RetentionDays; days > 0 {
		maxAge = time.Duration(days) * 24 * time.Hour
	}
	if err := r.bus.EnsureStream(streamName(busCfg.SubjectPrefix), []string{protocol.Wildcard(busCfg.SubjectPrefix)}, maxAge); err != nil {
		r.logger.Warn("turn events will not be retained", slog.String("error", err.Error()))
	}
	return bus.NewEventPublisher(r.bus, busCfg.SubjectPrefix, r.logger), nil
}

func streamName(prefix string) string {
	if prefix == "" {
		prefix = "converse"
	}
	return strings.ToUpper(strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(prefix))
}

func (r *Runtime) startHTTP(addr string, metrics http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.httpServer = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.handler(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("metrics server listening", slog.String("addr", r.httpServer.Addr))
	return nil
}

func (r *Runtime) handler(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

// Addr is the metrics server address, or "" when it is disabled.
func (r *Runtime) Addr() string {
	if r.httpServer == nil {
		return ""
	}
	return r.httpServer.Addr
}

func (r *Runtime) Pipeline() *pipeline.Pipeline { return r.pipeline }

func (r *Runtime) Store() *eventstore.Store { return r.store }

func (r *Runtime) Config() config.Config { return r.cfg }

// VoiceID is the provider voice for tts.voice.
func (r *Runtime) VoiceID() string { return r.voiceID }

// StartSession opens a new conversation seeded with the system prompt.
func (r *Runtime) StartSession(ctx context.Context) (*conversation.Session, error) {
	s := conversation.NewSession(r.cfg.Conversation.SystemPrompt)
	if err := r.registerSession(ctx, s.ID()); err != nil {
		return nil, err
	}
	return s, nil
}

// ResumeSession rebuilds a stored conversation from its last reset onwards.
func (r *Runtime) ResumeSession(ctx context.Context, id string) (*conversation.Session, error) {
	msgs, err := r.store.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	s := conversation.Restore(id, r.cfg.Conversation.SystemPrompt, msgs)
	if err := r.registerSession(ctx, id); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Runtime) registerSession(ctx context.Context, id string) error {
	return r.store.AppendSession(ctx, eventstore.Session{
		ID:           id,
		SystemPrompt: r.cfg.Conversation.SystemPrompt,
		Model:        r.cfg.LLM.Model,
		Voice:        r.cfg.TTS.Voice,
	})
}

// ResetSession clears the conversation back to its system prompt.
func (r *Runtime) ResetSession(ctx context.Context, s *conversation.Session) {
	s.Reset()
	r.recorder.RecordReset(ctx, s.ID())
}

// Replay plays a saved recording through the configured player.
func (r *Runtime) Replay(ctx context.Context, path string) error {
	rec, err := recording.ReadWAV(path)
	if err != nil {
		return err
	}
	return r.player.PlayBlocking(ctx, audio.FromRecording(rec))
}

// Close stops everything New started, in reverse order.
func (r *Runtime) Close(ctx context.Context) error {
	r.ready.Store(false)
	var errs []error
	if r.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		cancel()
		r.wg.Wait()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.nats.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event store: %w", err))
		}
	}
	if r.telemetryClose != nil {
		if err := r.telemetryClose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
