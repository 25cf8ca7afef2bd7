// Package pipeline runs one conversational turn: it streams the model reply,
// cuts it into chunks and speaks each chunk while the rest of the reply is
// still arriving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-converse/internal/chunker"
	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/loqalabs/loqa-converse/internal/llm"
	"github.com/loqalabs/loqa-converse/internal/recording"
	"github.com/loqalabs/loqa-converse/internal/stt"
	"github.com/loqalabs/loqa-converse/internal/tts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	LLM         llm.Client
	Model       string
	Synthesizer tts.Synthesizer
	Player      Player
	// Transcriber is only needed by RespondToSpeech.
	Transcriber stt.Transcriber
	MinChunkLen int
	MaxChunkLen int
	// Echo receives the reply as it streams, prefixed with "AI: ".
	Echo     io.Writer
	Observer Observer
	Logger   *slog.Logger
}

type Pipeline struct {
	llm         llm.Client
	model       string
	synth       tts.Synthesizer
	player      Player
	transcriber stt.Transcriber
	minLen      int
	maxLen      int
	echo        io.Writer
	observer    Observer
	logger      *slog.Logger
	ins         instruments
}

// Result is the outcome of one turn. Chunks counts what was queued; Stats
// says what became of each of them.
type Result struct {
	TurnID string
	Text   string
	Chunks int
	Stats  Stats
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, errors.New("pipeline: llm client required")
	}
	if cfg.Synthesizer == nil {
		return nil, errors.New("pipeline: synthesizer required")
	}
	if cfg.Player == nil {
		return nil, errors.New("pipeline: player required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		llm:         cfg.LLM,
		model:       cfg.Model,
		synth:       cfg.Synthesizer,
		player:      cfg.Player,
		transcriber: cfg.Transcriber,
		minLen:      cfg.MinChunkLen,
		maxLen:      cfg.MaxChunkLen,
		echo:        cfg.Echo,
		observer:    cfg.Observer,
		logger:      logger.With(slog.String("component", "pipeline")),
		ins:         newInstruments(),
	}, nil
}

// RunTurn appends userText to session, speaks the streamed reply and, once
// every chunk has been played or dropped, records the reply as the
// assistant message.
func (p *Pipeline) RunTurn(ctx context.Context, session *conversation.Session, userText, voiceID string) (string, error) {
	res, err := p.Turn(ctx, session, userText, voiceID)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Turn is RunTurn with the per-turn details kept. On a stream failure
// Result still describes what was spoken.
func (p *Pipeline) Turn(ctx context.Context, session *conversation.Session, userText, voiceID string) (Result, error) {
	res := Result{TurnID: uuid.NewString()}
	ctx, span := p.ins.tracer.Start(ctx, "pipeline.turn", trace.WithAttributes(
		attribute.String("session.id", session.ID()),
		attribute.String("turn.id", res.TurnID),
		attribute.String("llm.model", p.model),
	))
	defer span.End()
	logger := p.logger.With(slog.String("session_id", session.ID()), slog.String("turn_id", res.TurnID))

	q := NewQueue()
	worker := p.newWorker(q, voiceID, session.ID(), res.TurnID)
	done := make(chan Stats, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	session.AppendUser(userText)
	p.notify(ctx, session.ID(), res.TurnID, Event{Type: EventTurnStarted, Text: userText})
	logger.Debug("turn started", slog.Int("history", session.Len()))

	acc := chunker.New(p.minLen, p.maxLen)
	var full strings.Builder
	push := func(text string) {
		c := Chunk{Index: res.Chunks, Text: text}
		res.Chunks++
		q.Push(c)
		p.ins.queued.Add(ctx, 1)
		p.notify(ctx, session.ID(), res.TurnID, Event{Type: EventChunkQueued, Index: c.Index, Text: c.Text})
	}

	streamErr := p.stream(ctx, session.History(), func(delta string) {
		full.WriteString(delta)
		for _, c := range acc.Feed(delta) {
			push(c)
		}
	})
	if streamErr == nil {
		if rest, ok := acc.Flush(); ok {
			push(rest)
		}
	}
	q.Shutdown()
	res.Stats = <-done
	res.Text = full.String()

	span.SetAttributes(
		attribute.Int("chunks.played", res.Stats.Played),
		attribute.Int("chunks.failed", res.Stats.Failed),
	)

	if streamErr != nil {
		err := &TurnError{Stage: StageStream, Err: streamErr}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.ins.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		logger.Warn("turn failed", slog.String("stage", string(StageStream)), slogError(streamErr))
		p.notify(ctx, session.ID(), res.TurnID, Event{Type: EventTurnFailed, Stage: StageStream, Err: streamErr, Stats: res.Stats})
		return res, err
	}

	session.AppendAssistant(res.Text)
	p.ins.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	logger.Info("turn completed",
		slog.Int("chunks", res.Chunks),
		slog.Int("played", res.Stats.Played),
		slog.Int("failed", res.Stats.Failed),
	)
	p.notify(ctx, session.ID(), res.TurnID, Event{Type: EventTurnCompleted, Text: res.Text, Stats: res.Stats})
	return res, nil
}

// stream feeds every non-empty delta of the reply to emit and echoes it.
func (p *Pipeline) stream(ctx context.Context, history []conversation.Message, emit func(string)) error {
	s, err := p.llm.StreamChat(ctx, history, p.model)
	if err != nil {
		return err
	}
	defer s.Close()

	echoed := false
	defer func() {
		if echoed {
			fmt.Fprintln(p.echo)
		}
	}()
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if delta == "" {
			continue
		}
		if p.echo != nil {
			if !echoed {
				fmt.Fprint(p.echo, "AI: ")
				echoed = true
			}
			fmt.Fprint(p.echo, delta)
		}
		emit(delta)
	}
}

// RespondToSpeech transcribes rec and, unless it is blank, runs a turn with
// the transcript. Nothing is appended to session when transcription fails.
func (p *Pipeline) RespondToSpeech(ctx context.Context, session *conversation.Session, rec recording.Recording, voiceID string) (transcript, reply string, err error) {
	if p.transcriber == nil {
		return "", "", &TurnError{Stage: StageTranscription, Err: errors.New("no transcriber configured")}
	}
	text, err := p.transcriber.Transcribe(ctx, rec)
	if err != nil {
		p.logger.Warn("transcription failed", slog.String("session_id", session.ID()), slogError(err))
		return "", "", &TurnError{Stage: StageTranscription, Err: err}
	}
	transcript = strings.TrimSpace(text)
	if transcript == "" {
		return "", "", ErrNoSpeech
	}
	if p.echo != nil {
		fmt.Fprintf(p.echo, "You: %s\n", transcript)
	}
	reply, err = p.RunTurn(ctx, session, transcript, voiceID)
	return transcript, reply, err
}

func (p *Pipeline) notify(ctx context.Context, sessionID, turnID string, ev Event) {
	if p.observer == nil {
		return
	}
	ev.SessionID = sessionID
	ev.TurnID = turnID
	ev.Time = time.Now().UTC()
	p.observer.Observe(ctx, ev)
}
