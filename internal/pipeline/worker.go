package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-converse/internal/tts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Player plays synthesized audio and returns only once playback has ended.
type Player interface {
	PlayBlocking(ctx context.Context, audio tts.Audio) error
}

// Stats summarises one worker run.
type Stats struct {
	Played  int
	Failed  int
	Skipped int
}

// Worker synthesizes and plays queued chunks one at a time, in order.
type Worker struct {
	queue     *Queue
	synth     tts.Synthesizer
	player    Player
	voiceID   string
	sessionID string
	turnID    string
	observer  Observer
	logger    *slog.Logger
	ins       instruments
}

func (p *Pipeline) newWorker(q *Queue, voiceID, sessionID, turnID string) *Worker {
	return &Worker{
		queue:     q,
		synth:     p.synth,
		player:    p.player,
		voiceID:   voiceID,
		sessionID: sessionID,
		turnID:    turnID,
		observer:  p.observer,
		logger:    p.logger.With(slog.String("turn_id", turnID)),
		ins:       p.ins,
	}
}

// Run drains the queue until the shutdown marker. A failing chunk is logged
// and skipped.
func (w *Worker) Run(ctx context.Context) Stats {
	var stats Stats
	for {
		chunk, ok := w.queue.Pop()
		if !ok {
			return stats
		}
		if strings.TrimSpace(chunk.Text) == "" {
			stats.Skipped++
			continue
		}
		if err := w.speak(ctx, chunk); err != nil {
			stats.Failed++
			w.ins.failed.Add(ctx, 1)
			w.logger.Warn("chunk dropped", slog.Int("index", chunk.Index), slogError(err))
			w.notify(ctx, Event{Type: EventChunkFailed, Index: chunk.Index, Text: chunk.Text, Err: err})
			continue
		}
		stats.Played++
		w.ins.played.Add(ctx, 1)
		w.notify(ctx, Event{Type: EventChunkPlayed, Index: chunk.Index, Text: chunk.Text})
	}
}

func (w *Worker) speak(ctx context.Context, chunk Chunk) (err error) {
	ctx, span := w.ins.tracer.Start(ctx, "pipeline.synthesize_chunk", trace.WithAttributes(
		attribute.Int("chunk.index", chunk.Index),
		attribute.Int("chunk.chars", len([]rune(chunk.Text))),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	audio, err := w.synth.Synthesize(ctx, chunk.Text, w.voiceID)
	w.ins.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Bool("ok", err == nil)))
	if err != nil {
		return fmt.Errorf("synthesize chunk %d: %w", chunk.Index, err)
	}
	if err := w.player.PlayBlocking(ctx, audio); err != nil {
		return fmt.Errorf("play chunk %d: %w", chunk.Index, err)
	}
	return nil
}

func (w *Worker) notify(ctx context.Context, ev Event) {
	if w.observer == nil {
		return
	}
	ev.SessionID = w.sessionID
	ev.TurnID = w.turnID
	ev.Time = time.Now().UTC()
	w.observer.Observe(ctx, ev)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
