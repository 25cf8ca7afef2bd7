package pipeline

import (
	"context"
	"time"
)

type EventType string

const (
	EventTurnStarted   EventType = "turn.started"
	EventChunkQueued   EventType = "chunk.queued"
	EventChunkPlayed   EventType = "chunk.played"
	EventChunkFailed   EventType = "chunk.failed"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"
)

// Event describes one step of a turn. Text carries the user message for
// turn.started, the chunk for chunk events and the full reply for
// turn.completed.
type Event struct {
	Type      EventType
	SessionID string
	TurnID    string
	Index     int
	Text      string
	Stage     Stage
	Err       error
	Stats     Stats
	Time      time.Time
}

// Observer receives turn events. Chunk events arrive from the worker
// goroutine, everything else from the caller of RunTurn, so implementations
// must be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to every non-nil observer in order.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, ev)
		}
	}
}
