package eventstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/loqalabs/loqa-converse/internal/pipeline"
)

// Recorder persists completed turns as message events so a session can be
// listed and resumed later. Failed turns and dropped chunks are kept as
// diagnostic events only.
type Recorder struct {
	store *Store
	log   *slog.Logger

	mu      sync.Mutex
	pending map[string]string // turn ID -> user text
}

func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		log:     log.With(slog.String("component", "recorder")),
		pending: make(map[string]string),
	}
}

type turnPayload struct {
	Stage   string `json:"stage,omitempty"`
	Error   string `json:"error,omitempty"`
	Index   int    `json:"index,omitempty"`
	Played  int    `json:"played"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

func (r *Recorder) Observe(ctx context.Context, ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventTurnStarted:
		r.mu.Lock()
		r.pending[ev.TurnID] = ev.Text
		r.mu.Unlock()
	case pipeline.EventTurnCompleted:
		user := r.take(ev.TurnID)
		r.append(ctx, Event{SessionID: ev.SessionID, TurnID: ev.TurnID, Type: TypeMessage, Role: string(conversation.RoleUser), Content: user, CreatedAt: ev.Time})
		r.append(ctx, Event{SessionID: ev.SessionID, TurnID: ev.TurnID, Type: TypeMessage, Role: string(conversation.RoleAssistant), Content: ev.Text, CreatedAt: ev.Time})
		r.append(ctx, Event{SessionID: ev.SessionID, TurnID: ev.TurnID, Type: TypeTurnCompleted, Payload: r.payload(ev), CreatedAt: ev.Time})
	case pipeline.EventTurnFailed:
		user := r.take(ev.TurnID)
		r.append(ctx, Event{SessionID: ev.SessionID, TurnID: ev.TurnID, Type: TypeTurnFailed, Content: user, Payload: r.payload(ev), CreatedAt: ev.Time})
	case pipeline.EventChunkFailed:
		r.append(ctx, Event{SessionID: ev.SessionID, TurnID: ev.TurnID, Type: TypeChunkFailed, Content: ev.Text, Payload: r.payload(ev), CreatedAt: ev.Time})
	}
}

// RecordReset marks the point where the conversation was cleared.
func (r *Recorder) RecordReset(ctx context.Context, sessionID string) {
	r.append(ctx, Event{SessionID: sessionID, Type: TypeReset})
}

func (r *Recorder) take(turnID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	text := r.pending[turnID]
	delete(r.pending, turnID)
	return text
}

func (r *Recorder) payload(ev pipeline.Event) []byte {
	p := turnPayload{
		Stage:   string(ev.Stage),
		Index:   ev.Index,
		Played:  ev.Stats.Played,
		Failed:  ev.Stats.Failed,
		Skipped: ev.Stats.Skipped,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	data, err := sonic.Marshal(p)
	if err != nil {
		r.log.Warn("encode event payload", slog.String("error", err.Error()))
		return nil
	}
	return data
}

func (r *Recorder) append(ctx context.Context, evt Event) {
	if err := r.store.AppendEvent(ctx, evt); err != nil {
		r.log.Warn("failed to record event",
			slog.String("type", evt.Type),
			slog.String("session_id", evt.SessionID),
			slog.String("error", err.Error()),
		)
	}
}
