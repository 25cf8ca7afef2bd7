package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/loqalabs/loqa-converse/internal/pipeline"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	if cfg.RetentionMode == "" {
		cfg.RetentionMode = "session"
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	es, err := Open(ctx, config.EventStoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.AppendEvent(ctx, Event{SessionID: "s", Type: TypeMessage}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	if sessions, err := es.ListSessions(ctx, 10); err != nil || len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %v %v", sessions, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{})

	if err := es.AppendSession(ctx, Session{ID: "session-123", SystemPrompt: "sys", Model: "gpt-4.1-nano", Voice: "calm"}); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "session-123", Type: TypeMessage, Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "session-123", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Content != "hello" || events[0].Role != "user" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to round trip")
	}

	sessions, err := es.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Voice != "calm" || sessions[0].Model != "gpt-4.1-nano" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestEventRequiresSession(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{})
	if err := es.AppendEvent(context.Background(), Event{SessionID: "missing", Type: TypeMessage}); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestMessagesHonourReset(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{})
	_ = es.AppendSession(ctx, Session{ID: "s"})
	for _, e := range []Event{
		{SessionID: "s", Type: TypeMessage, Role: "user", Content: "one"},
		{SessionID: "s", Type: TypeMessage, Role: "assistant", Content: "uno"},
		{SessionID: "s", Type: TypeReset},
		{SessionID: "s", Type: TypeMessage, Role: "user", Content: "two"},
		{SessionID: "s", Type: TypeTurnFailed, Content: "ignored"},
	} {
		if err := es.AppendEvent(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := es.Messages(ctx, "s")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "two" || msgs[0].Role != conversation.RoleUser {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, Session{ID: "old-session"}); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "old-session", Type: TypeMessage}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, Session{ID: "new-session"}); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, _ := es.ListSessions(ctx, 10)
	if len(sessions) != 1 || sessions[0].ID != "new-session" {
		t.Fatalf("unexpected sessions after prune: %+v", sessions)
	}
}

func TestRecorderPersistsTurns(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{})
	_ = es.AppendSession(ctx, Session{ID: "s"})
	rec := NewRecorder(es, newLogger())

	rec.Observe(ctx, pipeline.Event{Type: pipeline.EventTurnStarted, SessionID: "s", TurnID: "t1", Text: "I can't sleep"})
	rec.Observe(ctx, pipeline.Event{Type: pipeline.EventChunkQueued, SessionID: "s", TurnID: "t1", Text: "ignored"})
	rec.Observe(ctx, pipeline.Event{Type: pipeline.EventChunkFailed, SessionID: "s", TurnID: "t1", Text: "Try this.", Err: errors.New("429")})
	rec.Observe(ctx, pipeline.Event{Type: pipeline.EventTurnCompleted, SessionID: "s", TurnID: "t1", Text: "Try this. Breathe.", Stats: pipeline.Stats{Played: 1, Failed: 1}})

	rec.Observe(ctx, pipeline.Event{Type: pipeline.EventTurnStarted, SessionID: "s", TurnID: "t2", Text: "hello?"})
	rec.Observe(ctx, pipeline.Event{Type: pipeline.EventTurnFailed, SessionID: "s", TurnID: "t2", Stage: pipeline.StageStream, Err: errors.New("reset")})

	msgs, err := es.Messages(ctx, "s")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "I can't sleep" || msgs[1].Content != "Try this. Breathe." {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	events, _ := es.ListSessionEvents(ctx, "s", -1)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []string{TypeChunkFailed, TypeMessage, TypeMessage, TypeTurnCompleted, TypeTurnFailed}
	if len(types) != len(want) {
		t.Fatalf("unexpected event types %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected event types %v", types)
		}
	}
	last := events[len(events)-1]
	if last.Content != "hello?" || len(last.Payload) == 0 {
		t.Fatalf("failed turn should keep the user text and error payload: %+v", last)
	}
	if len(rec.pending) != 0 {
		t.Fatalf("pending turns leaked: %v", rec.pending)
	}
}
