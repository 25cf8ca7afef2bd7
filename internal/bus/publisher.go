package bus

import (
	"context"
	"log/slog"

	"github.com/loqalabs/loqa-converse/internal/pipeline"
	"github.com/loqalabs/loqa-converse/internal/protocol"
)

// EventPublisher forwards pipeline events to the bus. Publish failures are
// logged and never affect the turn.
type EventPublisher struct {
	client *Client
	prefix string
	log    *slog.Logger
}

func NewEventPublisher(client *Client, prefix string, log *slog.Logger) *EventPublisher {
	return &EventPublisher{
		client: client,
		prefix: prefix,
		log:    log.With(slog.String("component", "bus-publisher")),
	}
}

func (p *EventPublisher) Observe(_ context.Context, ev pipeline.Event) {
	msg := protocol.TurnEvent{
		Type:      string(ev.Type),
		SessionID: ev.SessionID,
		TurnID:    ev.TurnID,
		Index:     ev.Index,
		Text:      ev.Text,
		Stage:     string(ev.Stage),
		Played:    ev.Stats.Played,
		Failed:    ev.Stats.Failed,
		Skipped:   ev.Stats.Skipped,
		Timestamp: ev.Time,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	subject := protocol.Subject(p.prefix, string(ev.Type))
	if err := p.client.Publish(subject, ev.SessionID, msg); err != nil {
		p.log.Warn("failed to publish turn event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
