package protocol

import "time"

// TurnEvent is published on the bus for every step of a conversational turn.
type TurnEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Index     int       `json:"index,omitempty"`
	Text      string    `json:"text,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Played    int       `json:"played,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Skipped   int       `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTurnStarted   = "turn.started"
	SubjectTurnCompleted = "turn.completed"
	SubjectTurnFailed    = "turn.failed"
	SubjectChunkQueued   = "chunk.queued"
	SubjectChunkPlayed   = "chunk.played"
	SubjectChunkFailed   = "chunk.failed"
)

// Subject scopes an event subject under prefix, e.g. "converse.turn.started".
func Subject(prefix, event string) string {
	if prefix == "" {
		return event
	}
	return prefix + "." + event
}

// Wildcard matches every event under prefix.
func Wildcard(prefix string) string {
	return Subject(prefix, ">")
}
