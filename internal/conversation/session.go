// Package conversation holds the chat transcript sent to the model on
// every turn.
package conversation

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry of the transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session owns an append-only history whose first entry is the system
// prompt. It is not safe for concurrent use.
type Session struct {
	id       string
	messages []Message
}

// NewSession seeds a history with the system prompt.
func NewSession(systemPrompt string) *Session {
	return &Session{
		id:       uuid.NewString(),
		messages: []Message{{Role: RoleSystem, Content: systemPrompt}},
	}
}

// Restore rebuilds a session from stored messages. The first message must
// be the system prompt; otherwise systemPrompt is prepended.
func Restore(id, systemPrompt string, messages []Message) *Session {
	s := &Session{id: id}
	if len(messages) == 0 || messages[0].Role != RoleSystem {
		s.messages = append(s.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	s.messages = append(s.messages, messages...)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) AppendUser(text string) {
	s.messages = append(s.messages, Message{Role: RoleUser, Content: text})
}

func (s *Session) AppendAssistant(text string) {
	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: text})
}

// Reset drops everything but the system prompt.
func (s *Session) Reset() {
	if len(s.messages) == 0 {
		panic("conversation: reset on a session without a system message")
	}
	s.messages = s.messages[:1:1]
}

// History returns a copy of the transcript in conversation order.
func (s *Session) History() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Len() int { return len(s.messages) }
