package llm

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-converse/internal/conversation"
)

// Mock replays scripted deltas. With no Deltas it answers with a short
// canned reply quoting the last user message.
type Mock struct {
	Deltas []string
	// StreamErr is returned by Recv once every delta has been delivered.
	StreamErr error
	// OpenErr fails StreamChat itself.
	OpenErr error
	Delay   time.Duration

	mu   sync.Mutex
	seen [][]conversation.Message
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) StreamChat(ctx context.Context, messages []conversation.Message, model string) (Stream, error) {
	m.mu.Lock()
	m.seen = append(m.seen, append([]conversation.Message(nil), messages...))
	m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	deltas := m.Deltas
	if len(deltas) == 0 {
		deltas = cannedReply(messages)
	}
	return &mockStream{ctx: ctx, deltas: deltas, err: m.StreamErr, delay: m.Delay}, nil
}

// Requests returns the message lists passed to StreamChat so far.
func (m *Mock) Requests() [][]conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]conversation.Message(nil), m.seen...)
}

func cannedReply(messages []conversation.Message) []string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	return strings.SplitAfter("I hear you. You said: "+last+". Tell me more.", " ")
}

type mockStream struct {
	ctx    context.Context
	deltas []string
	err    error
	delay  time.Duration
}

func (s *mockStream) Recv() (string, error) {
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if len(s.deltas) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *mockStream) Close() error { return nil }
