package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Synthesizer for tests and offline runs. SynthesizeFunc
// overrides the default of returning silent PCM.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text, voiceID string) (Audio, error)
	Latency        time.Duration

	mu    sync.Mutex
	calls []string
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return Audio{}, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voiceID)
	}
	// ~20ms of 24kHz PCM16 silence per character.
	return Audio{
		Data:       make([]byte, len(text)*960),
		Encoding:   EncodingPCM24,
		SampleRate: 24000,
		Channels:   1,
	}, nil
}

// Calls returns the texts synthesized so far, in call order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
