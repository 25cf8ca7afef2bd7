package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/loqalabs/loqa-converse/internal/recording"
)

var ErrNotRecording = errors.New("audio: recorder not started")

// Recorder captures 16-bit PCM from the default input device between Start
// and Stop.
type Recorder struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	buf     []byte
	started time.Time
}

func NewRecorder(sampleRate, channels int) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &Recorder{sampleRate: sampleRate, channels: channels, ctx: ctx}, nil
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device != nil {
		return nil
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(r.channels)
	cfg.SampleRate = uint32(r.sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			r.mu.Lock()
			r.buf = append(r.buf, input...)
			r.mu.Unlock()
		},
	}
	device, err := malgo.InitDevice(r.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}
	r.buf = r.buf[:0]
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start audio device: %w", err)
	}
	r.device = device
	r.started = time.Now()
	return nil
}

// Elapsed reports how long the current recording has been running.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return 0
	}
	return time.Since(r.started)
}

// Stop ends the capture and returns what was recorded.
func (r *Recorder) Stop() (recording.Recording, error) {
	r.mu.Lock()
	device := r.device
	r.device = nil
	r.mu.Unlock()
	if device == nil {
		return recording.Recording{}, ErrNotRecording
	}

	// The data callback takes r.mu, so the device is stopped unlocked.
	err := device.Stop()
	device.Uninit()
	if err != nil {
		return recording.Recording{}, fmt.Errorf("stop audio device: %w", err)
	}

	r.mu.Lock()
	pcm := append([]byte(nil), r.buf...)
	r.mu.Unlock()
	return recording.Recording{PCM: pcm, SampleRate: r.sampleRate, Channels: r.channels}, nil
}

func (r *Recorder) Close() error {
	if r.device != nil {
		_, _ = r.Stop()
	}
	if r.ctx == nil {
		return nil
	}
	err := r.ctx.Uninit()
	r.ctx.Free()
	r.ctx = nil
	return err
}
