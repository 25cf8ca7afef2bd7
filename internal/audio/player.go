// Package audio plays synthesized speech on the default output device and
// captures push-to-talk recordings from the default microphone.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/loqalabs/loqa-converse/internal/recording"
	"github.com/loqalabs/loqa-converse/internal/tts"
	"github.com/zaf/g711"
)

const resampleQuality = 4

// Player plays one utterance at a time through the beep speaker. The
// speaker is initialised on first use at the player's sample rate and
// everything else is resampled to it.
type Player struct {
	rate   beep.SampleRate
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
	mu       sync.Mutex
}

func NewPlayer(sampleRate int, logger *slog.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Player{
		rate:   beep.SampleRate(sampleRate),
		logger: logger.With(slog.String("component", "player")),
	}
}

func (p *Player) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
		if p.initErr == nil {
			p.logger.Debug("speaker initialised", slog.Int("sample_rate", int(p.rate)))
		}
	})
	return p.initErr
}

// PlayBlocking returns once the audio has finished playing or ctx is done.
func (p *Player) PlayBlocking(ctx context.Context, a tts.Audio) error {
	if len(a.Data) == 0 {
		return tts.ErrEmptyAudio
	}
	streamer, format, err := decode(a)
	if err != nil {
		return err
	}
	if c, ok := streamer.(io.Closer); ok {
		defer c.Close()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.init(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(resampleQuality, format.SampleRate, p.rate, s)
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// FromRecording wraps captured PCM so it can be played back.
func FromRecording(rec recording.Recording) tts.Audio {
	return tts.Audio{
		Data:       rec.PCM,
		Encoding:   tts.Encoding(fmt.Sprintf("pcm_%d", rec.SampleRate)),
		SampleRate: rec.SampleRate,
		Channels:   rec.Channels,
	}
}

func decode(a tts.Audio) (beep.Streamer, beep.Format, error) {
	switch {
	case a.Encoding == tts.EncodingMP3:
		s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(a.Data)))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode mp3: %w", err)
		}
		return s, format, nil
	case a.Encoding == tts.EncodingWAV:
		s, format, err := wav.Decode(bytes.NewReader(a.Data))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav: %w", err)
		}
		return s, format, nil
	case a.IsPCM():
		if a.SampleRate <= 0 {
			return nil, beep.Format{}, fmt.Errorf("pcm audio without sample rate")
		}
		channels := a.Channels
		if channels <= 0 {
			channels = 1
		}
		format := beep.Format{SampleRate: beep.SampleRate(a.SampleRate), NumChannels: channels, Precision: 2}
		return pcmStreamer(a.Data, channels), format, nil
	case a.Encoding == tts.EncodingULaw8:
		format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
		return pcmStreamer(g711.DecodeUlaw(a.Data), 1), format, nil
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio encoding %q", a.Encoding)
	}
}

// pcmStreamer streams little-endian 16-bit samples. Mono input is copied
// to both output channels.
func pcmStreamer(data []byte, channels int) beep.Streamer {
	frame := 2 * channels
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n := 0
		for n < len(samples) && pos+frame <= len(data) {
			left := sampleAt(data, pos)
			right := left
			if channels > 1 {
				right = sampleAt(data, pos+2)
			}
			samples[n] = [2]float64{left, right}
			n++
			pos += frame
		}
		return n, n > 0
	})
}

func sampleAt(data []byte, offset int) float64 {
	return float64(int16(binary.LittleEndian.Uint16(data[offset:]))) / 32768
}

// DiscardPlayer accepts audio without a device. With Realtime set it waits
// for the duration of PCM audio, which keeps pacing realistic in headless
// runs.
type DiscardPlayer struct {
	Realtime bool
}

func (d DiscardPlayer) PlayBlocking(ctx context.Context, a tts.Audio) error {
	if len(a.Data) == 0 {
		return tts.ErrEmptyAudio
	}
	if !d.Realtime || !a.IsPCM() || a.SampleRate <= 0 {
		return ctx.Err()
	}
	channels := a.Channels
	if channels <= 0 {
		channels = 1
	}
	dur := time.Duration(len(a.Data)/(2*channels)) * time.Second / time.Duration(a.SampleRate)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
		return nil
	}
}
