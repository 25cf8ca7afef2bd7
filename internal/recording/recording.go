// Package recording stores captured microphone audio as 16-bit WAV files.
package recording

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recording is little-endian signed 16-bit PCM.
type Recording struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

var ErrEmpty = errors.New("recording: no audio captured")

// Duration is the playback length implied by the sample count.
func (r Recording) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	frames := len(r.PCM) / 2 / r.Channels
	return time.Duration(frames) * time.Second / time.Duration(r.SampleRate)
}

// WriteWAV encodes rec into file.
func WriteWAV(file *os.File, rec Recording) error {
	if len(rec.PCM)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: rec.Channels, SampleRate: rec.SampleRate}}
	samples := make([]int, len(rec.PCM)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(rec.PCM[i*2:])))
	}
	buffer.Data = samples
	buffer.SourceBitDepth = 16

	enc := wav.NewEncoder(file, rec.SampleRate, 16, rec.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// ReadWAV decodes a 16-bit WAV file written by WriteWAV.
func ReadWAV(path string) (Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return Recording{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Recording{}, fmt.Errorf("%s: not a wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Recording{}, fmt.Errorf("decode wav: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return Recording{PCM: pcm, SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}, nil
}

// Save writes rec to dir/recording_YYYYMMDD_HHMMSS.wav and returns the path.
func Save(dir string, rec Recording, now time.Time) (string, error) {
	if len(rec.PCM) == 0 {
		return "", ErrEmpty
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(dir, "recording_"+now.Format("20060102_150405")+".wav")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create recording: %w", err)
	}
	defer file.Close()
	if err := WriteWAV(file, rec); err != nil {
		return "", err
	}
	return path, nil
}

// SaveTemp writes rec to a temporary WAV file. Callers remove it.
func SaveTemp(rec Recording) (string, error) {
	if len(rec.PCM) == 0 {
		return "", ErrEmpty
	}
	file, err := os.CreateTemp("", "loqa_converse_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer file.Close()
	if err := WriteWAV(file, rec); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}
