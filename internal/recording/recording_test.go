package recording

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tone(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16((i%200)*100-10000)))
	}
	return pcm
}

func TestSaveAndRead(t *testing.T) {
	dir := t.TempDir()
	rec := Recording{PCM: tone(16000), SampleRate: 16000, Channels: 1}
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := Save(filepath.Join(dir, "recordings"), rec, now)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "recording_20250304_050607.wav" {
		t.Fatalf("unexpected name %s", path)
	}

	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("unexpected format %d/%d", got.SampleRate, got.Channels)
	}
	if string(got.PCM) != string(rec.PCM) {
		t.Fatalf("pcm mismatch: %d vs %d bytes", len(got.PCM), len(rec.PCM))
	}
	if got.Duration() != time.Second {
		t.Fatalf("unexpected duration %v", got.Duration())
	}
}

func TestSaveTemp(t *testing.T) {
	path, err := SaveTemp(Recording{PCM: tone(100), SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("save temp: %v", err)
	}
	defer os.Remove(path)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file: %v", err)
	}
}

func TestEmptyRecording(t *testing.T) {
	if _, err := SaveTemp(Recording{}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Save(t.TempDir(), Recording{}, time.Now()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
