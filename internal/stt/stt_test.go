package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-converse/internal/recording"
)

func sample() recording.Recording {
	return recording.Recording{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
}

func TestMockTranscriber(t *testing.T) {
	text, err := NewMockTranscriber("hello").Transcribe(context.Background(), sample())
	if err != nil || text != "hello" {
		t.Fatalf("unexpected %q %v", text, err)
	}
	text, _ = NewMockTranscriber("").Transcribe(context.Background(), sample())
	if !strings.Contains(text, "100ms") {
		t.Fatalf("expected duration in mock transcript, got %q", text)
	}
}

func TestExecTranscriber(t *testing.T) {
	tr, err := NewExecTranscriber(`sh -c 'test -s "$2" && echo "{\"text\":\"I feel better\"}"' sh`, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), sample())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "I feel better" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExecTranscriberFailure(t *testing.T) {
	tr, _ := NewExecTranscriber("false", "")
	if _, err := tr.Transcribe(context.Background(), sample()); err == nil {
		t.Fatal("expected command failure")
	}
	if _, err := NewExecTranscriber("", ""); err == nil {
		t.Fatal("expected empty command error")
	}
}

func TestOpenAITranscriber(t *testing.T) {
	var gotModel string
	var gotFile int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		if f, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(f)
			gotFile = len(data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"I had a long day"}`))
	}))
	defer srv.Close()

	tr, err := NewOpenAITranscriber(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), sample())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "I had a long day" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotModel != "whisper-1" || gotFile <= 44 {
		t.Fatalf("unexpected upload model=%s bytes=%d", gotModel, gotFile)
	}
}

func TestOpenAITranscriberRequiresKey(t *testing.T) {
	if _, err := NewOpenAITranscriber(OpenAIConfig{}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}
