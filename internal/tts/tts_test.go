package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loqalabs/loqa-converse/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestElevenLabsSynthesize(t *testing.T) {
	var gotPath, gotKey, gotFormat string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fakeaudio"))
	}))
	defer srv.Close()

	synth, err := tts.NewElevenLabs(tts.ElevenLabsConfig{APIKey: "secret", BaseURL: srv.URL}, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	audio, err := synth.Synthesize(context.Background(), "Hello there.", "voice-123")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	if gotPath != "/text-to-speech/voice-123" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("expected api key header")
	}
	if gotFormat != "mp3_44100_128" {
		t.Errorf("unexpected output format %s", gotFormat)
	}
	if gotBody["text"] != "Hello there." || gotBody["model_id"] != "eleven_multilingual_v2" {
		t.Errorf("unexpected body %v", gotBody)
	}
	if string(audio.Data) != "ID3fakeaudio" || audio.Encoding != tts.EncodingMP3 || audio.SampleRate != 44100 {
		t.Errorf("unexpected audio %+v", audio)
	}
}

func TestElevenLabsStream(t *testing.T) {
	var gotKey, gotFormat string
	var texts []string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			texts = append(texts, text)
			if text == "" {
				break
			}
		}
		_ = conn.WriteJSON(map[string]any{"audio": "AAAB"})
		_ = conn.WriteJSON(map[string]any{"audio": "AgAD"})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	synth, err := tts.NewElevenLabsStream(tts.ElevenLabsStreamConfig{
		APIKey:  "secret",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	audio, err := synth.Synthesize(context.Background(), "Hello there.", "voice-123")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if gotKey != "secret" || gotFormat != "pcm_24000" {
		t.Errorf("unexpected handshake key=%q format=%q", gotKey, gotFormat)
	}
	if len(texts) != 3 || texts[0] != " " || texts[1] != "Hello there. " || texts[2] != "" {
		t.Errorf("unexpected text sequence %q", texts)
	}
	if len(audio.Data) != 6 || audio.Encoding != tts.EncodingPCM24 || audio.SampleRate != 24000 {
		t.Errorf("unexpected audio %+v", audio)
	}
}

func TestElevenLabsStreamError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]any
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]any{"error": "quota_exceeded", "message": "quota exceeded", "code": 1008})
	}))
	defer srv.Close()

	synth, err := tts.NewElevenLabsStream(tts.ElevenLabsStreamConfig{
		APIKey:  "secret",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = synth.Synthesize(context.Background(), "Hi.", "voice")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "quota exceeded" {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestElevenLabsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":{"status":"quota","message":"slow down"}}`))
	}))
	defer srv.Close()

	synth, _ := tts.NewElevenLabs(tts.ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, newLogger())
	_, err := synth.Synthesize(context.Background(), "hi", "v")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 429 || apiErr.Message != "slow down" || !apiErr.IsRetryable() {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestElevenLabsRequiresKeyAndVoice(t *testing.T) {
	if _, err := tts.NewElevenLabs(tts.ElevenLabsConfig{}, newLogger()); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	synth, _ := tts.NewElevenLabs(tts.ElevenLabsConfig{APIKey: "k"}, newLogger())
	if _, err := synth.Synthesize(context.Background(), "hi", ""); !errors.Is(err, tts.ErrNoVoiceID) {
		t.Fatalf("expected ErrNoVoiceID, got %v", err)
	}
}

func TestOpenAISpeech(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	synth, err := tts.NewOpenAISpeech(tts.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}, newLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	audio, err := synth.Synthesize(context.Background(), "Take a breath.", "nova")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio.Data) != "mp3bytes" || audio.Encoding != tts.EncodingMP3 {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if gotBody["voice"] != "nova" || gotBody["input"] != "Take a breath." {
		t.Fatalf("unexpected request %v", gotBody)
	}
}

func TestExecSynth(t *testing.T) {
	cmd := `sh -c 'cat >/dev/null; printf "%s\n" "{\"pcm_base64\":\"AAEC\",\"final\":true}"'`
	synth, err := tts.NewExecSynth(cmd, 22050, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	audio, err := synth.Synthesize(context.Background(), "hello", "calm")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(audio.Data) != 3 || audio.Encoding != tts.EncodingPCM22 || !audio.IsPCM() {
		t.Fatalf("unexpected audio %+v", audio)
	}
}

func TestMock(t *testing.T) {
	t.Run("default returns silence", func(t *testing.T) {
		m := tts.NewMock()
		audio, err := m.Synthesize(context.Background(), "abc", "v")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(audio.Data) != 3*960 || audio.SampleRate != 24000 {
			t.Fatalf("unexpected audio %+v", audio)
		}
		if calls := m.Calls(); len(calls) != 1 || calls[0] != "abc" {
			t.Fatalf("unexpected calls %v", calls)
		}
	})

	t.Run("latency honours context", func(t *testing.T) {
		m := &tts.Mock{Latency: time.Second}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := m.Synthesize(ctx, "abc", "v"); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestResolveVoice(t *testing.T) {
	id, err := tts.ResolveVoice("calm", nil, tts.ElevenLabsVoices)
	if err != nil || id != "21m00Tcm4TlvDq8ikWAM" {
		t.Fatalf("unexpected %s %v", id, err)
	}
	id, _ = tts.ResolveVoice("calm", map[string]string{"calm": "custom"}, tts.ElevenLabsVoices)
	if id != "custom" {
		t.Fatalf("expected override, got %s", id)
	}
	if _, err := tts.ResolveVoice("pirate", nil, tts.OpenAIVoices); !errors.Is(err, tts.ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestEncodingFromOutputFormat(t *testing.T) {
	cases := map[string]struct {
		enc  tts.Encoding
		rate int
	}{
		"mp3_44100_128": {tts.EncodingMP3, 44100},
		"mp3_22050_32":  {tts.EncodingMP3, 22050},
		"pcm_16000":     {tts.EncodingPCM16, 16000},
		"pcm_24000":     {tts.EncodingPCM24, 24000},
		"ulaw_8000":     {tts.EncodingULaw8, 8000},
		"weird":         {tts.EncodingMP3, 44100},
	}
	for format, want := range cases {
		enc, rate := tts.EncodingFromOutputFormat(format)
		if enc != want.enc || rate != want.rate {
			t.Errorf("%s: got %s/%d", format, enc, rate)
		}
	}
}
