package tts

import (
	"context"
	"strconv"
	"strings"
)

// Encoding names the container or sample layout of synthesized audio. PCM
// values follow the ElevenLabs output_format naming.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3"
	EncodingWAV   Encoding = "wav"
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
	EncodingULaw8 Encoding = "ulaw_8000"
)

// Audio is one synthesized utterance.
type Audio struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// IsPCM reports whether Data is raw little-endian 16-bit samples.
func (a Audio) IsPCM() bool {
	return strings.HasPrefix(string(a.Encoding), "pcm_")
}

// Synthesizer is the contract for producing audio from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}

// EncodingFromOutputFormat maps an ElevenLabs output_format such as
// "mp3_44100_128" to an encoding and sample rate.
func EncodingFromOutputFormat(format string) (Encoding, int) {
	switch {
	case strings.HasPrefix(format, "mp3_"):
		return EncodingMP3, sampleRateField(format, 44100)
	case format == string(EncodingPCM16):
		return EncodingPCM16, 16000
	case format == string(EncodingPCM22):
		return EncodingPCM22, 22050
	case format == string(EncodingPCM44):
		return EncodingPCM44, 44100
	case format == string(EncodingPCM24):
		return EncodingPCM24, 24000
	case format == string(EncodingULaw8):
		return EncodingULaw8, 8000
	default:
		return EncodingMP3, 44100
	}
}

func sampleRateField(format string, fallback int) int {
	parts := strings.Split(format, "_")
	if len(parts) < 2 {
		return fallback
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}
