package tts

import "fmt"

// ElevenLabsVoices maps the configured voice names to ElevenLabs voice IDs.
var ElevenLabsVoices = map[string]string{
	"therapist":    "JBFqnCBsd6RMkjVDRZzb", // warm, empathetic
	"calm":         "21m00Tcm4TlvDq8ikWAM", // soothing, gentle
	"professional": "EXAVITQu4vr4xnSDxMaL", // clear, authoritative
}

// OpenAIVoices maps the configured voice names to OpenAI speech voices.
var OpenAIVoices = map[string]string{
	"therapist":    "nova",
	"calm":         "shimmer",
	"professional": "onyx",
}

// ResolveVoice returns the provider voice ID for name. overrides take
// precedence over defaults.
func ResolveVoice(name string, overrides, defaults map[string]string) (string, error) {
	if id, ok := overrides[name]; ok && id != "" {
		return id, nil
	}
	if id, ok := defaults[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVoice, name)
}
