package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the part of a turn that failed.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageStream        Stage = "stream"
)

// ErrNoSpeech is returned when a recording transcribes to blank text.
var ErrNoSpeech = errors.New("no speech detected")

// TurnError aborts a turn. Per-chunk synthesis and playback failures never
// surface as a TurnError.
type TurnError struct {
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage of err, or "" when err is not a
// TurnError.
func StageOf(err error) Stage {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Stage
	}
	return ""
}
