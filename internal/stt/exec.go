package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-converse/internal/recording"
	"github.com/mattn/go-shellwords"
)

type execTranscriber struct {
	cmd      []string
	language string
	mu       sync.Mutex
}

type execResult struct {
	Text string `json:"text"`
}

// NewExecTranscriber runs command with --audio <wav> (and --language when
// set) and expects {"text": "..."} on stdout.
func NewExecTranscriber(command, language string) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execTranscriber{cmd: args, language: language}, nil
}

func (r *execTranscriber) Transcribe(ctx context.Context, rec recording.Recording) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := recording.SaveTemp(rec)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", path)
	if r.language != "" {
		args = append(args, "--language", r.language)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}
	return resp.Text, nil
}
