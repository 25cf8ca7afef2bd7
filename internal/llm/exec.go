package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/mattn/go-shellwords"
)

type execClient struct {
	cmd  []string
	opts Options
}

type execLine struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// NewExecClient runs command once per turn. The conversation is written to
// stdin as JSON and the command streams {"delta": "...", "done": bool}
// lines on stdout.
func NewExecClient(command string, opts Options) (Client, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("llm command empty")
	}
	return &execClient{cmd: args, opts: opts}, nil
}

func (c *execClient) StreamChat(ctx context.Context, messages []conversation.Message, model string) (Stream, error) {
	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  c.opts.MaxTokens,
		"temperature": c.opts.Temperature,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.cmd[0], c.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llm command: %w", err)
	}
	return &execStream{cmd: cmd, stderr: &stderr, scanner: bufio.NewScanner(stdout)}, nil
}

type execStream struct {
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	scanner *bufio.Scanner
	done    bool
	waited  bool
}

func (s *execStream) Recv() (string, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if err := s.wait(); err != nil {
				return "", err
			}
			s.done = true
			break
		}
		line := s.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg execLine
		if err := json.Unmarshal(line, &msg); err != nil {
			return "", fmt.Errorf("decode llm exec output: %w", err)
		}
		s.done = msg.Done
		if msg.Delta != "" {
			return msg.Delta, nil
		}
	}
	return "", io.EOF
}

func (s *execStream) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("llm exec command failed: %w: %s", err, s.stderr.String())
	}
	return nil
}

func (s *execStream) Close() error {
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.waited = true
	_ = s.cmd.Wait()
	return nil
}
