package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/loqalabs/loqa-converse/internal/pipeline"
	"github.com/loqalabs/loqa-converse/internal/recording"
	"github.com/loqalabs/loqa-converse/internal/runtime"
	"github.com/spf13/cobra"
)

var resumeID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive voice conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := startRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		var session *conversation.Session
		if resumeID != "" {
			session, err = rt.ResumeSession(ctx, resumeID)
		} else {
			session, err = rt.StartSession(ctx)
		}
		if err != nil {
			return err
		}

		c := &chat{rt: rt, session: session, in: bufio.NewScanner(os.Stdin), out: os.Stdout}
		defer c.close()
		return c.loop(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "Continue a stored session")
}

type chat struct {
	rt       *runtime.Runtime
	session  *conversation.Session
	in       *bufio.Scanner
	out      io.Writer
	recorder *audio.Recorder
	lastPath string
}

func (c *chat) loop(ctx context.Context) error {
	fmt.Fprintf(c.out, "Session %s (model %s, voice %s)\n", c.session.ID(), c.rt.Config().LLM.Model, c.rt.Config().TTS.Voice)
	for {
		fmt.Fprintln(c.out, "\nOptions:")
		fmt.Fprintln(c.out, "  1. Record a message")
		fmt.Fprintln(c.out, "  2. Replay last recording")
		fmt.Fprintln(c.out, "  3. Type a message")
		fmt.Fprintln(c.out, "  4. Reset conversation")
		fmt.Fprintln(c.out, "  5. Exit")
		fmt.Fprint(c.out, "Choose an option: ")

		line, ok := c.readLine()
		if !ok || ctx.Err() != nil {
			return nil
		}
		switch strings.TrimSpace(line) {
		case "1":
			c.record(ctx)
		case "2":
			c.replay(ctx)
		case "3":
			c.typed(ctx)
		case "4":
			c.rt.ResetSession(ctx, c.session)
			fmt.Fprintln(c.out, "Conversation history cleared.")
		case "5", "q", "exit":
			fmt.Fprintln(c.out, "Goodbye.")
			return nil
		default:
			fmt.Fprintln(c.out, "Invalid choice.")
		}
	}
}

func (c *chat) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return c.in.Text(), true
}

func (c *chat) record(ctx context.Context) {
	if c.recorder == nil {
		audioCfg := c.rt.Config().Audio
		rec, err := audio.NewRecorder(audioCfg.SampleRate, audioCfg.Channels)
		if err != nil {
			fmt.Fprintln(c.out, "Microphone unavailable:", err)
			return
		}
		c.recorder = rec
	}

	fmt.Fprint(c.out, "Press Enter to start recording...")
	if _, ok := c.readLine(); !ok {
		return
	}
	if err := c.recorder.Start(); err != nil {
		fmt.Fprintln(c.out, "Could not start recording:", err)
		return
	}

	stopTicker := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-stopTicker:
				return
			case <-t.C:
				fmt.Fprintf(c.out, "\rRecording... %.1fs (press Enter to stop)", c.recorder.Elapsed().Seconds())
			}
		}
	}()
	c.readLine()
	close(stopTicker)
	<-tickerDone
	fmt.Fprintln(c.out)

	rec, err := c.recorder.Stop()
	if err != nil {
		fmt.Fprintln(c.out, "Recording failed:", err)
		return
	}
	minDur := time.Duration(c.rt.Config().Audio.MinRecordSeconds * float64(time.Second))
	if rec.Duration() < minDur {
		fmt.Fprintf(c.out, "Recording too short (%.1fs). Please record for at least %.1fs.\n", rec.Duration().Seconds(), minDur.Seconds())
		return
	}

	path, err := recording.Save(c.rt.Config().Audio.RecordingsDir, rec, time.Now())
	if err != nil {
		fmt.Fprintln(c.out, "Could not save recording:", err)
	} else {
		c.lastPath = path
		fmt.Fprintln(c.out, "Saved", path)
	}

	_, _, err = c.rt.Pipeline().RespondToSpeech(ctx, c.session, rec, c.rt.VoiceID())
	c.report(err)
}

func (c *chat) replay(ctx context.Context) {
	if c.lastPath == "" {
		fmt.Fprintln(c.out, "Nothing recorded yet.")
		return
	}
	fmt.Fprintln(c.out, "Playing", c.lastPath)
	if err := c.rt.Replay(ctx, c.lastPath); err != nil {
		fmt.Fprintln(c.out, "Playback failed:", err)
	}
}

func (c *chat) typed(ctx context.Context) {
	fmt.Fprint(c.out, "You: ")
	line, ok := c.readLine()
	if !ok || strings.TrimSpace(line) == "" {
		return
	}
	_, err := c.rt.Pipeline().RunTurn(ctx, c.session, strings.TrimSpace(line), c.rt.VoiceID())
	c.report(err)
}

func (c *chat) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrNoSpeech):
		fmt.Fprintln(c.out, "No speech detected.")
	default:
		logger.Warn("turn failed", slog.String("stage", string(pipeline.StageOf(err))), slog.String("error", err.Error()))
		fmt.Fprintln(c.out, "Something went wrong:", err)
	}
}

func (c *chat) close() {
	if c.recorder != nil {
		_ = c.recorder.Close()
	}
}
