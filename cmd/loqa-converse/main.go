package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/runtime"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

var (
	cfgFile  string
	model    string
	voice    string
	logLevel string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "loqa-converse",
	Short:         "Voice conversations with a streaming language model",
	Long:          "Talk to a language model and hear its reply spoken chunk by chunk while it is still being generated.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "loqa.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Override llm.model")
	rootCmd.PersistentFlags().StringVar(&voice, "voice", "", "Override tts.voice (therapist, calm, professional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override telemetry.log_level")

	rootCmd.AddCommand(chatCmd, askCmd, historyCmd, configCmd, versionCmd)
}

func initConfig() error {
	var err error
	if rootCmd.PersistentFlags().Changed("config") {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadOptional(cfgFile)
	}
	if err != nil {
		return err
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if voice != "" {
		cfg.TTS.Voice = voice
	}
	if logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger = runtime.NewLogger(cfg.Telemetry.LogLevel, os.Stderr)
	return nil
}

// startRuntime builds the runtime with the reply echoed to stdout.
func startRuntime(ctx context.Context) (*runtime.Runtime, error) {
	return runtime.New(ctx, cfg, logger, runtime.Options{Echo: os.Stdout})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("command failed", slog.String("error", err.Error()))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
