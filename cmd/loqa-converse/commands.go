package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loqalabs/loqa-converse/internal/eventstore"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send one message and speak the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := startRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		session, err := rt.StartSession(ctx)
		if err != nil {
			return err
		}
		_, err = rt.Pipeline().RunTurn(ctx, session, strings.Join(args, " "), rt.VoiceID())
		return err
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List stored sessions, or the messages of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := eventstore.Open(ctx, cfg.EventStore, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer out.Flush()

		if len(args) == 0 {
			sessions, err := store.ListSessions(ctx, historyLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "SESSION\tMODEL\tVOICE\tLAST ACTIVE")
			for _, s := range sessions {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", s.ID, s.Model, s.Voice, s.UpdatedAt.Local().Format(time.DateTime))
			}
			return nil
		}

		events, err := store.ListSessionEvents(ctx, args[0], historyLimit)
		if err != nil {
			return err
		}
		for _, e := range events {
			ts := e.CreatedAt.Local().Format(time.TimeOnly)
			switch e.Type {
			case eventstore.TypeMessage:
				fmt.Fprintf(out, "%s\t%s\t%s\n", ts, e.Role, e.Content)
			case eventstore.TypeReset:
				fmt.Fprintf(out, "%s\t--\tconversation reset\n", ts)
			default:
				fmt.Fprintf(out, "%s\t%s\t%s\n", ts, e.Type, e.Payload)
			}
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := cfg
		shown.STT.APIKey = mask(shown.STT.APIKey)
		shown.LLM.APIKey = mask(shown.LLM.APIKey)
		shown.TTS.APIKey = mask(shown.TTS.APIKey)
		shown.Bus.Password = mask(shown.Bus.Password)
		shown.Bus.Token = mask(shown.Bus.Token)
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(shown)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum rows to print")
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
