// Package cli provides the chatctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/agent-chat/internal/app"
	"github.com/capitalize-ai/agent-chat/internal/config"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	projectID string

	core *app.App
	log  *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Chat with project agents from the terminal",
	Long: `chatctl talks to the chat backend: it manages a project's threads and
sends messages to agents, printing streamed replies as they arrive.

The active thread of each project is remembered between runs.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := "warn"
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level, "stderr")
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		core, err = app.New(cfg, log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if core != nil {
			if err := core.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close state: %v\n", err)
			}
		}
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command. An interrupt cancels the running request,
// which leaves any streaming reply in its error state.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", os.Getenv("CHAT_PROJECT_ID"), "project id (or CHAT_PROJECT_ID)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(usageCmd)
}

func requireProject() error {
	if projectID == "" {
		return fmt.Errorf("a project is required (--project or CHAT_PROJECT_ID)")
	}
	return nil
}
