package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

var historyThread string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the messages of a thread",
	Long: `Print the messages of a thread, defaulting to the project's active thread.

Examples:
  chatctl history -p proj
  chatctl history -p proj -t 3f2a`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyThread, "thread", "t", "", "thread id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	threadID := historyThread
	if threadID == "" {
		if err := requireProject(); err != nil {
			return err
		}
		if err := core.Threads.Load(cmd.Context(), projectID); err != nil {
			return fmt.Errorf("load threads: %w", err)
		}
		active, err := core.Threads.RequireActive(projectID)
		if err != nil {
			return err
		}
		threadID = active
	}

	if err := core.Messages.Load(cmd.Context(), threadID); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range core.View.Messages(threadID) {
		fmt.Fprintf(out, "%s: %s\n\n", speaker(m), m.Content)
	}
	return nil
}

func speaker(m model.Message) string {
	if m.Role == model.RoleUser {
		return "you"
	}
	if name := m.AgentName(); name != "" {
		return name
	}
	return "assistant"
}
