package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var threadTitle string

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List and manage a project's threads",
	Long: `List and manage a project's threads.

Subcommands:
  list    List threads, newest first (default)
  new     Create a thread and make it active
  use     Make a thread active
  rename  Rename a thread
  delete  Delete a thread

Examples:
  chatctl threads -p proj
  chatctl threads new -p proj --title "Q3 planning"
  chatctl threads use -p proj 3f2a
  chatctl threads rename -p proj 3f2a "Q3 planning v2"`,
	RunE: runThreadsList,
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads",
	RunE:  runThreadsList,
}

var threadsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a thread and make it active",
	RunE:  runThreadsNew,
}

var threadsUseCmd = &cobra.Command{
	Use:   "use <thread-id>",
	Short: "Make a thread active",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsUse,
}

var threadsRenameCmd = &cobra.Command{
	Use:   "rename <thread-id> <title>",
	Short: "Rename a thread",
	Args:  cobra.ExactArgs(2),
	RunE:  runThreadsRename,
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsDelete,
}

func init() {
	threadsNewCmd.Flags().StringVar(&threadTitle, "title", "", "thread title")

	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsNewCmd)
	threadsCmd.AddCommand(threadsUseCmd)
	threadsCmd.AddCommand(threadsRenameCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
}

func runThreadsList(cmd *cobra.Command, args []string) error {
	if err := requireProject(); err != nil {
		return err
	}
	if err := core.Threads.Load(cmd.Context(), projectID); err != nil {
		return fmt.Errorf("load threads: %w", err)
	}

	threads := core.View.Threads(projectID)
	if len(threads) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No threads.")
		return nil
	}

	active := core.Threads.Active(projectID)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tTITLE\tMESSAGES\tUPDATED")
	for _, t := range threads {
		marker := ""
		if t.ID == active {
			marker = "*"
		}
		updated := "-"
		if !t.UpdatedAt.IsZero() {
			updated = t.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", marker, t.ID, t.DisplayTitle(), t.MessageCount, updated)
	}
	return w.Flush()
}

func runThreadsNew(cmd *cobra.Command, args []string) error {
	if err := requireProject(); err != nil {
		return err
	}
	thread, err := core.Threads.Create(cmd.Context(), projectID, threadTitle)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created thread %s (%s)\n", thread.ID, thread.DisplayTitle())
	return nil
}

func runThreadsUse(cmd *cobra.Command, args []string) error {
	if err := requireProject(); err != nil {
		return err
	}
	if err := core.Threads.Load(cmd.Context(), projectID); err != nil {
		return fmt.Errorf("load threads: %w", err)
	}
	if _, ok := core.Store.Thread(args[0]); !ok {
		return fmt.Errorf("thread %s not found in project %s", args[0], projectID)
	}
	core.Threads.SetActive(cmd.Context(), projectID, args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "Active thread: %s\n", args[0])
	return nil
}

func runThreadsRename(cmd *cobra.Command, args []string) error {
	if err := core.Threads.Rename(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("rename thread: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
	return nil
}

func runThreadsDelete(cmd *cobra.Command, args []string) error {
	if err := core.Threads.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
