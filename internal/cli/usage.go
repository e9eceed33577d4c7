package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage and limits",
	RunE:  runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	if err := core.Gate.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("get usage: %w", err)
	}
	u := core.View.Usage()
	s := u.Snapshot

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total:   %d / %d tokens (%.1f%%), %d remaining\n", s.TotalTokens, s.GlobalLimit, s.PercentGlobal, s.RemainingGlobal)
	fmt.Fprintf(out, "Monthly: %d / %d tokens (%.1f%%), %d remaining\n", s.MonthlyTokens, s.MonthlyLimit, s.PercentMonthly, s.RemainingMonthly)
	if u.Message != "" {
		fmt.Fprintln(out, u.Message)
	}
	return nil
}
