package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newResetCmd creates the "hive reset" subcommand.
func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Start a new cycle: clear states, triggers, locks, protocol and phase",
		Long: `Bumps the cycle counter and clears every worker state, trigger and lock and
the protocol and phase pointers. Reported results are kept until overwritten.
A worker that later reports done against the old cycle is rejected (exit 8).`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()
			cycle, err := e.coord.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All workers cleared. Cycle %d\n", cycle)
			return nil
		},
	}
}
