package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newPhaseCmd creates the "hive phase" command group.
func newPhaseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Get or set the session's phase label",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set PHASE...",
			Short: "Set the phase label",
			Args:  usageArgs(cobra.MinimumNArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				phase := strings.Join(args, " ")
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				if err := e.coord.SetPhase(cmd.Context(), phase); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Phase: %s\n", phase)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get",
			Short: "Print the phase label",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				phase, ok, err := e.coord.Phase()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No phase set")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), phase)
				return nil
			},
		},
	)
	return cmd
}
