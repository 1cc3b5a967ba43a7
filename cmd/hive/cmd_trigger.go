package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/protocol"
)

// newTriggerCmd creates the "hive trigger" command group.
func newTriggerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Fire, check, clear and list named triggers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "fire NAME",
			Short: "Fire a trigger (firing twice is a no-op)",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				if err := e.coord.Fire(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fired %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "check NAME",
			Short: "Exit 0 if the trigger has fired, 3 if not",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				fired, err := e.coord.Check(args[0])
				if err != nil {
					return err
				}
				if !fired {
					return &protocol.NotFoundError{Kind: "trigger", Name: args[0]}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s has fired\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear NAME",
			Short: "Remove a trigger",
			Args:  usageArgs(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				removed, err := e.coord.ClearTrigger(args[0])
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not set\n", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List fired triggers",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.open()
				if err != nil {
					return err
				}
				defer e.close()
				names, err := e.coord.Triggers()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			},
		},
	)
	return cmd
}
