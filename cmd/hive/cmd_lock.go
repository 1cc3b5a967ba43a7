package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/protocol"
)

// newLockCmd creates the "hive lock" subcommand.
func newLockCmd(a *app) *cobra.Command {
	var workerFlag int
	cmd := &cobra.Command{
		Use:   "lock RESOURCE...",
		Short: "Claim resources for this worker, all or nothing",
		Long: `Claims every RESOURCE (usually file paths) for this worker. If any is held
by another worker nothing is claimed, every conflicting claim is listed and the
command exits 4. A new claim replaces the worker's previous one.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveWorkerID(workerFlag)
			if err != nil {
				return err
			}
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			w := cmd.OutOrStdout()
			err = e.coord.AcquireLocks(cmd.Context(), id, args)
			var conflict *protocol.ConflictError
			if errors.As(err, &conflict) {
				fmt.Fprintln(w, "CONFLICT: resources locked by other workers:")
				for _, c := range conflict.Conflicts {
					fmt.Fprintf(w, "  %s -> worker-%d\n", c.Resource, c.Holder)
				}
				return err
			}
			if err != nil {
				return err
			}
			// Repeated arguments collapse into one claim.
			held, err := e.coord.Locks()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Locked %d resource(s)\n", len(held[id]))
			return nil
		},
	}
	addWorkerFlag(cmd, &workerFlag)
	return cmd
}

// newUnlockCmd creates the "hive unlock" subcommand.
func newUnlockCmd(a *app) *cobra.Command {
	var workerFlag int
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release every resource this worker holds",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveWorkerID(workerFlag)
			if err != nil {
				return err
			}
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			released, err := e.coord.ReleaseLocks(cmd.Context(), id)
			if err != nil {
				return err
			}
			if released {
				fmt.Fprintln(cmd.OutOrStdout(), "Locks released")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No locks held")
			}
			return nil
		},
	}
	addWorkerFlag(cmd, &workerFlag)
	return cmd
}

// newLocksCmd creates the "hive locks" subcommand.
func newLocksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List every worker's claims",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			locks, err := e.coord.Locks()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, renderLocks(locks, newStyles(w)))
			return nil
		},
	}
}
