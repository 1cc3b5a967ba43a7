package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newSendCmd creates the "hive send" subcommand.
func newSendCmd(a *app) *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "send WORKER TASK...",
		Short: "Assign a task to one worker",
		Long: `Marks the worker as working on TASK in the current cycle. With --notify the
task, wrapped in the worker preamble, is also typed into the worker's tmux pane.`,
		Example: `  hive send 2 "Search for TODO comments in src/"
  hive send --notify 0 Fix the flaky test in pkg/lock`,
		Args: usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWorkerArg(args[0])
			if err != nil {
				return err
			}
			task := strings.Join(args[1:], " ")

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.coord.Assign(cmd.Context(), id, task); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Task sent to worker %d\n", id)
			if !notify {
				return nil
			}
			ws, err := e.coord.State(id)
			if err != nil {
				return err
			}
			return a.notify(cmd.Context(), w, e, id, ws.Cycle, task)
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "type the task into the worker's tmux pane")
	return cmd
}

// newBroadcastCmd creates the "hive broadcast" subcommand.
func newBroadcastCmd(a *app) *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "broadcast TASK...",
		Short: "Assign the same task to every worker",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			w := cmd.OutOrStdout()
			assignErr := e.coord.Broadcast(cmd.Context(), task)
			if assignErr == nil {
				fmt.Fprintf(w, "Task broadcast to %d workers\n", e.sess.Workers)
			}
			if !notify || assignErr != nil {
				return assignErr
			}

			cycle, err := e.coord.Cycle()
			if err != nil {
				return err
			}
			var errs []error
			for id := 0; id < e.sess.Workers; id++ {
				if err := a.notify(cmd.Context(), w, e, id, cycle, task); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "type the task into every worker's tmux pane")
	return cmd
}
