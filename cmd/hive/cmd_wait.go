package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hive/pkg/protocol"
	"hive/pkg/trigger"
)

// newWaitCmd creates the "hive wait" subcommand.
func newWaitCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		forever bool
	)
	cmd := &cobra.Command{
		Use:   "wait [TRIGGER]",
		Short: "Block until a trigger fires (default: all-done)",
		Long: `Waits until TRIGGER exists, then exits 0. If the timeout elapses first the
command exits 5; that means "not yet", and waiting again is safe.`,
		Example: `  hive wait
  hive wait worker-2-done --timeout 30s
  hive wait --forever`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := protocol.AllDoneTrigger
			if len(args) == 1 {
				name = args[0]
			}
			if timeout < 0 {
				return usagef("--timeout must not be negative")
			}

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			d := defaultTimeout(timeout, e.cfg)
			if forever {
				d = trigger.NoTimeout
			}

			w := cmd.OutOrStdout()
			if name == protocol.AllDoneTrigger {
				fmt.Fprintln(w, "Waiting for workers to complete...")
			} else {
				fmt.Fprintf(w, "Waiting for %s...\n", name)
			}
			if err := e.coord.Await(cmd.Context(), name, d); err != nil {
				return err
			}
			if name == protocol.AllDoneTrigger {
				fmt.Fprintln(w, "All workers done.")
			} else {
				fmt.Fprintf(w, "%s fired.\n", name)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: config await_timeout_seconds)")
	cmd.Flags().BoolVar(&forever, "forever", false, "wait without a timeout")
	return cmd
}
