package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"hive/pkg/eventlog"
	"hive/pkg/protocol"
)

// newEventsCmd creates the "hive events" subcommand.
func newEventsCmd(a *app) *cobra.Command {
	var (
		workerFlag int
		eventType  string
		limit      int
		since      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the session's event journal, newest first",
		Example: `  hive events --limit 20
  hive events --worker 2 --type done
  hive events --since 10m`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return usagef("--limit must not be negative")
			}
			reg, _, err := a.home()
			if err != nil {
				return err
			}
			sess, err := reg.Resolve(a.sessionName)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			styles := newStyles(w)
			r, err := eventlog.NewReader(sess.JournalPath())
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(w, renderEvents(nil, styles))
				return nil
			}
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			opts := eventlog.QueryOpts{Type: protocol.EventType(eventType), Limit: limit}
			if workerFlag >= 0 {
				opts.WorkerID = &workerFlag
			}
			if since > 0 {
				after := time.Now().Add(-since)
				opts.After = &after
			}
			events, err := r.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, renderEvents(events, styles))
			return nil
		},
	}
	cmd.Flags().IntVarP(&workerFlag, "worker", "w", -1, "only events about this worker")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type (assign, done, lock, unlock, conflict, fire, protocol, phase, reset)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	return cmd
}
