package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"hive/pkg/protocol"
	"hive/pkg/state"
)

// resultPreviewLines is how many lines of each result "hive results" shows
// without --full.
const resultPreviewLines = 5

// stateEntry is the JSON form of one worker in "hive state --json".
type stateEntry struct {
	Worker int                   `json:"worker"`
	State  *protocol.WorkerState `json:"state,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// newStateCmd creates the "hive state" subcommand.
func newStateCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "state [WORKER]",
		Aliases: []string{"status"},
		Short:   "Show worker states",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			w := cmd.OutOrStdout()
			var snaps []state.Snapshot
			if len(args) == 1 {
				id, err := parseWorkerArg(args[0])
				if err != nil {
					return err
				}
				ws, err := e.coord.State(id)
				if err != nil && protocol.KindOf(err) != protocol.KindCorrupt {
					return err
				}
				snaps = []state.Snapshot{{ID: id, State: ws, Err: err}}
			} else {
				snaps = e.coord.States()
			}

			if asJSON {
				return writeStatesJSON(w, snaps)
			}
			writeSessionHeader(w, e)
			fmt.Fprintln(w, renderStates(snaps, newStyles(w)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeStatesJSON(w io.Writer, snaps []state.Snapshot) error {
	entries := make([]stateEntry, 0, len(snaps))
	for _, snap := range snaps {
		entry := stateEntry{Worker: snap.ID}
		if snap.Err != nil {
			entry.Error = snap.Err.Error()
		} else {
			ws := snap.State
			entry.State = &ws
		}
		entries = append(entries, entry)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// writeSessionHeader prints the session name, cycle, protocol and phase.
func writeSessionHeader(w io.Writer, e *env) {
	parts := []string{"Session " + e.sess.Name}
	if c, err := e.coord.Cycle(); err == nil {
		parts = append(parts, "cycle "+cycleLabel(c))
	}
	if name, ok, err := e.coord.Protocol(); err == nil && ok {
		parts = append(parts, "protocol "+name)
	}
	if phase, ok, err := e.coord.Phase(); err == nil && ok {
		parts = append(parts, "phase "+phase)
	}
	fmt.Fprintln(w, strings.Join(parts, "  |  "))
	fmt.Fprintln(w)
}

// newResultsCmd creates the "hive results" subcommand.
func newResultsCmd(a *app) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "results [WORKER]",
		Short: "Show the results workers have reported",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			ids := make([]int, 0, e.sess.Workers)
			if len(args) == 1 {
				id, err := parseWorkerArg(args[0])
				if err != nil {
					return err
				}
				ids = append(ids, id)
			} else {
				for id := 0; id < e.sess.Workers; id++ {
					ids = append(ids, id)
				}
			}

			w := cmd.OutOrStdout()
			styles := newStyles(w)
			fmt.Fprintln(w, styles.Header.Render("Worker Results"))
			fmt.Fprintln(w, strings.Repeat("=", 40))
			for _, id := range ids {
				text, ok, err := e.coord.Result(id)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(w, "Worker %d: %s\n\n", id, styles.Muted.Render("No results yet"))
					continue
				}
				fmt.Fprintf(w, "Worker %d:\n", id)
				writeResult(w, text, full)
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print whole results instead of a preview")
	return cmd
}

// writeResult prints text indented, cut to resultPreviewLines unless full.
func writeResult(w io.Writer, text string, full bool) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	truncated := false
	if !full && len(lines) > resultPreviewLines {
		lines = lines[:resultPreviewLines]
		truncated = true
	}
	for _, line := range lines {
		fmt.Fprintf(w, "    %s\n", line)
	}
	if truncated {
		fmt.Fprintln(w, "    ... (truncated)")
	}
}
