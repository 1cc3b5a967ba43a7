package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hive/pkg/coordinator"
)

// Report statuses accepted by "hive report".
const (
	reportComplete = "COMPLETE"
	reportError    = "ERROR"
	reportPartial  = "PARTIAL"
)

// newDoneCmd creates the "hive done" subcommand.
func newDoneCmd(a *app) *cobra.Command {
	var (
		workerFlag int
		cycleFlag  int64
		failMsg    string
		branch     string
		files      []string
		result     string
	)
	cmd := &cobra.Command{
		Use:   "done",
		Short: "Signal that this worker has finished its task",
		Long: `Records the outcome in the worker's state, fires worker-N-done and, when
every worker has finished, all-done. Passing --error marks the task as failed;
a failed task still counts as done.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveWorkerID(workerFlag)
			if err != nil {
				return err
			}
			cycle, err := resolveCycle(cycleFlag)
			if err != nil {
				return err
			}
			o := coordinator.Outcome{
				Failed: cmd.Flags().Changed("error"),
				Error:  failMsg,
				Branch: branch,
				Result: result,
				Cycle:  cycle,
			}
			if cmd.Flags().Changed("files") {
				o.Files = files
			}
			return a.signalDone(cmd, id, o)
		},
	}
	addWorkerFlag(cmd, &workerFlag)
	addCycleFlag(cmd, &cycleFlag)
	cmd.Flags().StringVar(&failMsg, "error", "", "mark the task as failed with this message")
	cmd.Flags().StringVar(&branch, "branch", "", "branch holding the work")
	cmd.Flags().StringSliceVar(&files, "files", nil, "files modified (comma-separated)")
	cmd.Flags().StringVar(&result, "result", "", "short result summary")
	return cmd
}

// newReportCmd creates the "hive report" subcommand.
func newReportCmd(a *app) *cobra.Command {
	var (
		workerFlag int
		cycleFlag  int64
		status     string
		task       string
		files      []string
	)
	cmd := &cobra.Command{
		Use:   "report RESULT...",
		Short: "Write this worker's result and signal done",
		Long: `Writes a structured result for the manager to collect with "hive results"
and signals done. --status ERROR marks the task as failed; PARTIAL and
COMPLETE both count as completed.`,
		Example: `  hive report "Found 5 TODO comments in src/"
  hive report --status ERROR --task "run tests" "go toolchain missing"`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			status = strings.ToUpper(strings.TrimSpace(status))
			switch status {
			case reportComplete, reportError, reportPartial:
			default:
				return usagef("invalid --status %q: want %s, %s or %s", status, reportComplete, reportError, reportPartial)
			}
			id, err := resolveWorkerID(workerFlag)
			if err != nil {
				return err
			}
			cycle, err := resolveCycle(cycleFlag)
			if err != nil {
				return err
			}

			result := strings.Join(args, " ")
			o := coordinator.Outcome{
				Result: formatReport(status, task, result, files),
				Files:  files,
				Cycle:  cycle,
			}
			if status == reportError {
				o.Failed = true
				o.Error = result
			}
			return a.signalDone(cmd, id, o)
		},
	}
	addWorkerFlag(cmd, &workerFlag)
	addCycleFlag(cmd, &cycleFlag)
	cmd.Flags().StringVar(&status, "status", reportComplete, "COMPLETE, ERROR or PARTIAL")
	cmd.Flags().StringVarP(&task, "task", "t", "", "task description")
	cmd.Flags().StringSliceVar(&files, "files", nil, "files modified (comma-separated)")
	return cmd
}

// formatReport renders the result document collected by "hive results".
func formatReport(status, task, result string, files []string) string {
	if task == "" {
		task = "Not specified"
	}
	modified := "(none reported)"
	if len(files) > 0 {
		modified = strings.Join(files, "\n")
	}
	return fmt.Sprintf("STATUS: %s\nTASK: %s\nRESULT:\n%s\nFILES_MODIFIED:\n%s\n", status, task, result, modified)
}

func (a *app) signalDone(cmd *cobra.Command, id int, o coordinator.Outcome) error {
	e, err := a.open()
	if err != nil {
		return err
	}
	defer e.close()

	report, err := e.coord.SignalDone(cmd.Context(), id, o)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Worker %d done (cycle %d)\n", id, report.Cycle)
	if report.AllDone {
		fmt.Fprintln(w, "All workers done")
	}
	return nil
}
