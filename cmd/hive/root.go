package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hive/internal/appversion"
	"hive/pkg/catalog"
	"hive/pkg/coordinator"
	"hive/pkg/eventlog"
	"hive/pkg/protocol"
	"hive/pkg/session"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	sessionName string
	verbose     bool
	logger      *zap.Logger
	notifier    *Notifier
}

// newRootCmd creates the root hive command with all subcommands attached.
func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{notifier: &Notifier{Runner: &ExecRunner{}}})
}

func newRootCmdWith(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hive",
		Short: "File-based coordination for agent swarms",
		Long: `hive coordinates one manager and N worker agents through a shared
session directory: task assignment, completion triggers, advisory file locks
and a shared protocol/phase state. Every participant runs the same binary.`,
		Version:       fmt.Sprintf("hive %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	cmd.PersistentFlags().StringVarP(&a.sessionName, "session", "s", "",
		"session to operate on (default: $"+protocol.EnvSession+", then the active session)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newInitCmd(a),
		newSessionCmd(a),
		newSendCmd(a),
		newBroadcastCmd(a),
		newDoneCmd(a),
		newReportCmd(a),
		newWaitCmd(a),
		newStateCmd(a),
		newResultsCmd(a),
		newLockCmd(a),
		newUnlockCmd(a),
		newLocksCmd(a),
		newProtocolCmd(a),
		newPhaseCmd(a),
		newTriggerCmd(a),
		newResetCmd(a),
		newEventsCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)

	return cmd
}

func (a *app) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// home resolves the hive home and loads its configuration.
func (a *app) home() (*session.Registry, session.Config, error) {
	dir, err := session.ResolveHome()
	if err != nil {
		return nil, session.Config{}, err
	}
	cfg, err := session.LoadConfig(dir)
	if err != nil {
		return nil, session.Config{}, fmt.Errorf("load config: %w", err)
	}
	return session.NewRegistry(dir), cfg, nil
}

func protocolCatalog(reg *session.Registry) *catalog.Catalog {
	return catalog.New(filepath.Join(reg.Home(), protocol.ProtocolsDir))
}

// env is an opened session ready for coordination commands.
type env struct {
	coord *coordinator.Coordinator
	sess  *session.Session
	cfg   session.Config
	close func()
}

// open resolves the session and builds a coordinator over it. The caller
// must call env.close.
func (a *app) open() (*env, error) {
	reg, cfg, err := a.home()
	if err != nil {
		return nil, err
	}
	sess, err := reg.Resolve(a.sessionName)
	if err != nil {
		return nil, err
	}

	opts := []coordinator.Option{
		coordinator.WithLogger(a.log()),
		coordinator.WithPollInterval(cfg.PollInterval()),
		coordinator.WithCatalog(protocolCatalog(reg)),
	}
	closeFn := func() {}
	if cfg.JournalEnabled() {
		w, err := eventlog.Open(sess.JournalPath())
		if err != nil {
			a.log().Warn("journal unavailable, continuing without it", zap.Error(err))
		} else {
			opts = append(opts, coordinator.WithJournal(w))
			closeFn = func() { _ = w.Close() }
		}
	}

	c, err := coordinator.New(sess, opts...)
	if err != nil {
		closeFn()
		return nil, err
	}
	return &env{coord: c, sess: sess, cfg: cfg, close: closeFn}, nil
}

// addWorkerFlag registers --worker/-w. A negative value means "not given".
func addWorkerFlag(cmd *cobra.Command, id *int) {
	cmd.Flags().IntVarP(id, "worker", "w", -1, "worker index (default: $"+protocol.EnvWorkerID+")")
}

// resolveWorkerID returns the --worker value or, if unset, HIVE_WORKER_ID.
func resolveWorkerID(flag int) (int, error) {
	if flag >= 0 {
		return flag, nil
	}
	v := strings.TrimSpace(os.Getenv(protocol.EnvWorkerID))
	if v == "" {
		return 0, usagef("worker index required: pass --worker or set %s", protocol.EnvWorkerID)
	}
	id, err := strconv.Atoi(v)
	if err != nil || id < 0 {
		return 0, usagef("invalid %s %q", protocol.EnvWorkerID, v)
	}
	return id, nil
}

// addCycleFlag registers --cycle.
func addCycleFlag(cmd *cobra.Command, cycle *int64) {
	cmd.Flags().Int64Var(cycle, "cycle", 0, "cycle the task was assigned in (default: $"+protocol.EnvCycle+"; 0 skips the staleness check)")
}

// resolveCycle returns the --cycle value or, if unset, HIVE_CYCLE.
func resolveCycle(flag int64) (int64, error) {
	if flag != 0 {
		return flag, nil
	}
	v := strings.TrimSpace(os.Getenv(protocol.EnvCycle))
	if v == "" {
		return 0, nil
	}
	c, err := strconv.ParseInt(v, 10, 64)
	if err != nil || c < 0 {
		return 0, usagef("invalid %s %q", protocol.EnvCycle, v)
	}
	return c, nil
}

// parseWorkerArg parses a positional worker index.
func parseWorkerArg(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, usagef("invalid worker index %q", s)
	}
	return id, nil
}

// notify types the worker preamble into worker id's pane.
func (a *app) notify(ctx context.Context, w io.Writer, e *env, id int, cycle int64, task string) error {
	target := e.sess.PaneTarget(id, e.cfg)
	if err := a.notifier.SendKeys(ctx, target, protocol.WorkerPreamble(id, cycle, task)); err != nil {
		return fmt.Errorf("notify worker %d: %w", id, err)
	}
	fmt.Fprintf(w, "Notified worker %d (%s)\n", id, target)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), appversion.Detail())
			return nil
		},
	}
}

// defaultTimeout returns d unless it is zero, in which case the configured
// await timeout applies.
func defaultTimeout(d time.Duration, cfg session.Config) time.Duration {
	if d == 0 {
		return cfg.AwaitTimeout()
	}
	return d
}
