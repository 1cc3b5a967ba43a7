package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hive/pkg/session"
)

// newSessionCmd creates the "hive session" command group.
func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage coordination sessions",
	}
	cmd.AddCommand(
		newSessionCreateCmd(a),
		newSessionListCmd(a),
		newSessionUseCmd(a),
		newSessionShowCmd(a),
		newSessionRmCmd(a),
	)
	return cmd
}

func newSessionCreateCmd(a *app) *cobra.Command {
	var (
		workers     int
		workspace   string
		tmuxSession string
		tmuxWindow  string
		use         bool
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new session",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, cfg, err := a.home()
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.DefaultWorkers
			}
			if workspace == "" {
				if workspace, err = os.Getwd(); err != nil {
					return fmt.Errorf("get working directory: %w", err)
				}
			}
			if tmuxSession == "" {
				tmuxSession = cfg.TmuxSession
			}
			if tmuxWindow == "" {
				tmuxWindow = cfg.TmuxWindow
			}

			s, err := reg.Create(args[0], workspace, workers, session.WithTmux(tmuxSession, tmuxWindow))
			if err != nil {
				return err
			}
			a.log().Debug("session created",
				zap.String("session", s.Name),
				zap.Int("workers", s.Workers),
				zap.String("dir", s.Dir))

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Created session %s with %d workers\n", s.Name, s.Workers)
			if use {
				if err := reg.SetActive(s.Name); err != nil {
					return err
				}
				fmt.Fprintf(w, "Active session: %s\n", s.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "number of workers (default: config default_workers)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace directory (default: current directory)")
	cmd.Flags().StringVar(&tmuxSession, "tmux-session", "", "tmux session holding the worker panes")
	cmd.Flags().StringVar(&tmuxWindow, "tmux-window", "", "tmux window holding the worker panes")
	cmd.Flags().BoolVar(&use, "use", false, "make the new session active")
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, marking the active one",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := a.home()
			if err != nil {
				return err
			}
			names, err := reg.List()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(w, "No sessions")
				return nil
			}
			active, _, err := reg.Active()
			if err != nil {
				return err
			}
			for _, name := range names {
				marker := " "
				if name == active {
					marker = "*"
				}
				s, err := reg.Open(name)
				if err != nil {
					fmt.Fprintf(w, "%s %s  (%v)\n", marker, name, err)
					continue
				}
				fmt.Fprintf(w, "%s %s  workers=%d  created=%s\n", marker, name, s.Workers, s.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newSessionUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME",
		Short: "Make a session the active one",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := a.home()
			if err != nil {
				return err
			}
			if err := reg.SetActive(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active session: %s\n", args[0])
			return nil
		},
	}
}

func newSessionShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved session",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			s := e.sess
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session:   %s\n", s.Name)
			fmt.Fprintf(w, "Directory: %s\n", s.Dir)
			fmt.Fprintf(w, "Workspace: %s\n", s.Workspace)
			fmt.Fprintf(w, "Workers:   %d\n", s.Workers)
			fmt.Fprintf(w, "Created:   %s\n", s.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(w, "Panes:     %s .. %s\n", s.PaneTarget(0, e.cfg), s.PaneTarget(s.Workers-1, e.cfg))

			cycle, err := e.coord.Cycle()
			if err != nil {
				fmt.Fprintf(w, "Cycle:     (%v)\n", err)
			} else {
				fmt.Fprintf(w, "Cycle:     %d\n", cycle)
			}
			if name, ok, err := e.coord.Protocol(); err == nil && ok {
				fmt.Fprintf(w, "Protocol:  %s\n", name)
			}
			if phase, ok, err := e.coord.Phase(); err == nil && ok {
				fmt.Fprintf(w, "Phase:     %s\n", phase)
			}
			return nil
		},
	}
}

func newSessionRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm NAME",
		Aliases: []string{"remove"},
		Short:   "Delete a session and everything in it",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := a.home()
			if err != nil {
				return err
			}
			if err := reg.Remove(args[0]); err != nil {
				return err
			}
			a.log().Debug("session removed", zap.String("session", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session %s\n", args[0])
			return nil
		},
	}
}
