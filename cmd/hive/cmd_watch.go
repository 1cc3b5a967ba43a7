package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hive/pkg/coordinator"
	"hive/pkg/protocol"
	"hive/pkg/state"
)

// watchRefresh is how often the dashboard reloads without a file event.
const watchRefresh = 2 * time.Second

// swarmSnapshot is everything the dashboard shows, read in one pass.
type swarmSnapshot struct {
	session  string
	cycle    int64
	protocol string
	phase    string
	states   []state.Snapshot
	locks    map[int][]string
	allDone  bool
	err      error
}

// loadSnapshot reads the dashboard data from c. Read errors for the
// optional parts are folded into err so the rest still renders.
func loadSnapshot(c *coordinator.Coordinator) swarmSnapshot {
	snap := swarmSnapshot{session: c.Session().Name, states: c.States()}
	var errs []string
	var err error
	if snap.cycle, err = c.Cycle(); err != nil {
		errs = append(errs, err.Error())
	}
	if snap.protocol, _, err = c.Protocol(); err != nil {
		errs = append(errs, err.Error())
	}
	if snap.phase, _, err = c.Phase(); err != nil {
		errs = append(errs, err.Error())
	}
	if snap.locks, err = c.Locks(); err != nil {
		errs = append(errs, err.Error())
	}
	if snap.allDone, err = c.Check(protocol.AllDoneTrigger); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		snap.err = errors.New(strings.Join(errs, "; "))
	}
	return snap
}

// Messages driving the dashboard.
type (
	snapshotMsg  swarmSnapshot
	watchTickMsg time.Time
	fsChangeMsg  struct{}
)

// watchModel is the bubbletea model behind `hive watch`.
type watchModel struct {
	load    func() swarmSnapshot
	watcher *fsnotify.Watcher
	styles  Styles
	spinner spinner.Model
	snap    swarmSnapshot
	loaded  bool
	width   int
}

func newWatchModel(load func() swarmSnapshot, watcher *fsnotify.Watcher) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorWarning)
	return watchModel{
		load:    load,
		watcher: watcher,
		styles:  stylesFor(lipgloss.DefaultRenderer()),
		spinner: sp,
	}
}

func (m watchModel) loadCmd() tea.Cmd {
	return func() tea.Msg { return snapshotMsg(m.load()) }
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(watchRefresh, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

// Init implements tea.Model.
func (m watchModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadCmd(), watchTickCmd(), m.spinner.Tick}
	if m.watcher != nil {
		cmds = append(cmds, runWatcher(m.watcher))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.loadCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case snapshotMsg:
		m.snap = swarmSnapshot(msg)
		m.loaded = true

	case watchTickMsg:
		return m, tea.Batch(m.loadCmd(), watchTickCmd())

	case fsChangeMsg:
		return m, tea.Batch(m.loadCmd(), runWatcher(m.watcher))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m watchModel) View() string {
	if !m.loaded {
		return m.spinner.View() + " Loading..."
	}
	s := m.snap
	var b strings.Builder

	header := []string{"hive " + s.session, "cycle " + cycleLabel(s.cycle)}
	if s.protocol != "" {
		header = append(header, "protocol "+s.protocol)
	}
	if s.phase != "" {
		header = append(header, "phase "+s.phase)
	}
	b.WriteString(m.styles.Header.Render(strings.Join(header, "  |  ")))
	b.WriteString("\n\n")
	b.WriteString(renderStates(s.states, m.styles))
	b.WriteString("\n\n")
	b.WriteString(renderLocks(s.locks, m.styles))
	b.WriteString("\n\n")

	done := 0
	for _, st := range s.states {
		if st.Err == nil && st.State.Status.Done() {
			done++
		}
	}
	if s.allDone {
		b.WriteString(m.styles.Success.Render(fmt.Sprintf("✓ all-done fired (%d/%d)", done, len(s.states))))
	} else {
		fmt.Fprintf(&b, "%s waiting for all-done (%d/%d done)", m.spinner.View(), done, len(s.states))
	}
	if s.err != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(truncate(s.err.Error(), 120)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.styles.Muted.Render("r refresh • q quit"))
	return b.String()
}

// newWatcher watches the session directories the dashboard shows. It
// returns nil when watching is unavailable; the dashboard then relies on
// its refresh tick.
func newWatcher(dir string, logger *zap.Logger) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("file watching unavailable, falling back to polling", zap.Error(err))
		return nil
	}
	for _, rel := range []string{protocol.TriggersDir, protocol.WorkerStateDir, protocol.LocksDir, protocol.StateDir} {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := w.Add(p); err != nil {
			logger.Warn("cannot watch directory", zap.String("dir", p), zap.Error(err))
		}
	}
	return w
}

// runWatcher returns a tea.Cmd that waits for file events and reports them
// as one fsChangeMsg once they settle.
func runWatcher(watcher *fsnotify.Watcher) tea.Cmd {
	return func() tea.Msg {
		const debounce = 100 * time.Millisecond
		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				timer.Reset(debounce)
			case <-timer.C:
				return fsChangeMsg{}
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// newWatchCmd creates the "hive watch" subcommand.
func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of worker states, locks and the all-done trigger",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			watcher := newWatcher(e.sess.Dir, a.log())
			if watcher != nil {
				defer func() { _ = watcher.Close() }()
			}
			m := newWatchModel(func() swarmSnapshot { return loadSnapshot(e.coord) }, watcher)
			p := tea.NewProgram(m,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run dashboard: %w", err)
			}
			return nil
		},
	}
}
