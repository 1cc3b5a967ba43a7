package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"hive/pkg/eventlog"
	"hive/pkg/protocol"
	"hive/pkg/state"
)

// Theme colours, shared by the tables and `hive watch`.
const (
	colorPrimary = lipgloss.Color("12")  // Blue
	colorSuccess = lipgloss.Color("10")  // Green
	colorWarning = lipgloss.Color("11")  // Yellow
	colorError   = lipgloss.Color("9")   // Red
	colorMuted   = lipgloss.Color("240") // Gray
)

// Styles holds the lipgloss styles for one output stream.
type Styles struct {
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// newStyles builds styles bound to w. Colour is dropped when w is not a
// terminal.
func newStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	if !isTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}
	return stylesFor(r)
}

func stylesFor(r *lipgloss.Renderer) Styles {
	return Styles{
		Header:  r.NewStyle().Bold(true).Foreground(colorPrimary),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Success: r.NewStyle().Foreground(colorSuccess),
		Warning: r.NewStyle().Foreground(colorWarning),
		Error:   r.NewStyle().Foreground(colorError),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// statusStyle picks the colour for a worker status.
func (s Styles) statusStyle(st protocol.Status) lipgloss.Style {
	switch st {
	case protocol.StatusWorking:
		return s.Warning
	case protocol.StatusComplete:
		return s.Success
	case protocol.StatusError:
		return s.Error
	}
	return s.Muted
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// Column widths for the worker table.
const (
	colWorker     = 6
	colStatus     = 9
	colCycle      = 5
	colAssignment = 40
	colBranch     = 20
)

// renderStates renders one row per worker. Corrupt documents are shown in
// their own row and do not hide the others.
func renderStates(snaps []state.Snapshot, styles Styles) string {
	var lines []string
	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %s",
		colWorker, "WORKER",
		colStatus, "STATUS",
		colCycle, "CYCLE",
		colAssignment, "ASSIGNMENT",
		colBranch, "BRANCH",
		"FILES")
	lines = append(lines, styles.Header.Render(header), strings.Repeat("─", len(header)))

	for _, snap := range snaps {
		if snap.Err != nil {
			status := fmt.Sprintf("%-*s", colStatus, "corrupt")
			lines = append(lines, fmt.Sprintf("%-*d  %s  %s",
				colWorker, snap.ID, styles.Error.Render(status), truncate(snap.Err.Error(), 80)))
			continue
		}
		ws := snap.State
		status := styles.statusStyle(ws.Status).Render(fmt.Sprintf("%-*s", colStatus, ws.Status))
		detail := ws.Assignment
		if ws.Status == protocol.StatusError && ws.Error != "" {
			detail = "error: " + ws.Error
		}
		lines = append(lines, fmt.Sprintf("%-*d  %s  %-*s  %-*s  %-*s  %s",
			colWorker, snap.ID,
			status,
			colCycle, cycleLabel(ws.Cycle),
			colAssignment, truncate(detail, colAssignment),
			colBranch, truncate(ws.Branch, colBranch),
			strings.Join(ws.Files, ",")))
	}
	return strings.Join(lines, "\n")
}

func cycleLabel(c int64) string {
	if c == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", c)
}

// renderLocks renders the lock table in worker order.
func renderLocks(locks map[int][]string, styles Styles) string {
	if len(locks) == 0 {
		return styles.Muted.Render("No locks held")
	}
	ids := make([]int, 0, len(locks))
	for id := range locks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	header := fmt.Sprintf("%-*s  %s", colWorker, "WORKER", "RESOURCES")
	lines := []string{styles.Header.Render(header), strings.Repeat("─", 40)}
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%-*d  %s", colWorker, id, strings.Join(locks[id], " ")))
	}
	return strings.Join(lines, "\n")
}

// renderEvents renders journal entries, newest first.
func renderEvents(events []eventlog.Event, styles Styles) string {
	if len(events) == 0 {
		return styles.Muted.Render("No events")
	}

	const (
		timeWidth    = 19
		typeWidth    = 8
		sourceWidth  = 10
		subjectWidth = 24
	)
	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %s",
		timeWidth, "TIME",
		typeWidth, "EVENT",
		sourceWidth, "SOURCE",
		subjectWidth, "SUBJECT",
		"DETAIL")
	lines := []string{styles.Header.Render(header), strings.Repeat("─", len(header))}
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %s",
			timeWidth, e.CreatedAt.Format("2006-01-02 15:04:05"),
			typeWidth, e.Type,
			sourceWidth, truncate(e.Source, sourceWidth),
			subjectWidth, truncate(e.Subject, subjectWidth),
			truncate(e.Payload, 60)))
	}
	return strings.Join(lines, "\n")
}
