package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CmdRunner abstracts command execution for testability.
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner implements CmdRunner using os/exec.
type ExecRunner struct{}

// Run executes a command and returns its combined output. The command is
// killed when ctx is done.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// pasteSettle is the delay between typing text and submitting it, so an
// agent TUI in the pane finishes processing the paste before Enter arrives.
const pasteSettle = 200 * time.Millisecond

// Notifier types messages into worker panes of a running tmux session.
type Notifier struct {
	Runner  CmdRunner
	Sleeper func(time.Duration) // optional; overrides time.Sleep for testing
}

// SendKeys types text into paneTarget literally, leaves any special input
// mode with Escape, then submits with Enter. It stops before the next
// keystroke once ctx is done.
func (n *Notifier) SendKeys(ctx context.Context, paneTarget, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.Runner.Run(ctx, "tmux", "has-session", "-t", sessionOf(paneTarget)); err != nil {
		return fmt.Errorf("tmux session for %s is not running: %w", paneTarget, err)
	}
	if _, err := n.Runner.Run(ctx, "tmux", "send-keys", "-t", paneTarget, "-l", text); err != nil {
		return fmt.Errorf("tmux send-keys -l to %s: %w", paneTarget, err)
	}
	n.sleep(pasteSettle)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("tmux send-keys to %s: %w", paneTarget, err)
	}

	_, _ = n.Runner.Run(ctx, "tmux", "send-keys", "-t", paneTarget, "Escape")
	n.sleep(100 * time.Millisecond)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("tmux send-keys to %s: %w", paneTarget, err)
	}

	if _, err := n.Runner.Run(ctx, "tmux", "send-keys", "-t", paneTarget, "Enter"); err != nil {
		return fmt.Errorf("tmux send-keys Enter to %s: %w", paneTarget, err)
	}
	return nil
}

func (n *Notifier) sleep(d time.Duration) {
	if n.Sleeper != nil {
		n.Sleeper(d)
		return
	}
	time.Sleep(d)
}

// sessionOf returns the session part of a "session:window.pane" target.
func sessionOf(target string) string {
	if i := strings.IndexByte(target, ':'); i >= 0 {
		return target[:i]
	}
	return target
}
