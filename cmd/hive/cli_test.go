package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"hive/pkg/protocol"
)

// hiveEnv isolates a test in its own hive home with no inherited session
// or worker selection.
func hiveEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(protocol.EnvHome, home)
	t.Setenv(protocol.EnvSession, "")
	t.Setenv(protocol.EnvWorkerID, "")
	t.Setenv(protocol.EnvCycle, "")
	return home
}

// runHive executes one hive invocation and returns its stdout.
func runHive(t *testing.T, fake *fakeCmd, args ...string) (string, error) {
	t.Helper()
	if fake == nil {
		fake = newFakeCmd()
	}
	root := newRootCmdWith(&app{notifier: &Notifier{Runner: fake, Sleeper: noopSleep}})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// mustRun fails the test if the invocation errors.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runHive(t, nil, args...)
	if err != nil {
		t.Fatalf("hive %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// wantExit fails the test unless the invocation exits with code.
func wantExit(t *testing.T, code int, args ...string) string {
	t.Helper()
	out, err := runHive(t, nil, args...)
	if got := exitCode(err); got != code {
		t.Fatalf("hive %s exit = %d (%v), want %d\n%s", strings.Join(args, " "), got, err, code, out)
	}
	return out
}

func initSession(t *testing.T, workers string) {
	t.Helper()
	hiveEnv(t)
	mustRun(t, "init", "--name", "demo", "--workers", workers, "--workspace", t.TempDir())
}

func TestInit_CreatesHomeConfigAndProtocols(t *testing.T) {
	home := hiveEnv(t)

	out := mustRun(t, "init")
	if !strings.Contains(out, "Installed protocols: fan-out, review") {
		t.Errorf("init output missing installed protocols:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(home, "config.yaml")); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}

	// A second init leaves user edits alone.
	custom := filepath.Join(home, protocol.ProtocolsDir, "review.md")
	if err := os.WriteFile(custom, []byte("# mine\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out = mustRun(t, "init")
	if strings.Contains(out, "Installed") || strings.Contains(out, "Wrote") {
		t.Errorf("second init should be a no-op:\n%s", out)
	}
	if out := mustRun(t, "protocol", "show", "review"); out != "# mine\n" {
		t.Errorf("review protocol overwritten: %q", out)
	}
}

func TestSwarmRound(t *testing.T) {
	initSession(t, "2")

	mustRun(t, "send", "0", "count", "TODOs")
	mustRun(t, "send", "1", "count FIXMEs")

	var entries []stateEntry
	if err := json.Unmarshal([]byte(mustRun(t, "state", "--json")), &entries); err != nil {
		t.Fatalf("state --json: %v", err)
	}
	if len(entries) != 2 || entries[0].State.Assignment != "count TODOs" || entries[1].State.Status != protocol.StatusWorking {
		t.Fatalf("unexpected states: %+v", entries)
	}

	out := mustRun(t, "done", "-w", "0", "--result", "5 TODOs")
	if strings.Contains(out, "All workers done") {
		t.Errorf("all done reported after one of two workers:\n%s", out)
	}
	wantExit(t, exitNotFound, "trigger", "check", protocol.AllDoneTrigger)
	mustRun(t, "trigger", "check", protocol.WorkerDoneTrigger(0))

	out = mustRun(t, "report", "-w", "1", "--task", "count FIXMEs", "--files", "a.go,b.go", "found", "2")
	if !strings.Contains(out, "All workers done") {
		t.Errorf("last report should fire all-done:\n%s", out)
	}
	if out := mustRun(t, "wait", "--timeout", "1s"); !strings.Contains(out, "All workers done.") {
		t.Errorf("wait output:\n%s", out)
	}

	out = mustRun(t, "results", "1")
	for _, want := range []string{"STATUS: COMPLETE", "TASK: count FIXMEs", "found 2", "... (truncated)"} {
		if !strings.Contains(out, want) {
			t.Errorf("results preview missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "a.go") {
		t.Errorf("results preview should stop before the file list:\n%s", out)
	}

	out = mustRun(t, "results", "--full", "1")
	for _, want := range []string{"FILES_MODIFIED:", "a.go", "b.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("full results missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "truncated") {
		t.Errorf("full results were truncated:\n%s", out)
	}

	out = mustRun(t, "events", "--type", "done")
	if strings.Count(out, "worker-") != 2 {
		t.Errorf("expected two done events:\n%s", out)
	}
}

func TestLockConflict(t *testing.T) {
	initSession(t, "3")

	mustRun(t, "lock", "-w", "0", "a.go", "b.go")
	mustRun(t, "lock", "-w", "2", "c.go")
	out := wantExit(t, exitConflict, "lock", "-w", "1", "b.go", "c.go", "d.go")
	for _, want := range []string{"b.go -> worker-0", "c.go -> worker-2"} {
		if !strings.Contains(out, want) {
			t.Errorf("conflict output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "locks")
	if strings.Contains(out, "d.go") {
		t.Errorf("failed request must claim nothing:\n%s", out)
	}

	mustRun(t, "unlock", "-w", "0")
	mustRun(t, "unlock", "-w", "2")
	mustRun(t, "lock", "-w", "1", "b.go", "c.go")
	if out := mustRun(t, "unlock", "-w", "0"); !strings.Contains(out, "No locks held") {
		t.Errorf("second unlock output:\n%s", out)
	}
}

func TestLock_ReportsDistinctResources(t *testing.T) {
	initSession(t, "1")

	if out := mustRun(t, "lock", "-w", "0", "a.go", "a.go", "b.go"); !strings.Contains(out, "Locked 2 resource(s)") {
		t.Errorf("lock output:\n%s", out)
	}
	if out := mustRun(t, "locks"); strings.Count(out, "a.go") != 1 {
		t.Errorf("a.go should be held once:\n%s", out)
	}
}

func TestReport_StaleCycleRejected(t *testing.T) {
	initSession(t, "1")

	if out := mustRun(t, "reset"); !strings.Contains(out, "Cycle 1") {
		t.Fatalf("reset output:\n%s", out)
	}
	mustRun(t, "send", "0", "old task")
	mustRun(t, "reset")

	wantExit(t, exitStaleCycle, "report", "-w", "0", "--cycle", "1", "late result")
	t.Setenv(protocol.EnvCycle, "1")
	wantExit(t, exitStaleCycle, "done", "-w", "0")
	mustRun(t, "done", "-w", "0", "--cycle", "2")
}

func TestReport_FirstCycleStaleAfterReset(t *testing.T) {
	initSession(t, "1")

	mustRun(t, "send", "0", "first task")
	if out := mustRun(t, "reset"); !strings.Contains(out, "Cycle 2") {
		t.Fatalf("reset output:\n%s", out)
	}
	wantExit(t, exitStaleCycle, "report", "-w", "0", "--cycle", "1", "late result")
	wantExit(t, exitNotFound, "trigger", "check", protocol.WorkerDoneTrigger(0))
}

func TestWorkerID_FromEnvironment(t *testing.T) {
	initSession(t, "2")

	wantExit(t, exitUsage, "done")
	t.Setenv(protocol.EnvWorkerID, "1")
	mustRun(t, "done")

	var entries []stateEntry
	if err := json.Unmarshal([]byte(mustRun(t, "state", "1", "--json")), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].State.Status != protocol.StatusComplete {
		t.Errorf("worker 1 state = %+v", entries)
	}

	t.Setenv(protocol.EnvWorkerID, "nope")
	wantExit(t, exitUsage, "unlock")
}

func TestUsageAndLookupErrors(t *testing.T) {
	initSession(t, "2")

	wantExit(t, exitUsage, "send", "0")
	wantExit(t, exitUsage, "send", "x", "task")
	wantExit(t, exitUsage, "wait", "--bogus")
	wantExit(t, exitUsage, "report", "-w", "0", "--status", "MAYBE", "x")
	wantExit(t, exitUsage, "trigger", "fire", "../up")
	wantExit(t, exitNotFound, "send", "7", "task")
	wantExit(t, exitNotFound, "--session", "ghost", "state")
}

func TestWait_Timeout(t *testing.T) {
	initSession(t, "1")
	wantExit(t, exitTimeout, "wait", "--timeout", "50ms")
	wantExit(t, exitTimeout, "wait", "custom", "--timeout", "20ms")

	mustRun(t, "trigger", "fire", "custom")
	if out := mustRun(t, "wait", "custom"); !strings.Contains(out, "custom fired.") {
		t.Errorf("wait output:\n%s", out)
	}
}

func TestProtocolAndPhase(t *testing.T) {
	initSession(t, "1")

	wantExit(t, exitNotFound, "protocol", "set", "nope")
	mustRun(t, "protocol", "set", "fan-out")
	if out := mustRun(t, "protocol", "get"); strings.TrimSpace(out) != "fan-out" {
		t.Errorf("protocol get = %q", out)
	}

	src := filepath.Join(t.TempDir(), "tdd.md")
	if err := os.WriteFile(src, []byte("# tdd\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mustRun(t, "protocol", "add", "tdd", src)
	if out := mustRun(t, "protocol", "list"); !strings.Contains(out, "tdd") {
		t.Errorf("protocol list:\n%s", out)
	}

	mustRun(t, "phase", "set", "red", "bar")
	if out := mustRun(t, "phase", "get"); strings.TrimSpace(out) != "red bar" {
		t.Errorf("phase get = %q", out)
	}

	mustRun(t, "reset")
	if out := mustRun(t, "phase", "get"); !strings.Contains(out, "No phase set") {
		t.Errorf("phase survived reset: %q", out)
	}
}

func TestSend_Notify(t *testing.T) {
	initSession(t, "2")
	fake := newFakeCmd()

	out, err := runHive(t, fake, "send", "--notify", "1", "review pkg/lock")
	if err != nil {
		t.Fatalf("send --notify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Notified worker 1 (swarm:main.1)") {
		t.Errorf("send output:\n%s", out)
	}

	var typed string
	for _, call := range fake.calls {
		if len(call) == 6 && call[1] == "send-keys" && call[4] == "-l" {
			typed = call[5]
		}
	}
	for _, want := range []string{"Worker 1", "hive report -w 1 --cycle 1", "TASK:\nreview pkg/lock"} {
		if !strings.Contains(typed, want) {
			t.Errorf("typed text missing %q:\n%s", want, typed)
		}
	}
}

func TestSessionCommands(t *testing.T) {
	hiveEnv(t)

	mustRun(t, "session", "create", "alpha", "--workers", "3", "--tmux-session", "work", "--use")
	mustRun(t, "session", "create", "beta", "--workers", "1")
	wantExit(t, exitUsage, "session", "create", "bad/name")

	out := mustRun(t, "session", "list")
	if !strings.Contains(out, "* alpha") || !strings.Contains(out, "  beta") {
		t.Errorf("session list:\n%s", out)
	}

	out = mustRun(t, "session", "show")
	if !strings.Contains(out, "Workers:   3") || !strings.Contains(out, "work:main.0 .. work:main.2") {
		t.Errorf("session show:\n%s", out)
	}

	mustRun(t, "session", "use", "beta")
	mustRun(t, "session", "rm", "beta")
	wantExit(t, exitNotFound, "state")

	t.Setenv(protocol.EnvSession, "alpha")
	mustRun(t, "state")
}

func TestResults_Preview(t *testing.T) {
	var buf bytes.Buffer
	writeResult(&buf, "1\n2\n3\n4\n5\n6\n7\n", false)
	want := "    1\n    2\n    3\n    4\n    5\n    ... (truncated)\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("preview mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	writeResult(&buf, "1\n2\n3\n4\n5\n6\n", true)
	if strings.Contains(buf.String(), "truncated") || !strings.Contains(buf.String(), "    6\n") {
		t.Errorf("full result:\n%s", buf.String())
	}
}

func TestFormatReport(t *testing.T) {
	got := formatReport("PARTIAL", "", "half done", nil)
	want := "STATUS: PARTIAL\nTASK: Not specified\nRESULT:\nhalf done\nFILES_MODIFIED:\n(none reported)\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if got := formatReport("COMPLETE", "t", "r", []string{"a.go", "b.go"}); !strings.HasSuffix(got, "FILES_MODIFIED:\na.go\nb.go\n") {
		t.Errorf("files not listed:\n%s", got)
	}
}
