package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"hive/pkg/protocol"
	"hive/pkg/session"
)

func TestCreateAndOpen(t *testing.T) {
	home := t.TempDir()
	reg := session.NewRegistry(home)

	s, err := reg.Create("alpha", "/work/repo", 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Dir != filepath.Join(home, "sessions", "alpha") {
		t.Errorf("Dir = %s", s.Dir)
	}
	for _, sub := range []string{"state/workers", "triggers", "locks", "results"} {
		if fi, err := os.Stat(filepath.Join(s.Dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("missing %s: %v", sub, err)
		}
	}

	got, err := reg.Open("alpha")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("Open mismatch (-want +got):\n%s", diff)
	}
	if got.JournalPath() != filepath.Join(s.Dir, "events.db") {
		t.Errorf("JournalPath = %s", got.JournalPath())
	}
}

func TestPaneTarget(t *testing.T) {
	reg := session.NewRegistry(t.TempDir())
	cfg := session.DefaultConfig()

	plain, err := reg.Create("plain", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := plain.PaneTarget(1, cfg); got != "swarm:main.1" {
		t.Errorf("PaneTarget default = %s", got)
	}

	custom, err := reg.Create("custom", "", 2, session.WithTmux("team", "work"))
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := reg.Open("custom")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(custom, reopened); diff != "" {
		t.Errorf("tmux fields not persisted (-want +got):\n%s", diff)
	}
	if got := reopened.PaneTarget(0, cfg); got != "team:work.0" {
		t.Errorf("PaneTarget custom = %s", got)
	}
}

func TestCreate_Errors(t *testing.T) {
	reg := session.NewRegistry(t.TempDir())
	if _, err := reg.Create("alpha", "", 2); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Create("alpha", "", 2); !errors.Is(err, session.ErrExists) {
		t.Errorf("duplicate Create err = %v, want ErrExists", err)
	}
	if _, err := reg.Create("beta", "", 0); err == nil {
		t.Error("Create with 0 workers should fail")
	}
	for _, name := range []string{"", ".dot", "a/b", "sp ace", "ü"} {
		if _, err := reg.Create(name, "", 1); protocol.KindOf(err) != protocol.KindInvalidName {
			t.Errorf("Create(%q) err = %v, want invalid name", name, err)
		}
	}
}

func TestCreate_FailureLeavesNoDirectory(t *testing.T) {
	home := t.TempDir()
	reg := session.NewRegistry(home)

	// A file where the state directory belongs makes the layout step fail.
	blockState := func(s *session.Session) {
		if err := os.WriteFile(filepath.Join(s.Dir, "state"), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := reg.Create("alpha", "", 2, blockState); err == nil {
		t.Fatal("Create should fail when the state directory cannot be made")
	}
	if _, err := os.Stat(filepath.Join(home, "sessions", "alpha")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("failed Create left its directory behind: %v", err)
	}
	if names, _ := reg.List(); len(names) != 0 {
		t.Errorf("List after failed Create = %v", names)
	}

	if _, err := reg.Create("alpha", "", 2); err != nil {
		t.Fatalf("retry after failed Create: %v", err)
	}
	if _, err := reg.Open("alpha"); err != nil {
		t.Errorf("Open after retry: %v", err)
	}
}

func TestOpen_MissingAndCorrupt(t *testing.T) {
	home := t.TempDir()
	reg := session.NewRegistry(home)

	if _, err := reg.Open("ghost"); protocol.KindOf(err) != protocol.KindNotFound {
		t.Errorf("Open(ghost) err = %v, want not found", err)
	}

	dir := filepath.Join(home, "sessions", "broken")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.yaml"), []byte("workers: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Open("broken"); protocol.KindOf(err) != protocol.KindCorrupt {
		t.Errorf("Open(broken) err = %v, want corrupt state", err)
	}

	// A corrupt session can still be removed.
	if err := reg.Remove("broken"); err != nil {
		t.Errorf("Remove(broken): %v", err)
	}
}

func TestListRemoveAndActive(t *testing.T) {
	reg := session.NewRegistry(t.TempDir())
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if _, err := reg.Create(n, "", 1); err != nil {
			t.Fatal(err)
		}
	}

	names, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, names); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	if _, ok, _ := reg.Active(); ok {
		t.Error("no session should be active yet")
	}
	if err := reg.SetActive("ghost"); protocol.KindOf(err) != protocol.KindNotFound {
		t.Errorf("SetActive(ghost) err = %v", err)
	}
	if err := reg.SetActive("mid"); err != nil {
		t.Fatal(err)
	}
	if name, ok, err := reg.Active(); err != nil || !ok || name != "mid" {
		t.Errorf("Active = %q, %v, %v", name, ok, err)
	}

	if err := reg.Remove("mid"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := reg.Active(); ok {
		t.Error("removing the active session should clear the pointer")
	}
	if err := reg.Remove("mid"); protocol.KindOf(err) != protocol.KindNotFound {
		t.Errorf("second Remove err = %v, want not found", err)
	}
}

func TestResolve_Precedence(t *testing.T) {
	reg := session.NewRegistry(t.TempDir())
	for _, n := range []string{"flag", "env", "active"} {
		if _, err := reg.Create(n, "", 1); err != nil {
			t.Fatal(err)
		}
	}

	t.Setenv(protocol.EnvSession, "")
	if _, err := reg.Resolve(""); protocol.KindOf(err) != protocol.KindNotFound {
		t.Errorf("Resolve with nothing selected err = %v", err)
	}

	if err := reg.SetActive("active"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		explicit string
		env      string
		want     string
	}{
		{"active pointer", "", "", "active"},
		{"env beats active", "", "env", "env"},
		{"explicit beats env", "flag", "env", "flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(protocol.EnvSession, tt.env)
			s, err := reg.Resolve(tt.explicit)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if s.Name != tt.want {
				t.Errorf("Resolve = %s, want %s", s.Name, tt.want)
			}
		})
	}
}

func TestResolveHome(t *testing.T) {
	t.Setenv(protocol.EnvHome, "/tmp/custom-hive")
	got, err := session.ResolveHome()
	if err != nil || got != "/tmp/custom-hive" {
		t.Errorf("ResolveHome = %s, %v", got, err)
	}

	t.Setenv(protocol.EnvHome, "")
	t.Setenv("HOME", "/tmp/fakehome")
	got, err = session.ResolveHome()
	if err != nil || got != filepath.Join("/tmp/fakehome", ".hive") {
		t.Errorf("ResolveHome default = %s, %v", got, err)
	}
}
