package fsroot_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

func TestAtomicCreate_ExactlyOneWinner(t *testing.T) {
	root := fsroot.New(t.TempDir())

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := root.AtomicCreate("triggers/all-done")
			if err != nil {
				t.Errorf("AtomicCreate: %v", err)
				return
			}
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for created := range results {
		if created {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one creator, got %d", winners)
	}

	ok, err := root.Exists("triggers/all-done")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}
}

func TestAtomicReplace_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	root := fsroot.New(dir)

	for _, content := range []string{"first", "second", "third"} {
		if err := root.AtomicReplace("state/phase", []byte(content)); err != nil {
			t.Fatalf("AtomicReplace(%q): %v", content, err)
		}
	}

	data, err := root.ReadFile("state/phase")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "third" {
		t.Errorf("content = %q, want third", data)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the target file, found %v", names)
	}
}

func TestAtomicReplace_ConcurrentReadersSeeWholeDocuments(t *testing.T) {
	root := fsroot.New(t.TempDir())
	a := bytes.Repeat([]byte("a"), 64*1024)
	b := bytes.Repeat([]byte("b"), 64*1024)
	if err := root.AtomicReplace("doc", a); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			next := a
			if i%2 == 0 {
				next = b
			}
			if err := root.AtomicReplace("doc", next); err != nil {
				t.Errorf("AtomicReplace: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		data, err := root.ReadFile("doc")
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !bytes.Equal(data, a) && !bytes.Equal(data, b) {
			t.Fatalf("read a torn document of %d bytes", len(data))
		}
	}
	close(stop)
	wg.Wait()
}

func TestReadFile_MissingIsNotExist(t *testing.T) {
	root := fsroot.New(t.TempDir())
	_, err := root.ReadFile("state/workers/0.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	root := fsroot.New(t.TempDir())
	if _, err := root.AtomicCreate("triggers/x"); err != nil {
		t.Fatalf("AtomicCreate: %v", err)
	}

	removed, err := root.Remove("triggers/x")
	if err != nil || !removed {
		t.Fatalf("first Remove = %v, %v; want true, nil", removed, err)
	}
	removed, err = root.Remove("triggers/x")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v; want false, nil", removed, err)
	}
}

func TestListDir(t *testing.T) {
	root := fsroot.New(t.TempDir())

	names, err := root.ListDir("triggers")
	if err != nil {
		t.Fatalf("ListDir on missing dir: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("missing dir should list empty, got %v", names)
	}

	for _, n := range []string{"worker-1-done", "all-done", "worker-0-done"} {
		if _, err := root.AtomicCreate("triggers/" + n); err != nil {
			t.Fatalf("AtomicCreate(%s): %v", n, err)
		}
	}
	h, err := root.AcquireExclusive("triggers/.hidden.lock", fsroot.FailFast)
	if err != nil {
		t.Fatalf("AcquireExclusive: %v", err)
	}
	defer func() { _ = h.Release() }()
	if err := root.EnsureDir("triggers/subdir"); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	names, err = root.ListDir("triggers")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	want := []string{"all-done", "worker-0-done", "worker-1-done"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ListDir mismatch (-want +got):\n%s", diff)
	}
}

func TestPath_RejectsEscapes(t *testing.T) {
	root := fsroot.New(t.TempDir())
	for _, rel := range []string{"", "/etc/passwd", "..", "../x", "a/../../x"} {
		if _, err := root.Path(rel); protocol.KindOf(err) != protocol.KindInvalidName {
			t.Errorf("Path(%q) err = %v, want invalid name", rel, err)
		}
	}
	if _, err := root.Path("state/workers/0.json"); err != nil {
		t.Errorf("Path(valid) = %v", err)
	}
}

func TestAcquireExclusive_FailFastWhenHeld(t *testing.T) {
	root := fsroot.New(t.TempDir())

	h, err := root.AcquireExclusive("locks/.master.lock", fsroot.Block)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := root.AcquireExclusive("locks/.master.lock", fsroot.FailFast); !errors.Is(err, fsroot.ErrBusy) {
		t.Fatalf("second acquire err = %v, want ErrBusy", err)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}

	h2, err := root.AcquireExclusive("locks/.master.lock", fsroot.FailFast)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = h2.Release()
}

func TestAcquireExclusive_BlockWaitsForRelease(t *testing.T) {
	root := fsroot.New(t.TempDir())

	h, err := root.AcquireExclusive("m.lock", fsroot.Block)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		h2, err := root.AcquireExclusive("m.lock", fsroot.Block)
		if err != nil {
			t.Errorf("blocking acquire: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		_ = h2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("blocking acquire returned while lock was held")
	case <-time.After(100 * time.Millisecond):
	}

	_ = h.Release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking acquire did not return after release")
	}
}

func TestMakeDir_SingleCreator(t *testing.T) {
	root := fsroot.New(t.TempDir())

	created, err := root.MakeDir("sessions/alpha")
	if err != nil || !created {
		t.Fatalf("first MakeDir = %v, %v", created, err)
	}
	created, err = root.MakeDir("sessions/alpha")
	if err != nil || created {
		t.Fatalf("second MakeDir = %v, %v; want false, nil", created, err)
	}
	if _, err := root.MakeDir("sessions/beta"); err != nil {
		t.Fatal(err)
	}
	if _, err := root.AtomicCreate("sessions/not-a-dir"); err != nil {
		t.Fatal(err)
	}
	if err := root.EnsureDir("sessions/.hidden"); err != nil {
		t.Fatal(err)
	}

	names, err := root.ListDirs("sessions")
	if err != nil {
		t.Fatalf("ListDirs: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, names); diff != "" {
		t.Errorf("ListDirs mismatch (-want +got):\n%s", diff)
	}
}
