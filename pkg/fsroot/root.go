// Package fsroot provides the atomic filesystem primitives every other hive
// store is built on: exclusive create, write-then-rename replace, and
// advisory flock-based exclusion. A Root confines all paths to one directory.
package fsroot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"hive/pkg/protocol"
)

// dirPerm and filePerm match the permissions the session tree is created with.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Root is a directory tree used as a coordination medium.
type Root struct {
	dir string
}

// New returns a Root for dir. The directory is not created.
func New(dir string) *Root {
	return &Root{dir: filepath.Clean(dir)}
}

// Dir returns the absolute-or-as-given root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Path resolves rel against the root. rel must be a slash-separated path that
// stays inside the root.
func (r *Root) Path(rel string) (string, error) {
	clean := path.Clean(rel)
	if rel == "" || path.IsAbs(rel) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &protocol.InvalidNameError{Kind: "path", Name: rel, Reason: "escapes root"}
	}
	return filepath.Join(r.dir, filepath.FromSlash(clean)), nil
}

// EnsureDir creates rel and any missing parents.
func (r *Root) EnsureDir(rel string) error {
	p, err := r.Path(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, dirPerm); err != nil {
		return &protocol.IOError{Op: "mkdir", Path: p, Err: err}
	}
	return nil
}

// AtomicCreate creates an empty file at rel with O_EXCL. It reports
// created=false without error when the file already exists, so concurrent
// creators agree on exactly one winner and no reader ever sees a partial file.
func (r *Root) AtomicCreate(rel string) (created bool, err error) {
	p, err := r.Path(rel)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return false, &protocol.IOError{Op: "mkdir", Path: filepath.Dir(p), Err: err}
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm) //nolint:gosec // path confined to root
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &protocol.IOError{Op: "create", Path: p, Err: err}
	}
	if err := f.Close(); err != nil {
		return true, &protocol.IOError{Op: "close", Path: p, Err: err}
	}
	return true, nil
}

// AtomicReplace writes data to a uniquely named temp file in the target's
// directory and renames it over rel. Readers observe either the previous
// content or data, never a mixture.
func (r *Root) AtomicReplace(rel string, data []byte) error {
	p, err := r.Path(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return &protocol.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(p), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm) //nolint:gosec // path confined to root
	if err != nil {
		return &protocol.IOError{Op: "create", Path: tmp, Err: err}
	}

	if err := writeAndSync(f, data); err != nil {
		_ = os.Remove(tmp)
		return &protocol.IOError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return &protocol.IOError{Op: "rename", Path: p, Err: err}
	}
	return nil
}

// writeAndSync writes data, fsyncs and closes f.
func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile returns the content of rel. A missing file yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func (r *Root) ReadFile(rel string) ([]byte, error) {
	p, err := r.Path(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // path confined to root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", rel, fs.ErrNotExist)
		}
		return nil, &protocol.IOError{Op: "read", Path: p, Err: err}
	}
	return data, nil
}

// Exists reports whether rel exists.
func (r *Root) Exists(rel string) (bool, error) {
	p, err := r.Path(rel)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &protocol.IOError{Op: "stat", Path: p, Err: err}
	}
	return true, nil
}

// Remove deletes rel. It is idempotent: removed=false and no error if the
// file does not exist.
func (r *Root) Remove(rel string) (removed bool, err error) {
	p, err := r.Path(rel)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &protocol.IOError{Op: "remove", Path: p, Err: err}
	}
	return true, nil
}

// RemoveAll deletes rel and everything below it.
func (r *Root) RemoveAll(rel string) error {
	p, err := r.Path(rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return &protocol.IOError{Op: "remove", Path: p, Err: err}
	}
	return nil
}

// ListDir returns the sorted names of the regular files in rel, skipping
// dot-files (temp files and lock files). A missing directory lists as empty.
func (r *Root) ListDir(rel string) ([]string, error) {
	p, err := r.Path(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &protocol.IOError{Op: "readdir", Path: p, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// MakeDir creates the directory rel, creating missing parents. It reports
// created=false without error when rel already exists, so concurrent callers
// agree on a single creator.
func (r *Root) MakeDir(rel string) (created bool, err error) {
	p, err := r.Path(rel)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return false, &protocol.IOError{Op: "mkdir", Path: filepath.Dir(p), Err: err}
	}
	if err := os.Mkdir(p, dirPerm); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &protocol.IOError{Op: "mkdir", Path: p, Err: err}
	}
	return true, nil
}

// ListDirs returns the sorted names of the subdirectories of rel, skipping
// names with a leading dot. A missing directory lists as empty.
func (r *Root) ListDirs(rel string) ([]string, error) {
	p, err := r.Path(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &protocol.IOError{Op: "readdir", Path: p, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
