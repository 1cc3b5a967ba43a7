package fsroot

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"hive/pkg/protocol"
)

// LockMode selects how AcquireExclusive behaves when the lock is held.
type LockMode int

const (
	// Block waits until the lock is released.
	Block LockMode = iota
	// FailFast returns ErrBusy immediately.
	FailFast
)

// ErrBusy is returned by AcquireExclusive in FailFast mode when another
// holder has the lock.
var ErrBusy = errors.New("lock busy")

// Handle is a held exclusive lock.
type Handle struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// AcquireExclusive takes an advisory exclusive flock on rel, creating the
// lock file if needed. flock locks belong to the open file description, so
// two handles in the same process also exclude each other.
func (r *Root) AcquireExclusive(rel string, mode LockMode) (*Handle, error) {
	p, err := r.Path(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return nil, &protocol.IOError{Op: "mkdir", Path: filepath.Dir(p), Err: err}
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, filePerm) //nolint:gosec // path confined to root
	if err != nil {
		return nil, &protocol.IOError{Op: "open", Path: p, Err: err}
	}

	how := unix.LOCK_EX
	if mode == FailFast {
		how |= unix.LOCK_NB
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrBusy
		}
		return nil, &protocol.IOError{Op: "flock", Path: p, Err: err}
	}
	return &Handle{f: f, path: p}, nil
}

// Release unlocks and closes the lock file. Calling it more than once is a no-op.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return nil
	}
	f := h.f
	h.f = nil
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return &protocol.IOError{Op: "unlock", Path: h.path, Err: unlockErr}
	}
	if closeErr != nil {
		return &protocol.IOError{Op: "close", Path: h.path, Err: closeErr}
	}
	return nil
}
