package trigger

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"hive/pkg/protocol"
)

// DefaultPollInterval is the interval between existence checks when the
// caller does not choose one.
const DefaultPollInterval = 500 * time.Millisecond

// NoTimeout makes Await wait until the trigger fires or the context ends.
const NoTimeout time.Duration = -1

// Await blocks until name has fired, timeout elapses, or ctx is done.
//
// The trigger is checked immediately, then once per poll interval. When a
// filesystem watcher can be placed on the triggers directory, create events
// cause an extra check; the poll keeps running so a missed event never delays
// detection by more than one interval. A TimeoutError is returned no earlier
// than timeout after the call.
func (s *Store) Await(ctx context.Context, name string, timeout, poll time.Duration) error {
	if err := protocol.ValidateName("trigger", name); err != nil {
		return err
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	w := s.watch()
	defer w.close()

	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ok, err := s.Check(name)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			// One last look so a fire that raced the timer is not reported
			// as a timeout.
			if ok, err := s.Check(name); err != nil || ok {
				return err
			}
			return &protocol.TimeoutError{Trigger: name, Timeout: timeout}
		case <-ticker.C:
		case _, open := <-w.events:
			if !open {
				w.events = nil
			}
		case _, open := <-w.errors:
			if !open {
				w.errors = nil
			}
		}
	}
}

// watcher holds the optional fsnotify channels. Nil channels block forever in
// select, so a watcher that could not be created degrades to polling only.
type watcher struct {
	fs     *fsnotify.Watcher
	events chan fsnotify.Event
	errors chan error
}

func (s *Store) watch() *watcher {
	w := &watcher{}
	if err := s.root.EnsureDir(protocol.TriggersDir); err != nil {
		return w
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w
	}
	if err := fw.Add(filepath.Join(s.root.Dir(), filepath.FromSlash(protocol.TriggersDir))); err != nil {
		_ = fw.Close()
		return w
	}
	w.fs = fw
	w.events = fw.Events
	w.errors = fw.Errors
	return w
}

func (w *watcher) close() {
	if w.fs != nil {
		_ = w.fs.Close()
	}
}
