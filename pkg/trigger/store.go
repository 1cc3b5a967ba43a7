// Package trigger implements one-shot named signals as files under the
// session's triggers/ directory. A trigger is fired by creating its file and
// is never un-fired except by Clear or a session reset.
package trigger

import (
	"errors"
	"strconv"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

// Store fires, checks and awaits triggers for one session.
type Store struct {
	root    *fsroot.Root
	workers int
}

// New returns a Store over root for a session with the given worker count.
// The worker count defines which worker-{i}-done triggers make up all-done.
func New(root *fsroot.Root, workers int) *Store {
	return &Store{root: root, workers: workers}
}

func path(name string) string {
	return protocol.TriggersDir + "/" + name
}

// Fire creates the trigger. Firing an already-fired trigger is a no-op.
func (s *Store) Fire(name string) error {
	if err := protocol.ValidateName("trigger", name); err != nil {
		return err
	}
	_, err := s.root.AtomicCreate(path(name))
	return err
}

// Check reports whether the trigger has fired.
func (s *Store) Check(name string) (bool, error) {
	if err := protocol.ValidateName("trigger", name); err != nil {
		return false, err
	}
	return s.root.Exists(path(name))
}

// FireWorkerDone fires worker-{id}-done and then fires all-done when every
// worker in 0..N-1 has its done trigger. Because each caller checks after its
// own fire, whichever worker completes last observes the full set.
func (s *Store) FireWorkerDone(id int) (allDone bool, err error) {
	if id < 0 || id >= s.workers {
		return false, &protocol.NotFoundError{Kind: "worker", Name: strconv.Itoa(id)}
	}
	if err := s.Fire(protocol.WorkerDoneTrigger(id)); err != nil {
		return false, err
	}
	for i := 0; i < s.workers; i++ {
		ok, err := s.Check(protocol.WorkerDoneTrigger(i))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if err := s.Fire(protocol.AllDoneTrigger); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes one trigger and reports whether it existed.
func (s *Store) Clear(name string) (bool, error) {
	if err := protocol.ValidateName("trigger", name); err != nil {
		return false, err
	}
	return s.root.Remove(path(name))
}

// List returns the names of all fired triggers, sorted.
func (s *Store) List() ([]string, error) {
	return s.root.ListDir(protocol.TriggersDir)
}

// ClearAll removes every trigger.
func (s *Store) ClearAll() error {
	names, err := s.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, err := s.root.Remove(path(name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
