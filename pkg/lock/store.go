// Package lock implements advisory per-worker resource claims. Each worker
// holds at most one record, locks/worker-{id}.lock, listing the resources it
// has claimed one per line. Acquisition is serialized by an flock on
// locks/.master.lock so that check-then-write is atomic across processes on a
// local filesystem.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

// Store manages lock records for one session.
type Store struct {
	root *fsroot.Root
}

// New returns a Store over root.
func New(root *fsroot.Root) *Store {
	return &Store{root: root}
}

// Acquire claims resources for worker id. Either every resource is granted
// or none is: when another worker already holds any of them, a
// *protocol.ConflictError naming the first collision is returned and no
// record is written. A successful call replaces whatever id held before.
func (s *Store) Acquire(id int, resources []string) error {
	want, err := normalize(resources)
	if err != nil {
		return err
	}

	h, err := s.root.AcquireExclusive(protocol.MasterLockFile, fsroot.Block)
	if err != nil {
		return fmt.Errorf("acquire master lock: %w", err)
	}
	defer func() { _ = h.Release() }()

	held, err := s.All()
	if err != nil {
		return err
	}
	if conflict := findConflicts(id, want, held); conflict != nil {
		return conflict
	}

	return s.root.AtomicReplace(protocol.LockRecordPath(id), []byte(strings.Join(want, "\n")+"\n"))
}

// normalize drops duplicate resources, keeping first-seen order, and rejects
// names that cannot be stored one per line.
func normalize(resources []string) ([]string, error) {
	seen := make(map[string]bool, len(resources))
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		switch {
		case strings.TrimSpace(r) == "":
			return nil, &protocol.InvalidNameError{Kind: "resource", Name: r, Reason: "empty"}
		case strings.ContainsAny(r, "\n\r\x00"):
			return nil, &protocol.InvalidNameError{Kind: "resource", Name: r, Reason: "contains a line break or NUL"}
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, &protocol.InvalidNameError{Kind: "resource", Name: "", Reason: "no resources requested"}
	}
	return out, nil
}

// findConflicts walks holders in ascending worker order and, within each
// holder, the request in its given order.
func findConflicts(id int, want []string, held map[int][]string) *protocol.ConflictError {
	holders := make([]int, 0, len(held))
	for h := range held {
		if h != id {
			holders = append(holders, h)
		}
	}
	sort.Ints(holders)

	var claims []protocol.Claim
	for _, h := range holders {
		theirs := make(map[string]bool, len(held[h]))
		for _, r := range held[h] {
			theirs[r] = true
		}
		for _, r := range want {
			if theirs[r] {
				claims = append(claims, protocol.Claim{Holder: h, Resource: r})
			}
		}
	}
	if len(claims) == 0 {
		return nil
	}
	return &protocol.ConflictError{
		Requester: id,
		Holder:    claims[0].Holder,
		Resource:  claims[0].Resource,
		Conflicts: claims,
	}
}

// Release drops every claim of worker id and reports whether it held any.
func (s *Store) Release(id int) (bool, error) {
	return s.root.Remove(protocol.LockRecordPath(id))
}

// Held returns the resources claimed by worker id, nil if none.
func (s *Store) Held(id int) ([]string, error) {
	rel := protocol.LockRecordPath(id)
	data, err := s.root.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return parseRecord(data), nil
}

func parseRecord(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// All returns every worker's claims keyed by worker index. Files in locks/
// that are not lock records are ignored.
func (s *Store) All() (map[int][]string, error) {
	names, err := s.root.ListDir(protocol.LocksDir)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]string, len(names))
	for _, name := range names {
		id, ok := protocol.ParseLockRecordName(name)
		if !ok {
			continue
		}
		res, err := s.Held(id)
		if err != nil {
			return nil, err
		}
		if len(res) > 0 {
			out[id] = res
		}
	}
	return out, nil
}

// ClearAll removes every lock record under the master lock. The master lock
// file itself is left in place.
func (s *Store) ClearAll() error {
	h, err := s.root.AcquireExclusive(protocol.MasterLockFile, fsroot.Block)
	if err != nil {
		return fmt.Errorf("acquire master lock: %w", err)
	}
	defer func() { _ = h.Release() }()

	names, err := s.root.ListDir(protocol.LocksDir)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, ok := protocol.ParseLockRecordName(name); !ok {
			continue
		}
		if _, err := s.root.Remove(protocol.LocksDir + "/" + name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
