// Package state stores per-worker lifecycle documents, the protocol/phase/cycle
// scalar pointers and per-worker result blobs inside a session directory.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

// Field sets one key of a worker state document.
type Field func(doc map[string]json.RawMessage) error

// field marshals v under key.
func field(key string, v any) Field {
	return func(doc map[string]json.RawMessage) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		doc[key] = raw
		return nil
	}
}

// WithStatus sets the lifecycle status.
func WithStatus(s protocol.Status) Field { return field("status", s) }

// WithAssignment sets the task text.
func WithAssignment(task string) Field { return field("assignment", task) }

// WithBranch sets the branch the worker produced.
func WithBranch(branch string) Field { return field("branch", branch) }

// WithFiles sets the ordered list of files the worker touched.
func WithFiles(files []string) Field {
	if files == nil {
		files = []string{}
	}
	return field("files", files)
}

// WithResult sets the short result summary.
func WithResult(result string) Field { return field("result", result) }

// WithError sets the failure message.
func WithError(msg string) Field { return field("error", msg) }

// WithCycle stamps the generation the document belongs to.
func WithCycle(cycle int64) Field { return field("cycle", cycle) }

// Snapshot is one worker's state, or the error that prevented reading it.
type Snapshot struct {
	ID    int
	State protocol.WorkerState
	Err   error
}

// Store reads and writes state documents under a session root.
type Store struct {
	root *fsroot.Root
	now  func() time.Time
}

// New creates a Store over root.
func New(root *fsroot.Root) *Store {
	return &Store{root: root, now: time.Now}
}

// Merge applies fields on top of the worker's existing document. Keys not
// named by fields, including keys this package does not know, are kept.
// A corrupt existing document is reported and left untouched.
func (s *Store) Merge(id int, fields ...Field) error {
	doc, err := s.readDoc(id)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = readyDoc()
	}
	return s.writeDoc(id, doc, fields)
}

// Replace writes a fresh document starting from the ready default.
func (s *Store) Replace(id int, fields ...Field) error {
	return s.writeDoc(id, readyDoc(), fields)
}

func readyDoc() map[string]json.RawMessage {
	return map[string]json.RawMessage{"status": json.RawMessage(`"ready"`)}
}

func (s *Store) writeDoc(id int, doc map[string]json.RawMessage, fields []Field) error {
	for _, f := range fields {
		if err := f(doc); err != nil {
			return err
		}
	}
	if err := field("updated_at", s.now().UTC().Format(time.RFC3339))(doc); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal worker %d state: %w", id, err)
	}
	return s.root.AtomicReplace(protocol.WorkerStatePath(id), data)
}

// readDoc returns nil, nil when the worker has no document.
func (s *Store) readDoc(id int) (map[string]json.RawMessage, error) {
	key := protocol.WorkerStatePath(id)
	data, err := s.root.ReadFile(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &protocol.CorruptStateError{Key: key, Err: err}
	}
	if doc == nil {
		return nil, &protocol.CorruptStateError{Key: key, Err: errors.New("document is null")}
	}
	return doc, nil
}

// Worker returns the state of worker id. A worker without a document is ready.
func (s *Store) Worker(id int) (protocol.WorkerState, error) {
	key := protocol.WorkerStatePath(id)
	data, err := s.root.ReadFile(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return protocol.ReadyState(), nil
		}
		return protocol.WorkerState{}, err
	}

	var ws protocol.WorkerState
	if err := json.Unmarshal(data, &ws); err != nil {
		return protocol.WorkerState{}, &protocol.CorruptStateError{Key: key, Err: err}
	}
	if !ws.Status.Valid() {
		return protocol.WorkerState{}, &protocol.CorruptStateError{
			Key: key,
			Err: fmt.Errorf("unknown status %q", ws.Status),
		}
	}
	return ws, nil
}

// Workers returns a snapshot for every index in 0..n-1. A bad document only
// affects its own entry.
func (s *Store) Workers(n int) []Snapshot {
	out := make([]Snapshot, 0, n)
	for i := 0; i < n; i++ {
		ws, err := s.Worker(i)
		out = append(out, Snapshot{ID: i, State: ws, Err: err})
	}
	return out
}

// ClearAll removes every worker document and the protocol and phase pointers.
// The cycle counter and results are kept.
func (s *Store) ClearAll() error {
	names, err := s.root.ListDir(protocol.WorkerStateDir)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, err := s.root.Remove(protocol.WorkerStateDir + "/" + name); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range []string{protocol.ScalarProtocol, protocol.ScalarPhase} {
		if err := s.ClearScalar(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetScalar atomically replaces the scalar pointer name.
func (s *Store) SetScalar(name, value string) error {
	if err := protocol.ValidateName("scalar", name); err != nil {
		return err
	}
	return s.root.AtomicReplace(protocol.ScalarPath(name), []byte(value))
}

// Scalar returns the value of a scalar pointer and whether it is set.
func (s *Store) Scalar(name string) (value string, ok bool, err error) {
	if err := protocol.ValidateName("scalar", name); err != nil {
		return "", false, err
	}
	data, err := s.root.ReadFile(protocol.ScalarPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(data)), true, nil
}

// ClearScalar unsets a scalar pointer.
func (s *Store) ClearScalar(name string) error {
	if err := protocol.ValidateName("scalar", name); err != nil {
		return err
	}
	_, err := s.root.Remove(protocol.ScalarPath(name))
	return err
}

// Cycle returns the current generation number, 0 if never reset.
func (s *Store) Cycle() (int64, error) {
	v, ok, err := s.Scalar(protocol.ScalarCycle)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &protocol.CorruptStateError{Key: protocol.ScalarPath(protocol.ScalarCycle), Err: err}
	}
	return n, nil
}

// NextCycle increments the generation number and returns it. Callers must
// serialize NextCycle themselves; the coordinator does so under the session
// master lock.
func (s *Store) NextCycle() (int64, error) {
	cur, err := s.Cycle()
	if err != nil {
		var corrupt *protocol.CorruptStateError
		if !errors.As(err, &corrupt) {
			return 0, err
		}
		cur = 0
	}
	next := cur + 1
	if err := s.SetScalar(protocol.ScalarCycle, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

// WriteResult replaces the result blob for worker id.
func (s *Store) WriteResult(id int, text string) error {
	return s.root.AtomicReplace(protocol.ResultPath(id), []byte(text))
}

// Result returns the result blob for worker id and whether one exists.
func (s *Store) Result(id int) (text string, ok bool, err error) {
	data, err := s.root.ReadFile(protocol.ResultPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}
