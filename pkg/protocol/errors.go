package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError reports a reference to a worker index, trigger, protocol or
// session that does not exist.
type NotFoundError struct {
	Kind string // "worker", "trigger", "protocol", "session"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

// Claim is one resource held by one worker.
type Claim struct {
	Holder   int
	Resource string
}

// ConflictError reports a lock acquisition that collides with another
// worker's claim. Holder and Resource name the first collision; Conflicts
// lists all of them in holder order.
type ConflictError struct {
	Requester int
	Holder    int
	Resource  string
	Conflicts []Claim
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) > 1 {
		return fmt.Sprintf("worker %d: %s is locked by worker %d (%d conflicts)",
			e.Requester, e.Resource, e.Holder, len(e.Conflicts))
	}
	return fmt.Sprintf("worker %d: %s is locked by worker %d", e.Requester, e.Resource, e.Holder)
}

// TimeoutError reports an await that exceeded its bound. It means "not yet",
// not "never".
type TimeoutError struct {
	Trigger string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("trigger %s not fired within %v", e.Trigger, e.Timeout)
}

// CorruptStateError reports a state or lock document that fails to parse.
// Only the named key is affected.
type CorruptStateError struct {
	Key string
	Err error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state %s: %v", e.Key, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// IOError reports a failed storage operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// InvalidNameError reports a trigger, resource or session name that cannot
// be mapped onto the storage layout.
type InvalidNameError struct {
	Kind   string
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Name, e.Reason)
}

// StaleCycleError reports a completion signal issued for a cycle that has
// since been reset.
type StaleCycleError struct {
	WorkerID int
	Cycle    int64
	Current  int64
}

func (e *StaleCycleError) Error() string {
	return fmt.Sprintf("worker %d: completion for cycle %d rejected, current cycle is %d",
		e.WorkerID, e.Cycle, e.Current)
}

// Kind is the category of a coordination error.
type Kind string

// Error kinds.
const (
	KindNone        Kind = ""
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindTimeout     Kind = "timeout"
	KindCorrupt     Kind = "corrupt_state"
	KindIO          Kind = "io_failure"
	KindInvalidName Kind = "invalid_name"
	KindStaleCycle  Kind = "stale_cycle"
	KindOther       Kind = "other"
)

// KindOf classifies err by the first typed coordination error in its chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		nf    *NotFoundError
		cf    *ConflictError
		to    *TimeoutError
		cs    *CorruptStateError
		io    *IOError
		inv   *InvalidNameError
		stale *StaleCycleError
	)
	switch {
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &cf):
		return KindConflict
	case errors.As(err, &to):
		return KindTimeout
	case errors.As(err, &cs):
		return KindCorrupt
	case errors.As(err, &inv):
		return KindInvalidName
	case errors.As(err, &stale):
		return KindStaleCycle
	case errors.As(err, &io):
		return KindIO
	}
	return KindOther
}

// ValidateName checks that name can be used as a single file name inside a
// session directory.
func ValidateName(kind, name string) error {
	switch {
	case name == "":
		return &InvalidNameError{Kind: kind, Name: name, Reason: "empty"}
	case strings.HasPrefix(name, "."):
		return &InvalidNameError{Kind: kind, Name: name, Reason: "leading dot"}
	case strings.ContainsAny(name, "/\\\n\x00"):
		return &InvalidNameError{Kind: kind, Name: name, Reason: "contains a path separator or control character"}
	}
	return nil
}
