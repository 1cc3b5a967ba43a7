package protocol_test

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"hive/pkg/protocol"
)

func TestConflictError_ErrorsAs(t *testing.T) {
	err := fmt.Errorf("acquire: %w", &protocol.ConflictError{
		Requester: 1,
		Holder:    0,
		Resource:  "a.py",
		Conflicts: []protocol.Claim{{Holder: 0, Resource: "a.py"}},
	})

	var target *protocol.ConflictError
	if !errors.As(err, &target) {
		t.Fatal("errors.As failed to extract ConflictError")
	}
	if target.Holder != 0 || target.Resource != "a.py" {
		t.Errorf("got holder=%d resource=%q, want 0 a.py", target.Holder, target.Resource)
	}
	if !containsAll(err.Error(), "worker 1", "a.py", "worker 0") {
		t.Errorf("Error() message missing key info: %q", err.Error())
	}
}

func TestCorruptStateError_Unwrap(t *testing.T) {
	inner := errors.New("unexpected end of JSON input")
	err := &protocol.CorruptStateError{Key: "state/workers/2.json", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("CorruptStateError should unwrap to its cause")
	}
	if !containsAll(err.Error(), "corrupt", "state/workers/2.json") {
		t.Errorf("Error() message missing key info: %q", err.Error())
	}
}

func TestIOError_Unwrap(t *testing.T) {
	err := &protocol.IOError{Op: "rename", Path: "/tmp/x", Err: os.ErrPermission}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("IOError should unwrap to its cause")
	}
}

func TestTimeoutError_Error(t *testing.T) {
	err := &protocol.TimeoutError{Trigger: "all-done", Timeout: 2 * time.Second}
	if !containsAll(err.Error(), "all-done", "2s") {
		t.Errorf("Error() message missing key info: %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.Kind
	}{
		{"nil", nil, protocol.KindNone},
		{"not found", &protocol.NotFoundError{Kind: "worker", Name: "9"}, protocol.KindNotFound},
		{"conflict wrapped", fmt.Errorf("x: %w", &protocol.ConflictError{}), protocol.KindConflict},
		{"timeout", &protocol.TimeoutError{}, protocol.KindTimeout},
		{"corrupt wrapping io", &protocol.CorruptStateError{Err: &protocol.IOError{}}, protocol.KindCorrupt},
		{"io", &protocol.IOError{Err: os.ErrPermission}, protocol.KindIO},
		{"invalid name", &protocol.InvalidNameError{}, protocol.KindInvalidName},
		{"stale", &protocol.StaleCycleError{}, protocol.KindStaleCycle},
		{"plain", errors.New("boom"), protocol.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := protocol.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"all-done", true},
		{"review-ready", true},
		{"", false},
		{".hidden", false},
		{"a/b", false},
		{"..", false},
		{"line\nbreak", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := protocol.ValidateName("trigger", tt.name)
			if (err == nil) != tt.valid {
				t.Errorf("ValidateName(%q) = %v, want valid=%v", tt.name, err, tt.valid)
			}
			if err != nil && protocol.KindOf(err) != protocol.KindInvalidName {
				t.Errorf("KindOf = %q, want invalid_name", protocol.KindOf(err))
			}
		})
	}
}

// containsAll checks if s contains all substrings
func containsAll(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
