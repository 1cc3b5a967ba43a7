package main

import (
	"errors"
	"fmt"
	"testing"

	"hive/pkg/protocol"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("boom"), exitOther},
		{"usage", usagef("bad flag"), exitUsage},
		{"wrapped usage", fmt.Errorf("ctx: %w", usagef("bad")), exitUsage},
		{"invalid name", &protocol.InvalidNameError{Kind: "trigger", Name: "a/b"}, exitUsage},
		{"not found", &protocol.NotFoundError{Kind: "worker", Name: "9"}, exitNotFound},
		{"conflict", &protocol.ConflictError{Requester: 1, Holder: 0, Resource: "a.go"}, exitConflict},
		{"timeout", fmt.Errorf("wait: %w", &protocol.TimeoutError{Trigger: "all-done"}), exitTimeout},
		{"corrupt", &protocol.CorruptStateError{Key: "state/workers/0.json", Err: errors.New("eof")}, exitCorrupt},
		{"io", &protocol.IOError{Op: "write", Path: "x", Err: errors.New("disk full")}, exitIO},
		{"stale", &protocol.StaleCycleError{WorkerID: 0, Cycle: 1, Current: 2}, exitStaleCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
