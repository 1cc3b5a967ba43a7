package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/protocol"
)

// Process exit codes. Each coordination error kind has its own code so
// scripts driving hive can branch on the outcome.
const (
	exitOK         = 0
	exitOther      = 1
	exitUsage      = 2
	exitNotFound   = 3
	exitConflict   = 4
	exitTimeout    = 5
	exitCorrupt    = 6
	exitIO         = 7
	exitStaleCycle = 8
)

// usageError marks a bad invocation: wrong arguments or flags.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs wraps a cobra argument validator so its failures exit with
// exitUsage.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	switch protocol.KindOf(err) {
	case protocol.KindInvalidName:
		return exitUsage
	case protocol.KindNotFound:
		return exitNotFound
	case protocol.KindConflict:
		return exitConflict
	case protocol.KindTimeout:
		return exitTimeout
	case protocol.KindCorrupt:
		return exitCorrupt
	case protocol.KindIO:
		return exitIO
	case protocol.KindStaleCycle:
		return exitStaleCycle
	}
	return exitOther
}
