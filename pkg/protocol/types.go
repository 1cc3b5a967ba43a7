package protocol

import (
	"fmt"
	"strings"
)

// Status is the lifecycle status of a worker within one task cycle.
type Status string

// Worker status constants.
const (
	StatusReady    Status = "ready"
	StatusWorking  Status = "working"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the four lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusWorking, StatusComplete, StatusError:
		return true
	}
	return false
}

// Done reports whether the status ends a task cycle (success or failure).
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusError
}

// WorkerState is the JSON document stored at state/workers/{id}.json.
// Fields other than Status are only present once the transition that
// produces them has run.
type WorkerState struct {
	Status     Status   `json:"status"`
	Assignment string   `json:"assignment,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	Files      []string `json:"files,omitempty"`
	Result     string   `json:"result,omitempty"`
	Error      string   `json:"error,omitempty"`
	Cycle      int64    `json:"cycle,omitempty"`      // generation the assignment belongs to
	UpdatedAt  string   `json:"updated_at,omitempty"` // RFC3339, set on every write
}

// ReadyState is the implicit state of a worker with no state document.
func ReadyState() WorkerState {
	return WorkerState{Status: StatusReady}
}

// EventType classifies a journal entry.
type EventType string

// Journal event type constants.
const (
	EventAssign   EventType = "assign"
	EventDone     EventType = "done"
	EventLock     EventType = "lock"
	EventUnlock   EventType = "unlock"
	EventConflict EventType = "conflict"
	EventFire     EventType = "fire"
	EventProtocol EventType = "protocol"
	EventPhase    EventType = "phase"
	EventReset    EventType = "reset"
)

// WorkerPreamble wraps a task with the instructions a worker needs to follow
// the coordination protocol. The cycle is embedded so the worker can report
// completion against the generation it was assigned in.
func WorkerPreamble(id int, cycle int64, task string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are Worker %d in a hive swarm (cycle %d).\n\n", id, cycle)
	b.WriteString("PROTOCOL:\n")
	b.WriteString("1. Complete the task autonomously\n")
	fmt.Fprintf(&b, "2. When done, run: hive report -w %d --cycle %d \"your result summary\"\n", id, cycle)
	fmt.Fprintf(&b, "3. If editing files, first run: hive lock -w %d file1.py file2.py\n", id)
	fmt.Fprintf(&b, "4. When done editing, run: hive unlock -w %d\n\n", id)
	b.WriteString("TASK:\n")
	b.WriteString(task)
	return b.String()
}
