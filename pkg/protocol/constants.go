package protocol

import "fmt"

// Directory and path constants used throughout hive.
const (
	// HiveDir is the user-level state directory (e.g., ~/.hive).
	HiveDir = ".hive"

	// SessionsDir holds one directory per session under the hive home.
	SessionsDir = "sessions"

	// ProtocolsDir holds the protocol documents (*.md) under the hive home.
	ProtocolsDir = "protocols"

	// ActivePointer names the file under the hive home that selects the active session.
	ActivePointer = "active"

	// SessionFile is the session metadata document inside a session directory.
	SessionFile = "session.yaml"

	// JournalFile is the SQLite event journal inside a session directory.
	JournalFile = "events.db"
)

// Layout of a session directory. All paths are slash-separated and relative
// to the session root.
const (
	StateDir        = "state"
	WorkerStateDir  = "state/workers"
	TriggersDir     = "triggers"
	LocksDir        = "locks"
	ResultsDir      = "results"
	MasterLockFile  = "locks/.master.lock"
	SessionLockFile = ".session.lock"
	ScalarProtocol  = "protocol"
	ScalarPhase     = "phase"
	ScalarCycle     = "cycle"
	AllDoneTrigger  = "all-done"
	lockFilePattern = "worker-%d.lock"
)

// Environment variables understood by hive.
const (
	EnvHome     = "HIVE_HOME"
	EnvSession  = "HIVE_SESSION"
	EnvWorkerID = "HIVE_WORKER_ID"
	EnvCycle    = "HIVE_CYCLE"
)

// WorkerDoneTrigger returns the completion trigger name for a worker index.
func WorkerDoneTrigger(id int) string {
	return fmt.Sprintf("worker-%d-done", id)
}

// WorkerStatePath returns the state document path for a worker index.
func WorkerStatePath(id int) string {
	return fmt.Sprintf("%s/%d.json", WorkerStateDir, id)
}

// LockRecordPath returns the lock record path for a worker index.
func LockRecordPath(id int) string {
	return LocksDir + "/" + fmt.Sprintf(lockFilePattern, id)
}

// ParseLockRecordName extracts the worker index from a lock record file name
// such as "worker-3.lock".
func ParseLockRecordName(name string) (int, bool) {
	var id int
	if _, err := fmt.Sscanf(name, lockFilePattern, &id); err != nil {
		return 0, false
	}
	if id < 0 || fmt.Sprintf(lockFilePattern, id) != name {
		return 0, false
	}
	return id, true
}

// ResultPath returns the result blob path for a worker index.
func ResultPath(id int) string {
	return fmt.Sprintf("%s/worker-%d.txt", ResultsDir, id)
}

// ScalarPath returns the path of a scalar pointer such as "protocol" or "phase".
func ScalarPath(name string) string {
	return StateDir + "/" + name
}
