// Package eventlog records coordination events in a per-session SQLite
// journal and provides read-only queries over it for `hive events` and
// `hive watch`.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"hive/pkg/protocol"
)

// timeLayout is the format SQLite's datetime('now') produces.
const timeLayout = "2006-01-02 15:04:05"

// Event is one journal entry.
type Event struct {
	ID        int64
	Type      protocol.EventType
	Source    string // "manager" or "worker-{id}"
	WorkerID  *int   // nil for session-wide events
	Subject   string // trigger, resource list, protocol or phase name
	Payload   string // JSON detail, may be empty
	CreatedAt time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// WorkerID filters events to a specific worker.
	WorkerID *int

	// Type filters to a specific event type (e.g., "assign", "done").
	Type protocol.EventType

	// After filters events created after this time (inclusive).
	After *time.Time

	// Before filters events created before this time (inclusive).
	Before *time.Time

	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// Reader provides read-only access to a session journal.
type Reader struct {
	db *sql.DB
}

// NewReader opens the journal in read-only mode.
// Returns an error if the database doesn't exist or cannot be opened.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}

	// Read-only so a watcher never blocks coordinator writes.
	dsn := fmt.Sprintf("file:%s?mode=ro", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on journal: %w", err)
	}

	return &Reader{db: db}, nil
}

// Close releases the database connection.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Query retrieves events matching opts, newest first.
// Returns an empty slice if no events match.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			evType    string
			workerID  sql.NullInt64
			subject   sql.NullString
			payload   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &evType, &e.Source, &workerID, &subject, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = protocol.EventType(evType)
		if workerID.Valid {
			id := int(workerID.Int64)
			e.WorkerID = &id
		}
		e.Subject = subject.String
		e.Payload = payload.String

		if createdAt != "" {
			parsed, err := time.Parse(timeLayout, createdAt)
			if err != nil {
				parsed, err = time.Parse(time.RFC3339, createdAt)
				if err != nil {
					return nil, fmt.Errorf("parse created_at: %w", err)
				}
			}
			e.CreatedAt = parsed
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, type, source, worker_id, subject, payload, created_at FROM events WHERE 1=1"

	if opts.WorkerID != nil {
		conditions = append(conditions, "worker_id = ?")
		args = append(args, *opts.WorkerID)
	}

	if opts.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(opts.Type))
	}

	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(timeLayout))
	}

	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.UTC().Format(timeLayout))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return query, args
}
