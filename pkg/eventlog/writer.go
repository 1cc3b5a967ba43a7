package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	"hive/pkg/protocol"
)

// Writer appends events to a session journal.
type Writer struct {
	db *sql.DB
}

// Open opens or creates the journal at path with WAL and a 5-second busy
// timeout, and applies the schema.
func Open(path string) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	// busy_timeout first: several hive processes may open the journal at once.
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema on %s: %w", path, err)
	}

	return &Writer{db: db}, nil
}

// Record appends e. ID and CreatedAt are assigned by the database.
func (w *Writer) Record(ctx context.Context, e Event) error {
	var workerID any
	if e.WorkerID != nil {
		workerID = *e.WorkerID
	}
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO events (type, source, worker_id, subject, payload) VALUES (?, ?, ?, ?, ?)`,
		string(e.Type), e.Source, workerID, e.Subject, e.Payload,
	)
	if err != nil {
		return fmt.Errorf("record %s event: %w", e.Type, err)
	}
	return nil
}

// Close releases the database connection.
func (w *Writer) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}
