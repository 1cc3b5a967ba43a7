package protocol

// SchemaDDL defines the SQLite schema for a session's event journal.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Coordination event log: one row per mutating coordinator operation
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    worker_id INTEGER,
    subject TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS events_worker ON events(worker_id);
CREATE INDEX IF NOT EXISTS events_type ON events(type);
`
