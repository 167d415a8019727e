package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist. The fact tables
// (invoices, inventory, pricing, leads, installations) hold business ground
// truth and are written only by external systems and seed helpers; the
// pipeline reads them through Lookup.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		payload TEXT,
		origin TEXT NOT NULL,
		priority TEXT NOT NULL,
		status INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (task_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entries_task_seq
		ON audit_entries(task_id, seq);

	CREATE TABLE IF NOT EXISTS dispatches (
		task_id TEXT PRIMARY KEY,
		summary TEXT,
		dispatched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS approvals (
		task_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		threshold TEXT,
		decided_by TEXT,
		outcome TEXT,
		decided_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		client TEXT NOT NULL,
		amount REAL NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS inventory (
		item TEXT PRIMARY KEY,
		quantity INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pricing (
		item TEXT PRIMARY KEY,
		unit_price REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		company TEXT,
		status TEXT NOT NULL,
		estimated_value REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS installations (
		id TEXT PRIMARY KEY,
		client TEXT NOT NULL,
		address TEXT,
		contractor_id TEXT,
		status TEXT NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
