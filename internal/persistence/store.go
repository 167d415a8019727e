package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aiarmour/armour/internal/task"
)

// Store is the persistence contract the pipeline depends on: task records,
// the append-only audit log, the dispatch log guarding idempotence, approval
// decisions, and the read-only fact lookup over business ground truth.
type Store interface {
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	ListTasks(ctx context.Context) ([]*task.Task, error)

	// AppendAudit durably appends an entry, assigning the next per-task
	// sequence number into e.Seq. No stage transition may proceed if this
	// fails.
	AppendAudit(ctx context.Context, e *task.AuditEntry) error
	AuditEntries(ctx context.Context, taskID string) ([]task.AuditEntry, error)

	// Dispatched reports whether the side effect for a task has already been
	// recorded; RecordDispatch marks it. Together they make dispatch
	// idempotent by task id.
	Dispatched(ctx context.Context, taskID string) (bool, error)
	RecordDispatch(ctx context.Context, taskID, summary string) error

	SaveApproval(ctx context.Context, d *task.ApprovalDecision) error
	GetApproval(ctx context.Context, taskID string) (*task.ApprovalDecision, error)

	// Lookup reads business ground truth (implements factcheck.FactStore).
	Lookup(ctx context.Context, field, key string) (string, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite store at dbPath with WAL
// mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache lets
// multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	// Enable foreign keys via PRAGMA (modernc.org/sqlite ignores the
	// connection-string form).
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Two connections: one for primary queries, one for subqueries.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
