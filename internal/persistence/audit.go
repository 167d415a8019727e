package persistence

import (
	"context"
	"fmt"

	"github.com/aiarmour/armour/internal/task"
)

// AppendAudit durably appends an audit entry, assigning the next per-task
// sequence number inside a transaction so concurrent appends for the same
// task never collide or leave gaps. The UNIQUE(task_id, seq) constraint
// backstops the computed sequence.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *task.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE task_id = ?`, e.TaskID)
	if err := row.Scan(&e.Seq); err != nil {
		return fmt.Errorf("failed to compute audit sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (task_id, seq, stage, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.Seq, string(e.Stage), e.Outcome, e.Detail, e.At)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the full trail for a task in sequence order.
func (s *SQLiteStore) AuditEntries(ctx context.Context, taskID string) ([]task.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, seq, stage, outcome, detail, created_at
		FROM audit_entries WHERE task_id = ? ORDER BY seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []task.AuditEntry
	for rows.Next() {
		var e task.AuditEntry
		var stage string
		if err := rows.Scan(&e.TaskID, &e.Seq, &stage, &e.Outcome, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Stage = task.Stage(stage)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
