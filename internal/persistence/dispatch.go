package persistence

import (
	"context"
	"fmt"
	"time"
)

// Dispatched reports whether a dispatch has already been recorded for the
// task. Checked before every send so re-processing a task never repeats its
// external effect.
func (s *SQLiteStore) Dispatched(ctx context.Context, taskID string) (bool, error) {
	var n int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dispatches WHERE task_id = ?`, taskID)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check dispatch for task %s: %w", taskID, err)
	}
	return n > 0, nil
}

// RecordDispatch marks the task's external effect as performed.
func (s *SQLiteStore) RecordDispatch(ctx context.Context, taskID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (task_id, summary, dispatched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO NOTHING
	`, taskID, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record dispatch for task %s: %w", taskID, err)
	}
	return nil
}
