package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aiarmour/armour/internal/task"
)

// SaveApproval inserts or updates the approval decision for a task.
func (s *SQLiteStore) SaveApproval(ctx context.Context, d *task.ApprovalDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (task_id, mode, threshold, decided_by, outcome, decided_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			mode = excluded.mode,
			threshold = excluded.threshold,
			decided_by = excluded.decided_by,
			outcome = excluded.outcome,
			decided_at = excluded.decided_at
	`, d.TaskID, string(d.Mode), d.Threshold, d.DecidedBy, string(d.Outcome), d.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to save approval for task %s: %w", d.TaskID, err)
	}
	return nil
}

// GetApproval retrieves the approval decision for a task, or nil if none
// exists.
func (s *SQLiteStore) GetApproval(ctx context.Context, taskID string) (*task.ApprovalDecision, error) {
	var d task.ApprovalDecision
	var mode, outcome string
	var decidedAt sql.NullTime
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, mode, threshold, decided_by, outcome, decided_at
		FROM approvals WHERE task_id = ?
	`, taskID)
	err := row.Scan(&d.TaskID, &mode, &d.Threshold, &d.DecidedBy, &outcome, &decidedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval for task %s: %w", taskID, err)
	}
	d.Mode = task.ApprovalMode(mode)
	d.Outcome = task.ApprovalOutcome(outcome)
	if decidedAt.Valid {
		d.DecidedAt = decidedAt.Time
	}
	return &d, nil
}
