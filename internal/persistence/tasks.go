package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aiarmour/armour/internal/task"
)

// SaveTask inserts or updates a task record. The payload is stored as JSON.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, role, payload, origin, priority, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			payload = excluded.payload,
			priority = excluded.priority,
			status = excluded.status,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at
	`, t.ID, t.Name, string(t.Role), string(payload), string(t.Origin),
		string(t.Priority), int(t.Status), t.Attempts, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by id, or nil if it does not exist.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, payload, origin, priority, status, attempts, created_at, updated_at
		FROM tasks WHERE id = ?
	`, taskID)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", taskID, err)
	}
	return t, nil
}

// ListTasks returns all tasks, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, payload, origin, priority, status, attempts, created_at, updated_at
		FROM tasks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var role, origin, priority, payload string
	var status int
	if err := row.Scan(&t.ID, &t.Name, &role, &payload, &origin, &priority,
		&status, &t.Attempts, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Role = task.Role(role)
	t.Origin = task.Origin(origin)
	t.Priority = task.Priority(priority)
	t.Status = task.Status(status)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if t.Payload == nil {
		t.Payload = map[string]string{}
	}
	return &t, nil
}
