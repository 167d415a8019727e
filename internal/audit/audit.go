// Package audit records stage transitions as an append-only, strictly ordered
// trail. Recording is blocking: a failed write stops the pipeline from
// advancing the task, so the trail can never fall behind the task's actual
// state.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/events"
	"github.com/aiarmour/armour/internal/task"
)

// Sink is where entries are durably written.
type Sink interface {
	AppendAudit(ctx context.Context, e *task.AuditEntry) error
}

// Logger writes audit entries and announces each one on the bus after the
// write succeeds.
type Logger struct {
	sink Sink
	bus  *events.Bus
	log  *logrus.Entry
}

// New creates a Logger. The bus may be nil in tests.
func New(sink Sink, bus *events.Bus, log *logrus.Entry) *Logger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Logger{sink: sink, bus: bus, log: log}
}

// Record durably appends one entry for the task and returns the assigned
// sequence number. Callers must treat an error as fatal for the transition
// they are recording.
func (l *Logger) Record(ctx context.Context, taskID string, stage task.Stage, outcome, detail string) (int, error) {
	e := &task.AuditEntry{
		TaskID:  taskID,
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
		At:      time.Now().UTC(),
	}
	if err := l.sink.AppendAudit(ctx, e); err != nil {
		return 0, fmt.Errorf("audit write for task %s at stage %s: %w", taskID, stage, err)
	}

	l.log.WithFields(logrus.Fields{
		"task":    taskID,
		"seq":     e.Seq,
		"stage":   stage,
		"outcome": outcome,
	}).Debug("audit entry recorded")

	if l.bus != nil {
		l.bus.Publish(events.StageRecorded{
			ID:      taskID,
			Seq:     e.Seq,
			Stage:   stage,
			Outcome: outcome,
			At:      e.At,
		})
	}
	return e.Seq, nil
}
