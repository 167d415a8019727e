package events

import (
	"time"

	"github.com/aiarmour/armour/internal/task"
)

// Event is the interface all pipeline events implement. Topic routes the
// event to subscribers; TaskID is empty for events not tied to one task.
type Event interface {
	Topic() string
	TaskID() string
}

// Topics.
const (
	TopicTask     = "task"
	TopicAudit    = "audit"
	TopicApproval = "approval"
	TopicAlert    = "alert"
)

// TaskQueued is published when a task is admitted to the queue.
type TaskQueued struct {
	ID       string
	Role     task.Role
	Origin   task.Origin
	Priority task.Priority
	At       time.Time
}

func (e TaskQueued) Topic() string  { return TopicTask }
func (e TaskQueued) TaskID() string { return e.ID }

// StageRecorded is published after an audit entry is durably written.
type StageRecorded struct {
	ID      string
	Seq     int
	Stage   task.Stage
	Outcome string
	At      time.Time
}

func (e StageRecorded) Topic() string  { return TopicAudit }
func (e StageRecorded) TaskID() string { return e.ID }

// ApprovalRequested is published when a task parks for a human decision.
type ApprovalRequested struct {
	ID        string
	Role      task.Role
	Threshold string
	Deadline  time.Time
}

func (e ApprovalRequested) Topic() string  { return TopicApproval }
func (e ApprovalRequested) TaskID() string { return e.ID }

// ApprovalResolved is published when a parked task gets its outcome, whether
// by human decision, cancellation, or SLA expiry.
type ApprovalResolved struct {
	ID      string
	Outcome task.ApprovalOutcome
	Decider string
	At      time.Time
}

func (e ApprovalResolved) Topic() string  { return TopicApproval }
func (e ApprovalResolved) TaskID() string { return e.ID }

// TaskDispatched is published after the external side effect succeeds.
type TaskDispatched struct {
	ID     string
	Role   task.Role
	Amount float64
	At     time.Time
}

func (e TaskDispatched) Topic() string  { return TopicTask }
func (e TaskDispatched) TaskID() string { return e.ID }

// TaskCompleted is published when a task reaches its successful terminal
// state.
type TaskCompleted struct {
	ID   string
	Role task.Role
	At   time.Time
}

func (e TaskCompleted) Topic() string  { return TopicTask }
func (e TaskCompleted) TaskID() string { return e.ID }

// TaskFailed is published for every terminal-without-success outcome.
type TaskFailed struct {
	ID     string
	Role   task.Role
	Status task.Status // failed, denied or cancelled
	Reason string
	At     time.Time
}

func (e TaskFailed) Topic() string  { return TopicTask }
func (e TaskFailed) TaskID() string { return e.ID }

// Alert is published for outcomes that need immediate human attention, such
// as a hot-priority task failing.
type Alert struct {
	ID     string
	Role   task.Role
	Reason string
	At     time.Time
}

func (e Alert) Topic() string  { return TopicAlert }
func (e Alert) TaskID() string { return e.ID }
