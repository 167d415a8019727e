package approval

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

// Pending is a task parked for a human decision, together with the action it
// would dispatch and the decision record being filled in.
type Pending struct {
	Task     *task.Task
	Action   *task.ProposedAction
	Decision *task.ApprovalDecision
	Deadline time.Time
}

// ResumeFunc re-admits a decided task to the pipeline. The registry never
// processes tasks itself; it only records outcomes and hands ownership back.
type ResumeFunc func(t *task.Task, action *task.ProposedAction)

// Registry holds tasks awaiting human approval. Parked tasks consume no
// worker slot; Decide, Cancel and Expire move them back into the pipeline
// with their outcome set.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Pending
	resume  ResumeFunc
	log     *logrus.Logger
}

func NewRegistry(resume ResumeFunc, log *logrus.Logger) *Registry {
	return &Registry{
		pending: make(map[string]*Pending),
		resume:  resume,
		log:     log,
	}
}

// Park stores a task awaiting a decision until deadline.
func (r *Registry) Park(t *task.Task, action *task.ProposedAction, decision *task.ApprovalDecision, deadline time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[t.ID] = &Pending{Task: t, Action: action, Decision: decision, Deadline: deadline}
}

// Decide records a human approval or denial. Valid only while the task is
// parked; deciding twice or deciding an unknown task is an error.
func (r *Registry) Decide(taskID string, approved bool, decider string) error {
	r.mu.Lock()
	p, ok := r.pending[taskID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("task %s is not awaiting approval", taskID)
	}
	delete(r.pending, taskID)
	r.mu.Unlock()

	p.Decision.DecidedBy = decider
	p.Decision.DecidedAt = time.Now().UTC()
	if approved {
		p.Decision.Outcome = task.OutcomeApproved
		p.Task.Status = task.StatusApproved
	} else {
		p.Decision.Outcome = task.OutcomeDenied
		p.Task.Status = task.StatusDenied
	}

	r.log.WithFields(logrus.Fields{
		"task":    taskID,
		"outcome": p.Decision.Outcome,
		"decider": decider,
	}).Info("human decision recorded")

	r.resume(p.Task, p.Action)
	return nil
}

// Cancel withdraws a parked task. The dispatcher is never invoked after a
// cancellation is recorded.
func (r *Registry) Cancel(taskID string, decider string) error {
	r.mu.Lock()
	p, ok := r.pending[taskID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("task %s is not awaiting approval", taskID)
	}
	delete(r.pending, taskID)
	r.mu.Unlock()

	p.Decision.DecidedBy = decider
	p.Decision.Outcome = task.OutcomeCancelled
	p.Decision.DecidedAt = time.Now().UTC()
	p.Task.Status = task.StatusCancelled

	r.resume(p.Task, p.Action)
	return nil
}

// Expire sweeps parked tasks whose SLA deadline has passed, marking them
// timed-out and handing them back for escalation. Returns how many expired.
func (r *Registry) Expire(now time.Time) int {
	r.mu.Lock()
	var expired []*Pending
	for id, p := range r.pending {
		if p.Deadline.After(now) {
			continue
		}
		expired = append(expired, p)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, p := range expired {
		p.Decision.DecidedBy = "system"
		p.Decision.Outcome = task.OutcomeTimedOut
		p.Decision.DecidedAt = now
		p.Task.Status = task.StatusTimedOut

		r.log.WithField("task", p.Task.ID).Warn("approval SLA expired")
		r.resume(p.Task, p.Action)
	}
	return len(expired)
}

// List returns parked tasks ordered by deadline, soonest first.
func (r *Registry) List() []*Pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Pending, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}
