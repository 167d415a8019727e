// Package pipeline drives tasks through the verification chain: execute,
// verify, fact-check, gate, dispatch. Every stage transition is recorded in
// the audit log before the task moves on, and the external side effect fires
// only for tasks that are verified, fact-checked and approved.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aiarmour/armour/internal/agent"
	"github.com/aiarmour/armour/internal/approval"
	"github.com/aiarmour/armour/internal/audit"
	"github.com/aiarmour/armour/internal/dispatch"
	"github.com/aiarmour/armour/internal/events"
	"github.com/aiarmour/armour/internal/factcheck"
	"github.com/aiarmour/armour/internal/persistence"
	"github.com/aiarmour/armour/internal/queue"
	"github.com/aiarmour/armour/internal/schedule"
	"github.com/aiarmour/armour/internal/task"
	"github.com/aiarmour/armour/internal/verify"
)

// Config bounds the runner's concurrency and retry behavior.
type Config struct {
	// Workers caps how many tasks are processed concurrently per step.
	Workers int
	// RoleLimits caps in-flight tasks per role (default 1 each).
	RoleLimits map[task.Role]int64
	// CallTimeout bounds each AI capability call.
	CallTimeout time.Duration
	// MaxAttempts bounds executions per task before it fails for good.
	MaxAttempts int
	// Retry shapes the delay before a failed task re-enters the queue.
	Retry RetryPolicy
	// Tick is the cadence of the Run loop.
	Tick time.Duration
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		CallTimeout: 60 * time.Second,
		MaxAttempts: 3,
		Retry:       DefaultRetryPolicy(),
		Tick:        time.Second,
	}
}

// Deps are the collaborators the runner composes. Scheduler and Bus may be
// nil (tests, command-only deployments).
type Deps struct {
	Store      persistence.Store
	Agents     map[task.Role]agent.Capability
	Verifier   *verify.Verifier
	Checker    *factcheck.Checker
	Gate       *approval.Gate
	Dispatcher *dispatch.Dispatcher
	Scheduler  *schedule.Scheduler
	Audit      *audit.Logger
	Bus        *events.Bus
	Log        *logrus.Logger
}

// parked pairs a task's in-flight action with its approval decision while the
// task is out of the queue. resolved marks decisions that need no
// ApprovalResolved event (auto approvals, or already announced).
type parked struct {
	action   *task.ProposedAction
	decision *task.ApprovalDecision
	resolved bool
}

// Runner owns the queue, the approval registry and the worker waves.
type Runner struct {
	cfg  Config
	deps Deps

	queue     *queue.Queue
	approvals *approval.Registry
	breakers  *CircuitBreakerRegistry

	mu       sync.Mutex
	inFlight map[string]*parked

	log *logrus.Logger
}

// New wires a runner. The approval registry's resume path feeds decided tasks
// back into the queue, so a parked task never holds a worker slot.
func New(cfg Config, deps Deps) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Runner{
		cfg:      cfg,
		deps:     deps,
		queue:    queue.New(cfg.RoleLimits),
		breakers: NewCircuitBreakerRegistry(log),
		inFlight: make(map[string]*parked),
		log:      log,
	}
	r.approvals = approval.NewRegistry(r.resume, log)
	return r
}

// Run processes tasks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := r.Step(ctx, now); err != nil {
				r.log.WithError(err).Error("pipeline step failed")
			}
		}
	}
}

// Step runs one pipeline iteration: admit due scheduled tasks, expire stale
// approvals, then process a wave of claimable tasks. Exposed so tests can
// drive the pipeline with a controlled clock.
func (r *Runner) Step(ctx context.Context, now time.Time) error {
	if r.deps.Scheduler != nil {
		for _, t := range r.deps.Scheduler.Tick(now) {
			r.admit(ctx, t)
		}
	}

	if n := r.approvals.Expire(now); n > 0 {
		r.log.WithField("count", n).Warn("approval deadlines expired")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for {
		t := r.queue.Claim(now)
		if t == nil {
			break
		}
		g.Go(func() error {
			defer r.queue.Release(t.Role)
			r.process(gctx, t)
			return nil
		})
	}
	return g.Wait()
}

// Submit admits an externally created task (operator command, API).
func (r *Runner) Submit(ctx context.Context, t *task.Task) error {
	if !task.ValidRole(t.Role) {
		return fmt.Errorf("submit %s: unknown role %q", t.ID, t.Role)
	}
	r.admit(ctx, t)
	return nil
}

// Decide records a human approval or denial for a parked task.
func (r *Runner) Decide(taskID string, approved bool, decider string) error {
	return r.approvals.Decide(taskID, approved, decider)
}

// CancelApproval withdraws a parked task before any decision.
func (r *Runner) CancelApproval(taskID, decider string) error {
	return r.approvals.Cancel(taskID, decider)
}

// PendingApprovals lists parked tasks, soonest deadline first.
func (r *Runner) PendingApprovals() []*approval.Pending {
	return r.approvals.List()
}

// QueueLen reports how many tasks wait in the queue.
func (r *Runner) QueueLen() int { return r.queue.Len() }

func (r *Runner) admit(ctx context.Context, t *task.Task) {
	if err := r.deps.Store.SaveTask(ctx, t); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to save admitted task")
		return
	}
	if err := r.queue.Enqueue(t); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to enqueue task")
		return
	}
	r.publish(events.TaskQueued{
		ID:       t.ID,
		Role:     t.Role,
		Origin:   t.Origin,
		Priority: t.Priority,
		At:       time.Now().UTC(),
	})
}

// resume re-admits a task the approval registry has decided. The task carries
// its outcome in Status; process routes on it.
func (r *Runner) resume(t *task.Task, _ *task.ProposedAction) {
	if err := r.queue.Enqueue(t); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to re-enqueue decided task")
	}
}

// process handles one claimed task according to where it is in its lifecycle.
func (r *Runner) process(ctx context.Context, t *task.Task) {
	switch t.Status {
	case task.StatusPending:
		r.advance(ctx, t)
	case task.StatusApproved:
		r.finishApproved(ctx, t)
	case task.StatusDenied:
		r.finishDenied(ctx, t)
	case task.StatusTimedOut:
		r.finishTimedOut(ctx, t)
	case task.StatusCancelled:
		r.finishCancelled(ctx, t)
	default:
		// A task in a terminal status has nothing left to do; anything
		// else here is a routing bug.
		if !task.IsTerminal(t.Status) {
			r.log.WithFields(logrus.Fields{
				"task":   t.ID,
				"status": t.Status.String(),
			}).Error("claimed task in unexpected status")
		}
		r.queue.Forget(t.ID)
	}
}

// advance runs a pending task through the full stage chain. Each stage
// records its audit entry before the next stage starts; an audit write
// failure halts progress and re-admits the task unchanged. The attempt cap
// is enforced here, so a task that keeps bouncing back to pending (audit
// outage included) still ends in failed instead of looping forever.
func (r *Runner) advance(ctx context.Context, t *task.Task) {
	if t.Attempts >= r.cfg.MaxAttempts {
		r.fail(ctx, t, "attempt limit reached")
		return
	}
	t.Attempts++
	r.transition(ctx, t, task.StatusExecuting)

	action, err := r.propose(ctx, t)
	if err != nil {
		r.record(ctx, t.ID, task.StageExecuting, "error", err.Error())
		r.retryOrFail(ctx, t, fmt.Sprintf("agent invocation failed: %v", err))
		return
	}
	if !r.record(ctx, t.ID, task.StageExecuting, "ok", action.Summary) {
		r.halt(ctx, t)
		return
	}

	r.transition(ctx, t, task.StatusAwaitingVerification)

	vr, err := r.review(ctx, t, action)
	if err != nil {
		r.record(ctx, t.ID, task.StageVerification, "error", err.Error())
		r.retryOrFail(ctx, t, fmt.Sprintf("verification failed: %v", err))
		return
	}
	if vr.Verdict == task.VerdictFlagged {
		detail := strings.Join(vr.Issues, "; ")
		if !r.record(ctx, t.ID, task.StageVerification, "flagged", detail) {
			r.halt(ctx, t)
			return
		}
		r.reject(ctx, t, "verification flagged: "+detail, true)
		return
	}
	if !r.record(ctx, t.ID, task.StageVerification, "approved",
		fmt.Sprintf("confidence %.2f", vr.Confidence)) {
		r.halt(ctx, t)
		return
	}

	r.transition(ctx, t, task.StatusVerified)
	r.transition(ctx, t, task.StatusAwaitingFactCheck)

	fr, err := r.deps.Checker.Reconcile(ctx, action)
	if err != nil {
		r.record(ctx, t.ID, task.StageFactCheck, "error", err.Error())
		r.retryOrFail(ctx, t, fmt.Sprintf("fact check failed: %v", err))
		return
	}
	if fr.Verdict == task.FactMismatch {
		detail := describeDiscrepancies(fr)
		if !r.record(ctx, t.ID, task.StageFactCheck, "mismatch", detail) {
			r.halt(ctx, t)
			return
		}
		// A claim that contradicts business records is never retried
		// blindly; a human needs to look at it.
		r.reject(ctx, t, "fact check mismatch: "+detail, false)
		return
	}
	if !r.record(ctx, t.ID, task.StageFactCheck, "match", "") {
		r.halt(ctx, t)
		return
	}

	r.transition(ctx, t, task.StatusFactChecked)

	decision := r.deps.Gate.Evaluate(t, action, vr, fr)
	if decision.Mode == task.ApprovalManual {
		r.park(ctx, t, action, decision)
		return
	}

	r.transition(ctx, t, task.StatusApproved)
	if err := r.deps.Store.SaveApproval(ctx, decision); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to save approval decision")
	}
	r.setInFlight(t.ID, &parked{action: action, decision: decision, resolved: true})
	r.dispatchAndComplete(ctx, t, action)
}

// park hands the task to the approval registry and gives up queue ownership.
func (r *Runner) park(ctx context.Context, t *task.Task, action *task.ProposedAction, decision *task.ApprovalDecision) {
	r.transition(ctx, t, task.StatusAwaitingApproval)

	if !r.record(ctx, t.ID, task.StageApproval, "pending", decision.Threshold) {
		r.halt(ctx, t)
		return
	}
	if err := r.deps.Store.SaveApproval(ctx, decision); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to save approval decision")
	}

	deadline := time.Now().UTC().Add(r.deps.Gate.Policy().SLA)
	r.setInFlight(t.ID, &parked{action: action, decision: decision})
	r.approvals.Park(t, action, decision, deadline)
	r.queue.Forget(t.ID)

	r.publish(events.ApprovalRequested{
		ID:        t.ID,
		Role:      t.Role,
		Threshold: decision.Threshold,
		Deadline:  deadline,
	})
}

// finishApproved dispatches a task whose approval has been granted, whether
// by the gate or a human.
func (r *Runner) finishApproved(ctx context.Context, t *task.Task) {
	p := r.getInFlight(t.ID)
	if p == nil {
		r.fail(ctx, t, "approved task has no in-flight action")
		return
	}
	if err := r.deps.Store.SaveApproval(ctx, p.decision); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to save approval decision")
	}
	if !p.resolved {
		p.resolved = true
		r.publish(events.ApprovalResolved{
			ID:      t.ID,
			Outcome: p.decision.Outcome,
			Decider: p.decision.DecidedBy,
			At:      p.decision.DecidedAt,
		})
	}
	r.dispatchAndComplete(ctx, t, p.action)
}

func (r *Runner) finishDenied(ctx context.Context, t *task.Task) {
	p := r.takeInFlight(t.ID)
	r.resolveApproval(ctx, t, p)
	r.record(ctx, t.ID, task.StageDenied, "denied", deciderDetail(p))
	r.save(ctx, t)
	r.publish(events.TaskFailed{
		ID: t.ID, Role: t.Role, Status: t.Status,
		Reason: "denied by human review", At: time.Now().UTC(),
	})
	r.alertHot(t, "hot task denied: "+deciderDetail(p))
	r.queue.Forget(t.ID)
}

func (r *Runner) finishCancelled(ctx context.Context, t *task.Task) {
	p := r.takeInFlight(t.ID)
	r.resolveApproval(ctx, t, p)
	r.record(ctx, t.ID, task.StageCancelled, "cancelled", deciderDetail(p))
	r.save(ctx, t)
	r.publish(events.TaskFailed{
		ID: t.ID, Role: t.Role, Status: t.Status,
		Reason: "cancelled before dispatch", At: time.Now().UTC(),
	})
	r.alertHot(t, "hot task cancelled before dispatch")
	r.queue.Forget(t.ID)
}

// finishTimedOut escalates an expired approval: the timeout is recorded, then
// the task collapses to failed.
func (r *Runner) finishTimedOut(ctx context.Context, t *task.Task) {
	p := r.takeInFlight(t.ID)
	r.resolveApproval(ctx, t, p)
	r.record(ctx, t.ID, task.StageTimedOut, "timed_out", "approval deadline expired")
	r.fail(ctx, t, "approval timed out")
}

// dispatchAndComplete performs the side effect and closes the task out. The
// approved status is re-checked right before the send: dispatch must never
// run for a task in any other state.
func (r *Runner) dispatchAndComplete(ctx context.Context, t *task.Task, action *task.ProposedAction) {
	if t.Status != task.StatusApproved {
		r.fail(ctx, t, fmt.Sprintf("dispatch refused in status %s", t.Status))
		return
	}

	sent, err := r.deps.Dispatcher.Dispatch(ctx, t, action)
	if err != nil {
		r.record(ctx, t.ID, task.StageDispatched, "error", err.Error())
		r.fail(ctx, t, fmt.Sprintf("dispatch failed: %v", err))
		return
	}

	detail := action.Summary
	if !sent {
		detail = "already dispatched"
	}
	if !r.record(ctx, t.ID, task.StageDispatched, "ok", detail) {
		// The effect (if any) is in the dispatch log; re-dispatching is
		// idempotent, so halt and let the next pass retry the audit write.
		r.halt(ctx, t)
		return
	}

	r.transition(ctx, t, task.StatusDispatched)
	r.publish(events.TaskDispatched{
		ID: t.ID, Role: t.Role, Amount: action.Amount, At: time.Now().UTC(),
	})

	r.record(ctx, t.ID, task.StageCompleted, "ok", "")
	r.transition(ctx, t, task.StatusCompleted)
	r.publish(events.TaskCompleted{ID: t.ID, Role: t.Role, At: time.Now().UTC()})

	r.takeInFlight(t.ID)
	r.queue.Forget(t.ID)
}

// reject routes a task through the rejected state: back to pending while
// attempts remain (retryable faults), otherwise on to failed.
func (r *Runner) reject(ctx context.Context, t *task.Task, reason string, retryable bool) {
	r.transition(ctx, t, task.StatusRejected)
	outcome := "escalate"
	if retryable && t.Attempts < r.cfg.MaxAttempts {
		outcome = "retry"
	}
	r.record(ctx, t.ID, task.StageRejected, outcome, reason)

	if outcome == "retry" {
		t.Origin = task.OriginRetry
		r.transition(ctx, t, task.StatusPending)
		r.requeue(t, r.cfg.Retry.Delay(t.Attempts))
		return
	}
	r.fail(ctx, t, reason)
}

// retryOrFail re-admits a task after a transient stage error, or fails it
// when attempts are exhausted.
func (r *Runner) retryOrFail(ctx context.Context, t *task.Task, reason string) {
	if t.Attempts < r.cfg.MaxAttempts {
		t.Origin = task.OriginRetry
		r.transition(ctx, t, task.StatusPending)
		r.requeue(t, r.cfg.Retry.Delay(t.Attempts))
		return
	}
	r.fail(ctx, t, reason)
}

// fail moves a task to its failed terminal state.
func (r *Runner) fail(ctx context.Context, t *task.Task, reason string) {
	r.transition(ctx, t, task.StatusFailed)
	r.record(ctx, t.ID, task.StageFailed, "error", reason)

	r.publish(events.TaskFailed{
		ID: t.ID, Role: t.Role, Status: t.Status, Reason: reason, At: time.Now().UTC(),
	})
	r.alertHot(t, "hot task failed: "+reason)

	r.takeInFlight(t.ID)
	r.queue.Forget(t.ID)
}

// alertHot raises an immediate alert for a hot-priority terminal outcome.
func (r *Runner) alertHot(t *task.Task, reason string) {
	if t.Priority != task.PriorityHot {
		return
	}
	r.publish(events.Alert{
		ID: t.ID, Role: t.Role, Reason: reason, At: time.Now().UTC(),
	})
}

// halt re-admits a task unchanged after an audit write failure. The stage
// whose entry could not be written has not happened as far as the trail is
// concerned, so the task must not move past it. Each pass back through
// advance still consumes an attempt, so a persistent outage ends in failed
// rather than an endless loop.
func (r *Runner) halt(ctx context.Context, t *task.Task) {
	if t.Status != task.StatusApproved {
		r.transition(ctx, t, task.StatusPending)
	} else {
		r.save(ctx, t)
	}
	r.requeue(t, r.cfg.Retry.Delay(t.Attempts))
}

func (r *Runner) requeue(t *task.Task, delay time.Duration) {
	r.queue.Forget(t.ID)
	if err := r.queue.EnqueueAfter(t, time.Now().Add(delay)); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to re-enqueue task")
	}
}

// propose invokes the role's capability through its circuit breaker.
func (r *Runner) propose(ctx context.Context, t *task.Task) (*task.ProposedAction, error) {
	capability, ok := r.deps.Agents[t.Role]
	if !ok {
		return nil, fmt.Errorf("no capability bound to role %s", t.Role)
	}
	cb := r.breakers.Get(capability.Name())
	out, err := cb.Execute(func() (interface{}, error) {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		return capability.Propose(cctx, t)
	})
	if err != nil {
		return nil, err
	}
	return out.(*task.ProposedAction), nil
}

// review invokes the verifier through its circuit breaker.
func (r *Runner) review(ctx context.Context, t *task.Task, action *task.ProposedAction) (*task.VerificationResult, error) {
	cb := r.breakers.Get(r.deps.Verifier.Name())
	out, err := cb.Execute(func() (interface{}, error) {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		return r.deps.Verifier.Verify(cctx, t, action)
	})
	if err != nil {
		return nil, err
	}
	return out.(*task.VerificationResult), nil
}

func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.CallTimeout)
}

// record writes one audit entry, reporting whether the transition may
// proceed.
func (r *Runner) record(ctx context.Context, taskID string, stage task.Stage, outcome, detail string) bool {
	if _, err := r.deps.Audit.Record(ctx, taskID, stage, outcome, detail); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"task":  taskID,
			"stage": stage,
		}).Error("audit write failed, task will not advance")
		return false
	}
	return true
}

// transition moves a task along the state machine and persists it. A move
// the transition table forbids is a runner bug; it is logged loudly and
// still applied so the task does not wedge.
func (r *Runner) transition(ctx context.Context, t *task.Task, to task.Status) {
	if !task.CanTransition(t.Status, to) {
		r.log.WithFields(logrus.Fields{
			"task": t.ID,
			"from": t.Status.String(),
			"to":   to.String(),
		}).Error("state machine violation")
	}
	t.Status = to
	r.save(ctx, t)
}

func (r *Runner) save(ctx context.Context, t *task.Task) {
	t.UpdatedAt = time.Now().UTC()
	if err := r.deps.Store.SaveTask(ctx, t); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to persist task state")
	}
}

func (r *Runner) publish(ev events.Event) {
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(ev)
	}
}

// resolveApproval persists the final decision and announces it, once.
func (r *Runner) resolveApproval(ctx context.Context, t *task.Task, p *parked) {
	if p == nil {
		return
	}
	if err := r.deps.Store.SaveApproval(ctx, p.decision); err != nil {
		r.log.WithError(err).WithField("task", t.ID).Error("failed to save approval decision")
	}
	if !p.resolved {
		p.resolved = true
		r.publish(events.ApprovalResolved{
			ID:      t.ID,
			Outcome: p.decision.Outcome,
			Decider: p.decision.DecidedBy,
			At:      p.decision.DecidedAt,
		})
	}
}

func (r *Runner) setInFlight(taskID string, p *parked) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[taskID] = p
}

func (r *Runner) getInFlight(taskID string) *parked {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight[taskID]
}

func (r *Runner) takeInFlight(taskID string) *parked {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.inFlight[taskID]
	delete(r.inFlight, taskID)
	return p
}

func deciderDetail(p *parked) string {
	if p == nil || p.decision == nil {
		return ""
	}
	return "decided by " + p.decision.DecidedBy
}

func describeDiscrepancies(fr *task.FactCheckResult) string {
	names := make([]string, 0, len(fr.Discrepancies))
	for name := range fr.Discrepancies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		d := fr.Discrepancies[name]
		parts = append(parts, fmt.Sprintf("%s claimed %q but records show %q", name, d.Actual, d.Expected))
	}
	return strings.Join(parts, "; ")
}
