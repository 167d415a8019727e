package approval

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func cleanResults(taskID string) (*task.VerificationResult, *task.FactCheckResult) {
	return &task.VerificationResult{TaskID: taskID, Verdict: task.VerdictApproved, Confidence: 0.9},
		&task.FactCheckResult{TaskID: taskID, Verdict: task.FactMatch}
}

func TestGateAutoApprovesBelowThreshold(t *testing.T) {
	g := NewGate(Policy{MaxAutoAmount: 10_000, SLA: time.Hour})
	tk := task.New(task.RoleSales, "quote", nil, task.OriginScheduled, task.PriorityWarm)
	vr, fr := cleanResults(tk.ID)

	d := g.Evaluate(tk, &task.ProposedAction{TaskID: tk.ID, Amount: 500}, vr, fr)
	if d.Mode != task.ApprovalAuto {
		t.Fatalf("mode = %v, want auto (%s)", d.Mode, d.Threshold)
	}
	if d.Outcome != task.OutcomeApproved || d.DecidedBy != "system" {
		t.Errorf("decision = %+v", d)
	}
}

func TestGateRoutesLargeAmountsToManual(t *testing.T) {
	g := NewGate(Policy{MaxAutoAmount: 10_000, SLA: time.Hour})
	tk := task.New(task.RoleSales, "quote", nil, task.OriginScheduled, task.PriorityWarm)
	vr, fr := cleanResults(tk.ID)

	d := g.Evaluate(tk, &task.ProposedAction{TaskID: tk.ID, Amount: 12_400}, vr, fr)
	if d.Mode != task.ApprovalManual {
		t.Fatal("expected manual mode above monetary threshold")
	}
	if d.Threshold == "" {
		t.Error("manual decision must record the triggering threshold")
	}
	if d.Outcome != "" {
		t.Errorf("manual decision must start undecided, got %v", d.Outcome)
	}
}

func TestGateRoutesHotPriorityToManual(t *testing.T) {
	g := NewGate(DefaultPolicy())
	tk := task.New(task.RoleSupport, "ticket", nil, task.OriginCommand, task.PriorityHot)
	vr, fr := cleanResults(tk.ID)

	d := g.Evaluate(tk, &task.ProposedAction{TaskID: tk.ID, Amount: 0}, vr, fr)
	if d.Mode != task.ApprovalManual {
		t.Error("hot priority must require review under the default policy")
	}
}

func TestGateNeverAutoApprovesDirtyResults(t *testing.T) {
	g := NewGate(Policy{MaxAutoAmount: 1_000_000, SLA: time.Hour})
	tk := task.New(task.RoleFinance, "reminder", nil, task.OriginScheduled, task.PriorityWarm)
	action := &task.ProposedAction{TaskID: tk.ID}

	flagged := &task.VerificationResult{Verdict: task.VerdictFlagged, Issues: []string{"bad math"}}
	_, fr := cleanResults(tk.ID)
	if d := g.Evaluate(tk, action, flagged, fr); d.Mode != task.ApprovalManual {
		t.Error("flagged verification must not auto-approve")
	}

	vr, _ := cleanResults(tk.ID)
	mismatch := &task.FactCheckResult{Verdict: task.FactMismatch}
	if d := g.Evaluate(tk, action, vr, mismatch); d.Mode != task.ApprovalManual {
		t.Error("fact mismatch must not auto-approve")
	}
}

func resumeCollector() (ResumeFunc, *[]*task.Task) {
	var resumed []*task.Task
	return func(t *task.Task, _ *task.ProposedAction) {
		resumed = append(resumed, t)
	}, &resumed
}

func parked(r *Registry, prio task.Priority, deadline time.Time) *task.Task {
	tk := task.New(task.RoleSales, "quote", nil, task.OriginScheduled, prio)
	tk.Status = task.StatusAwaitingApproval
	r.Park(tk, &task.ProposedAction{TaskID: tk.ID}, &task.ApprovalDecision{TaskID: tk.ID, Mode: task.ApprovalManual}, deadline)
	return tk
}

func TestRegistryDecideApproves(t *testing.T) {
	resume, resumed := resumeCollector()
	r := NewRegistry(resume, quietLogger())
	tk := parked(r, task.PriorityWarm, time.Now().Add(time.Hour))

	if err := r.Decide(tk.ID, true, "ops@example.com"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(*resumed) != 1 {
		t.Fatalf("expected 1 resumed task, got %d", len(*resumed))
	}
	if (*resumed)[0].Status != task.StatusApproved {
		t.Errorf("status = %v, want approved", (*resumed)[0].Status)
	}

	// Second decision must fail: the task is no longer awaiting approval.
	if err := r.Decide(tk.ID, false, "ops@example.com"); err == nil {
		t.Error("expected error deciding a task twice")
	}
}

func TestRegistryDecideDenies(t *testing.T) {
	resume, resumed := resumeCollector()
	r := NewRegistry(resume, quietLogger())
	tk := parked(r, task.PriorityWarm, time.Now().Add(time.Hour))

	if err := r.Decide(tk.ID, false, "ops@example.com"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if (*resumed)[0].Status != task.StatusDenied {
		t.Errorf("status = %v, want denied", (*resumed)[0].Status)
	}
}

func TestRegistryExpireSweepsPastDeadline(t *testing.T) {
	resume, resumed := resumeCollector()
	r := NewRegistry(resume, quietLogger())
	now := time.Now()

	expired := parked(r, task.PriorityWarm, now.Add(-time.Minute))
	kept := parked(r, task.PriorityWarm, now.Add(time.Hour))

	if n := r.Expire(now); n != 1 {
		t.Fatalf("Expire = %d, want 1", n)
	}
	if len(*resumed) != 1 || (*resumed)[0].ID != expired.ID {
		t.Fatalf("wrong task expired: %+v", *resumed)
	}
	if (*resumed)[0].Status != task.StatusTimedOut {
		t.Errorf("status = %v, want timed_out", (*resumed)[0].Status)
	}

	remaining := r.List()
	if len(remaining) != 1 || remaining[0].Task.ID != kept.ID {
		t.Errorf("expected %s to stay parked", kept.ID)
	}
}

func TestRegistryCancel(t *testing.T) {
	resume, resumed := resumeCollector()
	r := NewRegistry(resume, quietLogger())
	tk := parked(r, task.PriorityHot, time.Now().Add(time.Hour))

	if err := r.Cancel(tk.ID, "ops@example.com"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if (*resumed)[0].Status != task.StatusCancelled {
		t.Errorf("status = %v, want cancelled", (*resumed)[0].Status)
	}
	if err := r.Cancel(tk.ID, "ops@example.com"); err == nil {
		t.Error("expected error cancelling twice")
	}
}
