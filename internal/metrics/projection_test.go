package metrics

import (
	"testing"
	"time"

	"github.com/aiarmour/armour/internal/events"
	"github.com/aiarmour/armour/internal/task"
)

func runProjection(t *testing.T, evs ...events.Event) Snapshot {
	t.Helper()
	p := New()
	ch := make(chan events.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	go p.Run(ch)
	p.Wait()
	return p.Snapshot()
}

func TestProjectionCountsOutcomes(t *testing.T) {
	now := time.Now().UTC()
	snap := runProjection(t,
		events.TaskQueued{ID: "t1", Role: task.RoleSales, At: now},
		events.TaskQueued{ID: "t2", Role: task.RoleSales, At: now},
		events.TaskQueued{ID: "t3", Role: task.RoleFinance, At: now},
		events.TaskDispatched{ID: "t1", Role: task.RoleSales, Amount: 1200, At: now},
		events.TaskCompleted{ID: "t1", Role: task.RoleSales, At: now},
		events.TaskFailed{ID: "t2", Role: task.RoleSales, Status: task.StatusFailed, Reason: "agent error", At: now},
	)

	sales := snap.Roles[task.RoleSales]
	if sales.Queued != 2 || sales.Completed != 1 || sales.Failed != 1 || sales.Dispatched != 1 {
		t.Errorf("unexpected sales counts: %+v", sales)
	}
	if snap.Roles[task.RoleFinance].Queued != 1 {
		t.Errorf("unexpected finance counts: %+v", snap.Roles[task.RoleFinance])
	}
	if snap.TotalDispatched != 1 || snap.AmountDispatched != 1200 {
		t.Errorf("unexpected dispatch totals: %d / %v", snap.TotalDispatched, snap.AmountDispatched)
	}
}

func TestProjectionOpenApprovals(t *testing.T) {
	now := time.Now().UTC()
	snap := runProjection(t,
		events.ApprovalRequested{ID: "t1", Role: task.RoleFinance, Deadline: now.Add(4 * time.Hour)},
		events.ApprovalRequested{ID: "t2", Role: task.RoleSales, Deadline: now.Add(4 * time.Hour)},
		events.ApprovalResolved{ID: "t1", Outcome: task.OutcomeApproved, Decider: "ops", At: now},
	)
	if snap.OpenApprovals != 1 {
		t.Errorf("expected 1 open approval, got %d", snap.OpenApprovals)
	}
}

func TestProjectionAlertsBounded(t *testing.T) {
	now := time.Now().UTC()
	var evs []events.Event
	for i := 0; i < maxAlerts+10; i++ {
		evs = append(evs, events.Alert{ID: "t", Role: task.RoleSupport, Reason: "hot task failed", At: now})
	}
	snap := runProjection(t, evs...)
	if len(snap.Alerts) != maxAlerts {
		t.Errorf("expected alerts capped at %d, got %d", maxAlerts, len(snap.Alerts))
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	p := New()
	p.apply(events.TaskQueued{ID: "t1", Role: task.RoleSales})

	snap := p.Snapshot()
	snap.Roles[task.RoleSales] = RoleCounts{Queued: 99}

	if p.Snapshot().Roles[task.RoleSales].Queued != 1 {
		t.Error("mutating a snapshot leaked into the projection")
	}
}
