package queue

import (
	"testing"
	"time"

	"github.com/aiarmour/armour/internal/task"
)

func newTask(role task.Role, prio task.Priority) *task.Task {
	return task.New(role, "test", nil, task.OriginScheduled, prio)
}

func TestClaimOrderByPriorityThenFIFO(t *testing.T) {
	q := New(map[task.Role]int64{task.RoleSales: 5})
	now := time.Now()

	cold := newTask(task.RoleSales, task.PriorityCold)
	warm := newTask(task.RoleSales, task.PriorityWarm)
	hot := newTask(task.RoleSales, task.PriorityHot)
	hot2 := newTask(task.RoleSales, task.PriorityHot)

	for _, tk := range []*task.Task{cold, warm, hot, hot2} {
		if err := q.Enqueue(tk); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	want := []*task.Task{hot, hot2, warm, cold}
	for i, expected := range want {
		got := q.Claim(now)
		if got == nil {
			t.Fatalf("claim %d: got nil", i)
		}
		if got.ID != expected.ID {
			t.Errorf("claim %d: got %v priority %v, want %v", i, got.ID, got.Priority, expected.Priority)
		}
	}
	if q.Claim(now) != nil {
		t.Error("expected empty queue")
	}
}

func TestPerRoleCapBlocksClaims(t *testing.T) {
	q := New(map[task.Role]int64{task.RoleSales: 1, task.RoleFinance: 1})
	now := time.Now()

	s1 := newTask(task.RoleSales, task.PriorityHot)
	s2 := newTask(task.RoleSales, task.PriorityHot)
	f1 := newTask(task.RoleFinance, task.PriorityCold)
	for _, tk := range []*task.Task{s1, s2, f1} {
		if err := q.Enqueue(tk); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	first := q.Claim(now)
	if first == nil || first.Role != task.RoleSales {
		t.Fatalf("expected a sales claim first, got %+v", first)
	}

	// Sales is at cap; the cold finance task must be claimable so one role's
	// backlog does not starve others.
	second := q.Claim(now)
	if second == nil || second.Role != task.RoleFinance {
		t.Fatalf("expected finance claim while sales at cap, got %+v", second)
	}

	if q.Claim(now) != nil {
		t.Error("expected no claim with both roles at cap")
	}

	q.Release(task.RoleSales)
	third := q.Claim(now)
	if third == nil || third.ID != s2.ID {
		t.Fatalf("expected second sales task after release, got %+v", third)
	}
}

func TestSingleOwnership(t *testing.T) {
	q := New(nil)
	tk := newTask(task.RoleSupport, task.PriorityWarm)

	if err := q.Enqueue(tk); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(tk); err == nil {
		t.Error("expected duplicate enqueue to fail while queued")
	}

	claimed := q.Claim(time.Now())
	if claimed == nil {
		t.Fatal("claim failed")
	}
	// Still owned while claimed.
	if err := q.Enqueue(tk); err == nil {
		t.Error("expected enqueue to fail while claimed")
	}

	q.Forget(tk.ID)
	q.Release(tk.Role)
	if err := q.Enqueue(tk); err != nil {
		t.Errorf("expected enqueue after Forget to succeed: %v", err)
	}
}

func TestBackoffDelayRespected(t *testing.T) {
	q := New(nil)
	now := time.Now()

	tk := newTask(task.RoleLogistics, task.PriorityHot)
	if err := q.EnqueueAfter(tk, now.Add(time.Minute)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if got := q.Claim(now); got != nil {
		t.Error("claimed task before its backoff elapsed")
	}
	if got := q.Claim(now.Add(2 * time.Minute)); got == nil {
		t.Error("task not claimable after backoff elapsed")
	}
}

func TestUnknownRoleRejected(t *testing.T) {
	q := New(nil)
	tk := task.New("janitor", "x", nil, task.OriginScheduled, task.PriorityCold)
	if err := q.Enqueue(tk); err == nil {
		t.Error("expected unknown role to be rejected")
	}
}
