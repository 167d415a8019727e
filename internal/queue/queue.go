package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aiarmour/armour/internal/task"
)

// entry wraps a queued task with its earliest eligible time (used for retry
// backoff) and a monotonically increasing admission order for FIFO within a
// priority band.
type entry struct {
	task      *task.Task
	notBefore time.Time
	seq       uint64
}

// Queue holds pending tasks and enforces two disciplines the pipeline relies
// on: a task is owned by at most one worker at a time (Claim removes it), and
// each role has a bounded number of tasks in flight so one role's backlog
// cannot starve the others.
type Queue struct {
	mu      sync.Mutex
	entries []*entry
	held    map[string]bool // task IDs currently queued or claimed
	nextSeq uint64

	roleSems map[task.Role]*semaphore.Weighted
	roleCap  map[task.Role]int64
}

// New creates a queue with the given per-role in-flight caps. Roles missing
// from limits default to a cap of 1.
func New(limits map[task.Role]int64) *Queue {
	q := &Queue{
		held:     make(map[string]bool),
		roleSems: make(map[task.Role]*semaphore.Weighted),
		roleCap:  make(map[task.Role]int64),
	}
	for _, role := range task.Roles() {
		limit := limits[role]
		if limit <= 0 {
			limit = 1
		}
		q.roleSems[role] = semaphore.NewWeighted(limit)
		q.roleCap[role] = limit
	}
	return q
}

// Enqueue admits a task, eligible immediately.
func (q *Queue) Enqueue(t *task.Task) error {
	return q.EnqueueAfter(t, time.Time{})
}

// EnqueueAfter admits a task that must not be claimed before notBefore.
// Re-admitting a task that is still queued or claimed is an error: the queue
// is the single owner of an in-flight task.
func (q *Queue) EnqueueAfter(t *task.Task, notBefore time.Time) error {
	if !task.ValidRole(t.Role) {
		return fmt.Errorf("enqueue %s: unknown role %q", t.ID, t.Role)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.held[t.ID] {
		return fmt.Errorf("enqueue %s: task already owned by the queue", t.ID)
	}
	q.held[t.ID] = true
	q.nextSeq++
	q.entries = append(q.entries, &entry{task: t, notBefore: notBefore, seq: q.nextSeq})
	return nil
}

// Claim removes and returns the best eligible task: highest priority first,
// admission order within a priority, skipping tasks whose backoff delay has
// not elapsed and roles that are at their in-flight cap. Returns nil when
// nothing can be claimed. The caller must call Release(role) when it is done
// processing (or has parked) the task.
func (q *Queue) Claim(now time.Time) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	eligible := make([]*entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.notBefore.After(now) {
			continue
		}
		eligible = append(eligible, e)
	}
	sort.Slice(eligible, func(i, j int) bool {
		pi, pj := eligible[i].task.Priority.Rank(), eligible[j].task.Priority.Rank()
		if pi != pj {
			return pi < pj
		}
		return eligible[i].seq < eligible[j].seq
	})

	for _, e := range eligible {
		sem := q.roleSems[e.task.Role]
		if !sem.TryAcquire(1) {
			continue // role at capacity; try a lower-ranked task
		}
		q.remove(e)
		return e.task
	}
	return nil
}

// Release returns one unit of the role's in-flight capacity. Called once per
// successful Claim, after the worker finishes or parks the task.
func (q *Queue) Release(role task.Role) {
	q.mu.Lock()
	sem := q.roleSems[role]
	q.mu.Unlock()
	if sem != nil {
		sem.Release(1)
	}
}

// Forget drops ownership of a claimed task so it can be re-admitted later
// (approval parking, terminal archive).
func (q *Queue) Forget(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.held, taskID)
}

// Len reports how many tasks are waiting (not claimed).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// remove deletes an entry from the waiting list; callers hold q.mu. The task
// stays in held: it is now claimed.
func (q *Queue) remove(target *entry) {
	for i, e := range q.entries {
		if e == target {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}
