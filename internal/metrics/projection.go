// Package metrics maintains an in-memory dashboard projection built from the
// event stream. It is eventually consistent with the store by design; the
// audit trail remains the source of truth.
package metrics

import (
	"sync"
	"time"

	"github.com/aiarmour/armour/internal/events"
	"github.com/aiarmour/armour/internal/task"
)

// RoleCounts aggregates terminal outcomes for one role.
type RoleCounts struct {
	Queued     int `json:"queued"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Dispatched int `json:"dispatched"`
}

// AlertRecord is one attention-worthy outcome, newest last.
type AlertRecord struct {
	TaskID string    `json:"task_id"`
	Role   task.Role `json:"role"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of the projection.
type Snapshot struct {
	Roles            map[task.Role]RoleCounts `json:"roles"`
	TotalDispatched  int                      `json:"total_dispatched"`
	AmountDispatched float64                  `json:"amount_dispatched"`
	OpenApprovals    int                      `json:"open_approvals"`
	Alerts           []AlertRecord            `json:"alerts"`
}

const maxAlerts = 50

// Projection consumes the full event stream and folds it into counters.
type Projection struct {
	mu sync.Mutex

	roles            map[task.Role]RoleCounts
	totalDispatched  int
	amountDispatched float64
	openApprovals    int
	alerts           []AlertRecord

	done chan struct{}
}

// New creates an empty projection.
func New() *Projection {
	return &Projection{
		roles: map[task.Role]RoleCounts{},
		done:  make(chan struct{}),
	}
}

// Run consumes events until the channel closes. Call in its own goroutine.
func (p *Projection) Run(ch <-chan events.Event) {
	defer close(p.done)
	for ev := range ch {
		p.apply(ev)
	}
}

// Wait blocks until Run has drained its channel.
func (p *Projection) Wait() { <-p.done }

func (p *Projection) apply(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := ev.(type) {
	case events.TaskQueued:
		c := p.roles[e.Role]
		c.Queued++
		p.roles[e.Role] = c
	case events.TaskCompleted:
		c := p.roles[e.Role]
		c.Completed++
		p.roles[e.Role] = c
	case events.TaskFailed:
		c := p.roles[e.Role]
		c.Failed++
		p.roles[e.Role] = c
	case events.TaskDispatched:
		c := p.roles[e.Role]
		c.Dispatched++
		p.roles[e.Role] = c
		p.totalDispatched++
		p.amountDispatched += e.Amount
	case events.ApprovalRequested:
		p.openApprovals++
	case events.ApprovalResolved:
		if p.openApprovals > 0 {
			p.openApprovals--
		}
	case events.Alert:
		p.alerts = append(p.alerts, AlertRecord{
			TaskID: e.ID,
			Role:   e.Role,
			Reason: e.Reason,
			At:     e.At,
		})
		if len(p.alerts) > maxAlerts {
			p.alerts = p.alerts[len(p.alerts)-maxAlerts:]
		}
	}
}

// Snapshot returns a copy safe to serve concurrently with Run.
func (p *Projection) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	roles := make(map[task.Role]RoleCounts, len(p.roles))
	for role, c := range p.roles {
		roles[role] = c
	}
	alerts := make([]AlertRecord, len(p.alerts))
	copy(alerts, p.alerts)

	return Snapshot{
		Roles:            roles,
		TotalDispatched:  p.totalDispatched,
		AmountDispatched: p.amountDispatched,
		OpenApprovals:    p.openApprovals,
		Alerts:           alerts,
	}
}
