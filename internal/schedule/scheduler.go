package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/aiarmour/armour/internal/task"
)

// Cadence selects how a rule's fire times are derived.
type Cadence int

const (
	CadenceInterval Cadence = iota // every N duration
	CadenceDaily                   // once per day at a fixed local time
)

// Rule describes one recurring task emission.
type Rule struct {
	Name     string
	Role     task.Role
	Payload  map[string]string
	Priority task.Priority
	Cadence  Cadence
	Every    time.Duration // interval rules
	AtHour   int           // daily rules: local time of day
	AtMinute int

	next time.Time
}

// Scheduler emits tasks when rules fall due. It deliberately provides
// at-least-once semantics: duplicate-effect protection belongs to the
// dispatcher, not here.
type Scheduler struct {
	mu    sync.Mutex
	rules []*Rule
}

// New creates a scheduler over the given rules. Rule validation failures are
// returned up front so a bad config cannot silently never fire.
func New(rules []*Rule) (*Scheduler, error) {
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("schedule rule without a name")
		}
		if !task.ValidRole(r.Role) {
			return nil, fmt.Errorf("schedule rule %q: unknown role %q", r.Name, r.Role)
		}
		switch r.Cadence {
		case CadenceInterval:
			if r.Every <= 0 {
				return nil, fmt.Errorf("schedule rule %q: interval must be positive", r.Name)
			}
		case CadenceDaily:
			if r.AtHour < 0 || r.AtHour > 23 || r.AtMinute < 0 || r.AtMinute > 59 {
				return nil, fmt.Errorf("schedule rule %q: invalid daily time %02d:%02d", r.Name, r.AtHour, r.AtMinute)
			}
		default:
			return nil, fmt.Errorf("schedule rule %q: unknown cadence", r.Name)
		}
		if r.Priority == "" {
			r.Priority = task.PriorityWarm
		}
	}
	return &Scheduler{rules: rules}, nil
}

// Tick emits one task per rule whose next fire time is due at now, then
// advances the rule. A rule that missed several cycles (process downtime)
// fires exactly once and resumes from now, so a restart never produces a task
// storm.
func (s *Scheduler) Tick(now time.Time) []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task.Task
	for _, r := range s.rules {
		if r.next.IsZero() {
			r.next = s.firstFire(r, now)
		}
		if r.next.After(now) {
			continue
		}
		due = append(due, task.New(r.Role, r.Name, clonePayload(r.Payload), task.OriginScheduled, r.Priority))
		r.next = s.nextFire(r, now)
	}
	return due
}

// Inject creates an ad-hoc task that bypasses all cadences, for the command
// adapter.
func (s *Scheduler) Inject(role task.Role, name string, payload map[string]string, priority task.Priority) *task.Task {
	return task.New(role, name, clonePayload(payload), task.OriginCommand, priority)
}

// NextFire reports when the named rule fires next, for read-only projections.
// The zero time means the rule has not been primed by a tick yet.
func (s *Scheduler) NextFire(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.Name == name {
			return r.next
		}
	}
	return time.Time{}
}

// firstFire primes a rule on the first tick: interval rules fire immediately,
// daily rules wait for the next occurrence of their wall-clock time.
func (s *Scheduler) firstFire(r *Rule, now time.Time) time.Time {
	if r.Cadence == CadenceDaily {
		return nextDaily(r, now)
	}
	return now
}

// nextFire advances a rule past now, collapsing any missed cycles into none.
func (s *Scheduler) nextFire(r *Rule, now time.Time) time.Time {
	if r.Cadence == CadenceDaily {
		return nextDaily(r, now)
	}
	return now.Add(r.Every)
}

func nextDaily(r *Rule, now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), r.AtHour, r.AtMinute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

func clonePayload(p map[string]string) map[string]string {
	cp := make(map[string]string, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// DefaultRules returns the built-in operating cadences: inbox and inventory
// checks hourly, deployed-system monitoring every five minutes, lead
// follow-up and the financial report daily.
func DefaultRules() []*Rule {
	return []*Rule{
		{Name: "check-inbox", Role: task.RoleSales, Cadence: CadenceInterval, Every: time.Hour, Priority: task.PriorityWarm},
		{Name: "check-inventory", Role: task.RoleLogistics, Cadence: CadenceInterval, Every: time.Hour, Priority: task.PriorityWarm},
		{Name: "monitor-systems", Role: task.RoleSupport, Cadence: CadenceInterval, Every: 5 * time.Minute, Priority: task.PriorityCold},
		{Name: "follow-up-leads", Role: task.RoleSales, Cadence: CadenceDaily, AtHour: 9, Priority: task.PriorityWarm},
		{Name: "financial-report", Role: task.RoleFinance, Cadence: CadenceDaily, AtHour: 17, Priority: task.PriorityCold},
	}
}
