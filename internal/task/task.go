package task

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which business agent handles a task.
type Role string

const (
	RoleSales      Role = "sales"
	RoleFinance    Role = "finance"
	RoleLogistics  Role = "logistics"
	RoleContractor Role = "contractor"
	RoleSupport    Role = "support"
)

// Roles returns all known roles in a stable order.
func Roles() []Role {
	return []Role{RoleSales, RoleFinance, RoleLogistics, RoleContractor, RoleSupport}
}

// ValidRole reports whether r is one of the known business roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleSales, RoleFinance, RoleLogistics, RoleContractor, RoleSupport:
		return true
	}
	return false
}

// Priority ranks how urgently a task should be handled.
type Priority string

const (
	PriorityHot  Priority = "hot"
	PriorityWarm Priority = "warm"
	PriorityCold Priority = "cold"
)

// Rank returns a numeric rank for queue ordering. Lower runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHot:
		return 0
	case PriorityWarm:
		return 1
	default:
		return 2
	}
}

// Origin records how a task entered the system.
type Origin string

const (
	OriginScheduled Origin = "scheduled"
	OriginCommand   Origin = "command"
	OriginRetry     Origin = "retry"
)

// Task is a unit of scheduled or ad-hoc work routed through the pipeline.
// The queue owns a task for its lifetime; it is created by the scheduler or
// the command adapter and archived on reaching a terminal status.
type Task struct {
	ID        string
	Name      string
	Role      Role
	Payload   map[string]string // opaque role-specific data (lead details, invoice id, ...)
	Origin    Origin
	Priority  Priority
	Status    Status
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending task with a fresh identity.
func New(role Role, name string, payload map[string]string, origin Origin, priority Priority) *Task {
	now := time.Now().UTC()
	if payload == nil {
		payload = map[string]string{}
	}
	return &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Role:      role,
		Payload:   payload,
		Origin:    origin,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Payload = make(map[string]string, len(t.Payload))
	for k, v := range t.Payload {
		cp.Payload[k] = v
	}
	return &cp
}

// Claim is a single fact-checkable assertion inside a proposed action,
// addressed the same way the fact store is: a field name plus a key.
type Claim struct {
	Field string `json:"field"` // e.g. "invoice.status", "inventory.quantity", "price"
	Key   string `json:"key"`   // e.g. invoice id, item name
	Value string `json:"value"` // the value the agent asserts
}

// ProposedAction is an AI-generated candidate external effect. Immutable once
// created; it is owned by the stage that produced it until the next stage
// consumes it.
type ProposedAction struct {
	ID          string
	TaskID      string
	GeneratedBy string  // identity of the proposing capability
	Summary     string  // human-readable description of the effect
	Amount      float64 // monetary value of the effect, 0 if none
	Claims      []Claim
	CreatedAt   time.Time
}

// Verdict is the verifier's judgement of a proposed action.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictFlagged  Verdict = "flagged"
)

// VerificationResult is produced exactly once per attempt by the reviewing
// capability.
type VerificationResult struct {
	TaskID     string
	Verdict    Verdict
	Issues     []string
	Confidence float64 // in [0,1]
}

// FactVerdict is the reconciliation outcome against ground truth.
type FactVerdict string

const (
	FactMatch    FactVerdict = "match"
	FactMismatch FactVerdict = "mismatch"
)

// Discrepancy records an expected-vs-actual divergence for one claim.
type Discrepancy struct {
	Expected string // value held by the fact store
	Actual   string // value the agent claimed
}

// FactCheckResult is the outcome of reconciling a proposed action's claims.
type FactCheckResult struct {
	TaskID        string
	Verdict       FactVerdict
	Discrepancies map[string]Discrepancy // claim field/key -> divergence
}

// ApprovalMode distinguishes automatic from human-gated dispatch.
type ApprovalMode string

const (
	ApprovalAuto   ApprovalMode = "auto"
	ApprovalManual ApprovalMode = "manual"
)

// ApprovalOutcome is the final result of the approval gate for a task.
type ApprovalOutcome string

const (
	OutcomeApproved  ApprovalOutcome = "approved"
	OutcomeDenied    ApprovalOutcome = "denied"
	OutcomeTimedOut  ApprovalOutcome = "timed-out"
	OutcomeCancelled ApprovalOutcome = "cancelled"
)

// ApprovalDecision records how (and by whom) dispatch was authorized or
// refused.
type ApprovalDecision struct {
	TaskID    string
	Mode      ApprovalMode
	Threshold string // the threshold that forced manual review, empty for auto
	DecidedBy string // "system" or a human identity
	Outcome   ApprovalOutcome
	DecidedAt time.Time
}

// AuditEntry is one append-only record of a stage transition. Entries for a
// task are strictly ordered by Seq and never rewritten.
type AuditEntry struct {
	TaskID  string
	Seq     int
	Stage   Stage
	Outcome string
	Detail  string
	At      time.Time
}
