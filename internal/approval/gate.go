package approval

import (
	"fmt"
	"time"

	"github.com/aiarmour/armour/internal/task"
)

// Policy is the configured boundary between automatic dispatch and
// human-in-loop review.
type Policy struct {
	// MaxAutoAmount is the largest monetary effect that may dispatch without
	// a human decision.
	MaxAutoAmount float64
	// ManualPriorities lists task priorities that always require review.
	ManualPriorities []task.Priority
	// SLA bounds how long a manual decision may stay open before it times
	// out.
	SLA time.Duration
}

// DefaultPolicy mirrors the sane defaults: five-figure effects and hot items
// go to a human, everything else auto-dispatches within a 4 hour SLA.
func DefaultPolicy() Policy {
	return Policy{
		MaxAutoAmount:    10_000,
		ManualPriorities: []task.Priority{task.PriorityHot},
		SLA:              4 * time.Hour,
	}
}

// Gate decides whether a verified, fact-checked action may dispatch
// automatically.
type Gate struct {
	policy Policy
}

func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Policy returns the configured policy (for projections).
func (g *Gate) Policy() Policy { return g.policy }

// Evaluate applies the policy. Auto approval requires a clean verification,
// a clean fact check, and no exceeded threshold; anything else routes to a
// manual decision with the triggering threshold recorded.
func (g *Gate) Evaluate(t *task.Task, action *task.ProposedAction, vr *task.VerificationResult, fr *task.FactCheckResult) *task.ApprovalDecision {
	now := time.Now().UTC()

	if threshold := g.exceededThreshold(t, action, vr, fr); threshold != "" {
		return &task.ApprovalDecision{
			TaskID:    t.ID,
			Mode:      task.ApprovalManual,
			Threshold: threshold,
			DecidedAt: now,
		}
	}

	return &task.ApprovalDecision{
		TaskID:    t.ID,
		Mode:      task.ApprovalAuto,
		DecidedBy: "system",
		Outcome:   task.OutcomeApproved,
		DecidedAt: now,
	}
}

func (g *Gate) exceededThreshold(t *task.Task, action *task.ProposedAction, vr *task.VerificationResult, fr *task.FactCheckResult) string {
	// Defense in depth: the pipeline never gates unverified actions, but the
	// gate refuses to auto-approve them regardless.
	if vr == nil || vr.Verdict != task.VerdictApproved {
		return "verification not approved"
	}
	if fr == nil || fr.Verdict != task.FactMatch {
		return "fact check not matched"
	}
	if action.Amount > g.policy.MaxAutoAmount {
		return fmt.Sprintf("amount %.2f exceeds %.2f", action.Amount, g.policy.MaxAutoAmount)
	}
	for _, p := range g.policy.ManualPriorities {
		if t.Priority == p {
			return fmt.Sprintf("priority %s requires review", p)
		}
	}
	return ""
}
