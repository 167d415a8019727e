package verify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/agent"
	"github.com/aiarmour/armour/internal/task"
)

// Verifier runs the independent second-capability review of a proposed
// action and normalizes the result so downstream stages can trust it.
type Verifier struct {
	reviewer agent.Reviewer
	log      *logrus.Logger
}

func New(reviewer agent.Reviewer, log *logrus.Logger) *Verifier {
	return &Verifier{reviewer: reviewer, log: log}
}

// Name identifies the underlying reviewing capability.
func (v *Verifier) Name() string { return v.reviewer.Name() }

// Verify reviews the action. Transport faults propagate as errors (retryable);
// a flagged verdict is a normal result, not an error. The result is
// normalized: confidence clamped to [0,1], and a flagged verdict always
// carries at least one issue so the audit trail never shows a bare rejection.
func (v *Verifier) Verify(ctx context.Context, t *task.Task, action *task.ProposedAction) (*task.VerificationResult, error) {
	result, err := v.reviewer.Review(ctx, t, action)
	if err != nil {
		return nil, err
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	if result.Verdict == task.VerdictFlagged && len(result.Issues) == 0 {
		result.Issues = []string{"reviewer flagged the action without detail"}
	}
	result.TaskID = t.ID

	v.log.WithFields(logrus.Fields{
		"task":       t.ID,
		"verdict":    result.Verdict,
		"confidence": result.Confidence,
	}).Debug("verification complete")

	return result, nil
}
