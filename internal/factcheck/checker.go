package factcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

// ErrNotFound is returned by a FactStore when no record exists for the
// requested field and key.
var ErrNotFound = errors.New("fact not found")

// FactStore is a read-only view over business ground truth (inventory,
// pricing, invoice status). It is externally owned: the pipeline never writes
// through it.
type FactStore interface {
	Lookup(ctx context.Context, field, key string) (string, error)
}

// Checker reconciles a proposed action's claims against the fact store. This
// runs regardless of the verification verdict: it catches true-but-stale
// outputs, not just hallucinations.
type Checker struct {
	store FactStore
	log   *logrus.Logger
}

func New(store FactStore, log *logrus.Logger) *Checker {
	return &Checker{store: store, log: log}
}

// Reconcile checks every claim. Any divergence, including a claim the store
// has no record for, yields a mismatch verdict with per-claim discrepancies.
// An error return means the store itself was unreachable, which blocks the
// stage rather than passing unverified claims through.
func (c *Checker) Reconcile(ctx context.Context, action *task.ProposedAction) (*task.FactCheckResult, error) {
	result := &task.FactCheckResult{
		TaskID:        action.TaskID,
		Verdict:       task.FactMatch,
		Discrepancies: map[string]task.Discrepancy{},
	}

	for _, claim := range action.Claims {
		name := fmt.Sprintf("%s[%s]", claim.Field, claim.Key)

		actual, err := c.store.Lookup(ctx, claim.Field, claim.Key)
		if errors.Is(err, ErrNotFound) {
			result.Verdict = task.FactMismatch
			result.Discrepancies[name] = task.Discrepancy{Expected: "(no record)", Actual: claim.Value}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fact lookup %s: %w", name, err)
		}

		if actual != claim.Value {
			result.Verdict = task.FactMismatch
			result.Discrepancies[name] = task.Discrepancy{Expected: actual, Actual: claim.Value}
		}
	}

	if result.Verdict == task.FactMismatch {
		c.log.WithFields(logrus.Fields{
			"task":          action.TaskID,
			"discrepancies": len(result.Discrepancies),
		}).Warn("fact check mismatch")
	}
	return result, nil
}
