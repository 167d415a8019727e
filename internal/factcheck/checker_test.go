package factcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

type mapStore struct {
	facts map[string]string // "field|key" -> value
	err   error
}

func (m *mapStore) Lookup(_ context.Context, field, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.facts[field+"|"+key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func action(claims ...task.Claim) *task.ProposedAction {
	return &task.ProposedAction{TaskID: "t-1", Claims: claims}
}

func TestReconcileMatch(t *testing.T) {
	store := &mapStore{facts: map[string]string{
		"price|nvidia_box":              "3500",
		"inventory.quantity|nvidia_box": "3",
	}}
	c := New(store, quietLogger())

	result, err := c.Reconcile(context.Background(), action(
		task.Claim{Field: "price", Key: "nvidia_box", Value: "3500"},
		task.Claim{Field: "inventory.quantity", Key: "nvidia_box", Value: "3"},
	))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Verdict != task.FactMatch {
		t.Errorf("verdict = %v, want match (%v)", result.Verdict, result.Discrepancies)
	}
	if len(result.Discrepancies) != 0 {
		t.Errorf("unexpected discrepancies: %v", result.Discrepancies)
	}
}

func TestReconcileStaleClaimIsMismatch(t *testing.T) {
	store := &mapStore{facts: map[string]string{"invoice.status|42": "paid"}}
	c := New(store, quietLogger())

	result, err := c.Reconcile(context.Background(), action(
		task.Claim{Field: "invoice.status", Key: "42", Value: "overdue"},
	))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Verdict != task.FactMismatch {
		t.Fatal("expected mismatch for stale invoice status")
	}
	d, ok := result.Discrepancies["invoice.status[42]"]
	if !ok {
		t.Fatalf("missing discrepancy entry: %v", result.Discrepancies)
	}
	if d.Expected != "paid" || d.Actual != "overdue" {
		t.Errorf("discrepancy = %+v", d)
	}
}

func TestReconcileUnknownFactIsMismatch(t *testing.T) {
	c := New(&mapStore{facts: map[string]string{}}, quietLogger())

	result, err := c.Reconcile(context.Background(), action(
		task.Claim{Field: "price", Key: "phantom_item", Value: "999"},
	))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Verdict != task.FactMismatch {
		t.Error("claims without a backing record must mismatch")
	}
}

func TestReconcileStoreFailureBlocks(t *testing.T) {
	c := New(&mapStore{err: errors.New("db locked")}, quietLogger())

	_, err := c.Reconcile(context.Background(), action(
		task.Claim{Field: "price", Key: "nvidia_box", Value: "3500"},
	))
	if err == nil {
		t.Error("store failure must surface as an error, not a verdict")
	}
}

func TestReconcileNoClaimsMatches(t *testing.T) {
	c := New(&mapStore{}, quietLogger())
	result, err := c.Reconcile(context.Background(), action())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Verdict != task.FactMatch {
		t.Error("actions without claims have nothing to dispute")
	}
}
