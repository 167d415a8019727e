package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

type stubReviewer struct {
	result *task.VerificationResult
	err    error
}

func (s *stubReviewer) Review(context.Context, *task.Task, *task.ProposedAction) (*task.VerificationResult, error) {
	return s.result, s.err
}

func (s *stubReviewer) Name() string { return "stub" }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestVerifyClampsConfidence(t *testing.T) {
	v := New(&stubReviewer{result: &task.VerificationResult{Verdict: task.VerdictApproved, Confidence: 1.8}}, quietLogger())
	tk := task.New(task.RoleSales, "x", nil, task.OriginScheduled, task.PriorityWarm)

	got, err := v.Verify(context.Background(), tk, &task.ProposedAction{TaskID: tk.ID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", got.Confidence)
	}
	if got.TaskID != tk.ID {
		t.Errorf("result not bound to task")
	}
}

func TestVerifyFlaggedAlwaysHasIssues(t *testing.T) {
	v := New(&stubReviewer{result: &task.VerificationResult{Verdict: task.VerdictFlagged}}, quietLogger())
	tk := task.New(task.RoleFinance, "x", nil, task.OriginScheduled, task.PriorityWarm)

	got, err := v.Verify(context.Background(), tk, &task.ProposedAction{TaskID: tk.ID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(got.Issues) == 0 {
		t.Error("flagged verdict must carry at least one issue")
	}
}

func TestVerifyPropagatesTransportError(t *testing.T) {
	wantErr := errors.New("boom")
	v := New(&stubReviewer{err: wantErr}, quietLogger())
	tk := task.New(task.RoleSupport, "x", nil, task.OriginScheduled, task.PriorityWarm)

	if _, err := v.Verify(context.Background(), tk, &task.ProposedAction{}); !errors.Is(err, wantErr) {
		t.Errorf("expected transport error, got %v", err)
	}
}
