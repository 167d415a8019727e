package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aiarmour/armour/internal/task"
)

type memLog struct {
	recorded map[string]string
}

func newMemLog() *memLog { return &memLog{recorded: map[string]string{}} }

func (m *memLog) Dispatched(_ context.Context, taskID string) (bool, error) {
	_, ok := m.recorded[taskID]
	return ok, nil
}

func (m *memLog) RecordDispatch(_ context.Context, taskID, summary string) error {
	m.recorded[taskID] = summary
	return nil
}

type countingAdapter struct {
	calls int
	fail  int // fail this many calls before succeeding
}

func (c *countingAdapter) Name() string { return "counting" }

func (c *countingAdapter) Send(context.Context, *task.Task, *task.ProposedAction) error {
	c.calls++
	if c.calls <= c.fail {
		return &Error{Channel: "counting", Err: errors.New("transient failure")}
	}
	return nil
}

func testTask() (*task.Task, *task.ProposedAction) {
	t := task.New(task.RoleSales, "send-quote", nil, task.OriginCommand, task.PriorityWarm)
	a := &task.ProposedAction{
		ID:      "act-1",
		TaskID:  t.ID,
		Summary: "send quote of $1,200 to Acme Corp",
		Amount:  1200,
	}
	return t, a
}

func testDispatcher(adapter Adapter, dlog Log, retries uint64) *Dispatcher {
	d := New(map[task.Role]Adapter{task.RoleSales: adapter}, dlog, retries, nil)
	d.interval = time.Millisecond
	return d
}

func TestDispatchOnce(t *testing.T) {
	adapter := &countingAdapter{}
	dlog := newMemLog()
	d := testDispatcher(adapter, dlog, 0)
	tk, act := testTask()

	sent, err := d.Dispatch(context.Background(), tk, act)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !sent {
		t.Error("expected first dispatch to send")
	}
	if adapter.calls != 1 {
		t.Errorf("expected 1 send, got %d", adapter.calls)
	}
	if dlog.recorded[tk.ID] != act.Summary {
		t.Errorf("dispatch not recorded: %v", dlog.recorded)
	}
}

func TestDispatchIdempotent(t *testing.T) {
	adapter := &countingAdapter{}
	dlog := newMemLog()
	d := testDispatcher(adapter, dlog, 0)
	tk, act := testTask()

	if _, err := d.Dispatch(context.Background(), tk, act); err != nil {
		t.Fatalf("first Dispatch failed: %v", err)
	}
	sent, err := d.Dispatch(context.Background(), tk, act)
	if err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}
	if sent {
		t.Error("expected second dispatch to be skipped")
	}
	if adapter.calls != 1 {
		t.Errorf("side effect repeated: %d sends", adapter.calls)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	adapter := &countingAdapter{fail: 2}
	dlog := newMemLog()
	d := testDispatcher(adapter, dlog, 3)
	tk, act := testTask()

	sent, err := d.Dispatch(context.Background(), tk, act)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !sent {
		t.Error("expected dispatch to eventually send")
	}
	if adapter.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", adapter.calls)
	}
}

func TestDispatchGivesUpAfterRetries(t *testing.T) {
	adapter := &countingAdapter{fail: 100}
	dlog := newMemLog()
	d := testDispatcher(adapter, dlog, 2)
	tk, act := testTask()

	_, err := d.Dispatch(context.Background(), tk, act)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	var derr *Error
	if !errors.As(err, &derr) {
		t.Errorf("expected dispatch Error, got %T: %v", err, err)
	}
	if done, _ := dlog.Dispatched(context.Background(), tk.ID); done {
		t.Error("failed dispatch must not be recorded")
	}
}

func TestDispatchUnknownRole(t *testing.T) {
	dlog := newMemLog()
	d := New(map[task.Role]Adapter{}, dlog, 0, nil)
	tk, act := testTask()

	if _, err := d.Dispatch(context.Background(), tk, act); err == nil {
		t.Fatal("expected error for role without a channel")
	}
}

func TestWebhookAdapterPosts(t *testing.T) {
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter("email", srv.URL+"/hook", time.Second, nil)
	tk, act := testTask()
	if err := adapter.Send(context.Background(), tk, act); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotPath != "/hook" || gotType != "application/json" {
		t.Errorf("unexpected request: path=%q type=%q", gotPath, gotType)
	}
}

func TestWebhookAdapterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter("email", srv.URL, time.Second, nil)
	tk, act := testTask()
	err := adapter.Send(context.Background(), tk, act)
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected dispatch Error, got %v", err)
	}
}

func TestWebhookAdapterLogOnly(t *testing.T) {
	adapter := NewWebhookAdapter("email", "", time.Second, nil)
	tk, act := testTask()
	if err := adapter.Send(context.Background(), tk, act); err != nil {
		t.Fatalf("log-only Send failed: %v", err)
	}
}
