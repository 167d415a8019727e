// Package dispatch performs the external side effect of an approved task and
// guards it with a durable dispatch log so the effect happens at most once
// per task.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

// Adapter delivers a proposed action to an external channel.
type Adapter interface {
	Name() string
	Send(ctx context.Context, t *task.Task, a *task.ProposedAction) error
}

// Error wraps a delivery failure with the channel that produced it.
type Error struct {
	Channel string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch via %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WebhookAdapter posts the action as JSON to a configured endpoint. With no
// URL configured it logs the delivery instead, which keeps the pipeline fully
// functional in environments without outbound channels.
type WebhookAdapter struct {
	name   string
	url    string
	client *http.Client
	log    *logrus.Entry
}

// NewWebhookAdapter creates an adapter for one delivery channel.
func NewWebhookAdapter(name, url string, timeout time.Duration, log *logrus.Entry) *WebhookAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebhookAdapter{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (w *WebhookAdapter) Name() string { return w.name }

type webhookPayload struct {
	TaskID   string  `json:"task_id"`
	TaskName string  `json:"task_name"`
	Role     string  `json:"role"`
	Channel  string  `json:"channel"`
	Summary  string  `json:"summary"`
	Amount   float64 `json:"amount,omitempty"`
}

func (w *WebhookAdapter) Send(ctx context.Context, t *task.Task, a *task.ProposedAction) error {
	if w.url == "" {
		w.log.WithFields(logrus.Fields{
			"task":    t.ID,
			"channel": w.name,
		}).Infof("dispatch (log only): %s", a.Summary)
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		TaskID:   t.ID,
		TaskName: t.Name,
		Role:     string(t.Role),
		Channel:  w.name,
		Summary:  a.Summary,
		Amount:   a.Amount,
	})
	if err != nil {
		return &Error{Channel: w.name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &Error{Channel: w.name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &Error{Channel: w.name, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Channel: w.name, Err: fmt.Errorf("endpoint returned status %d", resp.StatusCode)}
	}
	return nil
}

// Channels maps each role to its delivery channel. Sales, finance and support
// actions go out as messages; logistics actions raise reorders; contractor
// actions book installation slots.
func Channels(urls map[string]string, timeout time.Duration, log *logrus.Entry) map[task.Role]Adapter {
	adapter := func(name string) Adapter {
		return NewWebhookAdapter(name, urls[name], timeout, log)
	}
	email := adapter("email")
	return map[task.Role]Adapter{
		task.RoleSales:      email,
		task.RoleFinance:    email,
		task.RoleSupport:    email,
		task.RoleLogistics:  adapter("reorder"),
		task.RoleContractor: adapter("schedule"),
	}
}
