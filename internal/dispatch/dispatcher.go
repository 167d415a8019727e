package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/task"
)

// Log is the durable record of performed side effects.
type Log interface {
	Dispatched(ctx context.Context, taskID string) (bool, error)
	RecordDispatch(ctx context.Context, taskID, summary string) error
}

// Dispatcher sends approved actions through the role's channel, exactly once
// per task. Delivery failures are retried with exponential backoff before
// the attempt is given up.
type Dispatcher struct {
	adapters map[task.Role]Adapter
	dlog     Log
	retries  uint64
	interval time.Duration
	log      *logrus.Entry
}

// New creates a Dispatcher. retries is the number of delivery retries after
// the first attempt.
func New(adapters map[task.Role]Adapter, dlog Log, retries uint64, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		adapters: adapters,
		dlog:     dlog,
		retries:  retries,
		interval: 500 * time.Millisecond,
		log:      log,
	}
}

// Dispatch performs the task's side effect. Returns true if the effect was
// performed by this call, false if the dispatch log showed it already
// happened. The log is checked before sending and written after, so a task
// re-entering this stage never repeats its effect.
func (d *Dispatcher) Dispatch(ctx context.Context, t *task.Task, a *task.ProposedAction) (bool, error) {
	done, err := d.dlog.Dispatched(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("dispatch log check for task %s: %w", t.ID, err)
	}
	if done {
		d.log.WithField("task", t.ID).Info("dispatch already recorded, skipping send")
		return false, nil
	}

	adapter, ok := d.adapters[t.Role]
	if !ok {
		return false, &Error{Channel: string(t.Role), Err: fmt.Errorf("no delivery channel for role %s", t.Role)}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, d.retries), ctx)

	err = backoff.Retry(func() error {
		return adapter.Send(ctx, t, a)
	}, policy)
	if err != nil {
		return false, err
	}

	if err := d.dlog.RecordDispatch(ctx, t.ID, a.Summary); err != nil {
		return false, fmt.Errorf("dispatch record for task %s: %w", t.ID, err)
	}

	d.log.WithFields(logrus.Fields{
		"task":    t.ID,
		"channel": adapter.Name(),
		"amount":  a.Amount,
	}).Info("dispatched")
	return true, nil
}
