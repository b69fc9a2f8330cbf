package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-reconciler/internal/core/ports"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Task types handled by the worker.
const (
	TaskStatusCheck       = "payment:status_check"
	TaskStateChangeNotify = "payment:notify_state_change"
)

// minUniqueTTL is the smallest uniqueness window asynq accepts.
const minUniqueTTL = time.Second

// Enqueuer is the subset of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Options controls how tasks are scheduled.
type Options struct {
	Queue      string
	MaxRetries int
	RetryDelay time.Duration

	// NotifyRetries bounds redelivery of downstream notifications.
	NotifyRetries int
}

// Client schedules status checks and downstream notifications on the asynq queue.
type Client struct {
	enq  Enqueuer
	opts Options
	log  zerolog.Logger
}

var (
	_ ports.RetryScheduler    = (*Client)(nil)
	_ ports.DeliveryScheduler = (*Client)(nil)
)

// NewClient creates a scheduler backed by enq.
func NewClient(enq Enqueuer, opts Options, log zerolog.Logger) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	return &Client{enq: enq, opts: opts, log: log}
}

// ScheduleStatusCheck enqueues a status check for task.OrderID after the
// configured delay. A check already pending for the same order and trigger
// is not scheduled twice.
func (c *Client) ScheduleStatusCheck(ctx context.Context, task ports.StatusCheckTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal status check: %w", err)
	}

	uniqueTTL := c.opts.RetryDelay
	if uniqueTTL < minUniqueTTL {
		uniqueTTL = minUniqueTTL
	}

	info, err := c.enq.EnqueueContext(ctx, asynq.NewTask(TaskStatusCheck, payload),
		asynq.Queue(c.opts.Queue),
		asynq.ProcessIn(c.opts.RetryDelay),
		asynq.MaxRetry(c.opts.MaxRetries),
		asynq.Unique(uniqueTTL),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		c.log.Debug().Str("order_id", task.OrderID).Msg("status check already scheduled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue status check: %w", err)
	}

	c.log.Info().
		Str("order_id", task.OrderID).
		Str("trigger", task.Trigger).
		Str("task_id", info.ID).
		Dur("delay", c.opts.RetryDelay).
		Msg("status check scheduled")
	return nil
}

// ScheduleDelivery enqueues a signed state-change notification for immediate
// delivery by the worker.
func (c *Client) ScheduleDelivery(ctx context.Context, delivery ports.StateChangeDelivery) error {
	payload, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	info, err := c.enq.EnqueueContext(ctx, asynq.NewTask(TaskStateChangeNotify, payload),
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.NotifyRetries),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	c.log.Debug().
		Str("order_id", delivery.OrderID).
		Str("task_id", info.ID).
		Msg("notification queued")
	return nil
}
