package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-reconciler/internal/core/ports"
	"payment-reconciler/pkg/apperror"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Worker processes status-check and notification tasks.
type Worker struct {
	payments ports.PaymentService
	notifier ports.StateChangeDeliverer
	log      zerolog.Logger
}

// NewWorker creates a worker that re-checks payments through svc and posts
// queued notifications through notifier. A nil notifier leaves notification
// tasks unhandled.
func NewWorker(svc ports.PaymentService, notifier ports.StateChangeDeliverer, log zerolog.Logger) *Worker {
	return &Worker{payments: svc, notifier: notifier, log: log}
}

// Register installs the worker's handlers on mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskStatusCheck, w.ProcessStatusCheck)
	if w.notifier != nil {
		mux.HandleFunc(TaskStateChangeNotify, w.ProcessStateChangeNotify)
	}
}

// ProcessStatusCheck handles one payment:status_check task. Transient gateway
// failures are returned for asynq to retry; anything else skips retry.
func (w *Worker) ProcessStatusCheck(ctx context.Context, t *asynq.Task) error {
	var task ports.StatusCheckTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("decode status check payload: %v: %w", err, asynq.SkipRetry)
	}
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		task.Attempt = retried + 1
	}

	log := w.log.With().
		Str("order_id", task.OrderID).
		Str("trigger", task.Trigger).
		Int("attempt", task.Attempt).
		Logger()

	err := w.payments.RetryStatusCheck(ctx, task)
	switch {
	case err == nil:
		log.Info().Msg("scheduled status check applied")
		return nil
	case apperror.IsRetryable(err):
		log.Warn().Err(err).Msg("status check failed, will retry")
		return err
	default:
		log.Error().Err(err).Msg("status check failed permanently")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

// ProcessStateChangeNotify posts one queued notification downstream. Every
// delivery failure is retried until the task runs out of retries.
func (w *Worker) ProcessStateChangeNotify(ctx context.Context, t *asynq.Task) error {
	var delivery ports.StateChangeDelivery
	if err := json.Unmarshal(t.Payload(), &delivery); err != nil {
		return fmt.Errorf("decode notification payload: %v: %w", err, asynq.SkipRetry)
	}

	attempt := 1
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		attempt = retried + 1
	}

	if err := w.notifier.Deliver(ctx, delivery); err != nil {
		w.log.Warn().Err(err).Str("order_id", delivery.OrderID).Int("attempt", attempt).Msg("notification delivery failed")
		return err
	}
	return nil
}

// ServerOptions configures the asynq server run by the worker command.
type ServerOptions struct {
	Queue       string
	Concurrency int
	RetryDelay  time.Duration
}

// NewServer builds an asynq server consuming the reconcile queue.
func NewServer(redisOpt asynq.RedisConnOpt, opts ServerOptions, log zerolog.Logger) *asynq.Server {
	delay := opts.RetryDelay
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: opts.Concurrency,
		Queues:      map[string]int{opts.Queue: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return RetryBackoff(delay, n)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			log.Error().Err(err).Str("task", t.Type()).Msg("task failed")
		}),
		Logger:   NewLogger(log),
		LogLevel: asynq.WarnLevel,
	})
}

// maxBackoffFactor caps exponential backoff at 16x the base delay.
const maxBackoffFactor = 16

// RetryBackoff doubles base for every retry already made, up to a cap.
func RetryBackoff(base time.Duration, retried int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 1
	for i := 0; i < retried && factor < maxBackoffFactor; i++ {
		factor *= 2
	}
	return base * time.Duration(factor)
}
