package main

import (
	"fmt"

	"payment-reconciler/internal/adapter/queue"
	redisStorage "payment-reconciler/internal/adapter/storage/redis"
	"payment-reconciler/pkg/logger"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process scheduled status checks and downstream notifications",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.Component(a.log, "worker")
	srv := queue.NewServer(redisStorage.AsynqOpt(a.cfg.Redis), queue.ServerOptions{
		Queue:       a.cfg.Reconcile.Queue,
		Concurrency: a.cfg.Reconcile.Concurrency,
		RetryDelay:  a.cfg.Reconcile.RetryDelay,
	}, log)

	mux := asynq.NewServeMux()
	queue.NewWorker(a.payments, a.notifier, log).Register(mux)

	log.Info().
		Str("queue", a.cfg.Reconcile.Queue).
		Int("concurrency", a.cfg.Reconcile.Concurrency).
		Msg("queue worker started")

	// Run blocks until SIGINT or SIGTERM.
	if err := srv.Run(mux); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}
