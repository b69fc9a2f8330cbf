package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-reconciler/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	reconcileWorker    bool
	reconcileOlderThan time.Duration
	reconcileLimit     int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Poll the gateway for submitted payments that have not settled",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileWorker, "worker", false, "run continuously on reconcile.sweep_interval")
	reconcileCmd.Flags().DurationVar(&reconcileOlderThan, "older-than", 0, "only payments not updated for this long (default reconcile.stale_after)")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 0, "maximum payments per sweep (default reconcile.batch_size)")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	olderThan := reconcileOlderThan
	if olderThan <= 0 {
		olderThan = a.cfg.Reconcile.StaleAfter
	}
	limit := reconcileLimit
	if limit <= 0 {
		limit = a.cfg.Reconcile.BatchSize
	}

	log := logger.Component(a.log, "sweep")
	sweep := func(ctx context.Context) error {
		_, err := a.payments.ReconcileStale(ctx, olderThan, limit)
		return err
	}

	if !reconcileWorker {
		return runJob(cmd.Context(), log, sweep)
	}

	interval := a.cfg.Reconcile.SweepInterval
	if interval <= 0 {
		return fmt.Errorf("reconcile.sweep_interval must be positive, got %s", interval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("sweep worker started")
	_ = runJob(ctx, log, sweep)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweep worker shutdown requested")
			return nil
		case <-ticker.C:
			_ = runJob(ctx, log, sweep)
		}
	}
}

func runJob(ctx context.Context, log zerolog.Logger, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Dur("latency", time.Since(start)).Msg("sweep failed")
		return err
	}
	log.Info().Dur("latency", time.Since(start)).Msg("sweep completed")
	return nil
}
