package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpHandler "payment-reconciler/internal/adapter/http/handler"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     a.payments,
		IPNSvc:         a.ipns,
		ReportingSvc:   a.reporting,
		TokenSvc:       a.tokens,
		RateLimitStore: a.rateLimits,
		HealthCheckers: a.healthChecks,
		AuditSvc:       a.audit,
		SweepAge:       a.cfg.Reconcile.StaleAfter,
		SweepLimit:     a.cfg.Reconcile.BatchSize,
		Mode:           a.cfg.Server.Mode,
		Logger:         a.log,
	})

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", addr).Str("mode", a.cfg.Server.Mode).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Server forced to shutdown")
	}
	a.log.Info().Msg("Server exited")
	return nil
}
