package main

import (
	"fmt"

	pgStorage "payment-reconciler/internal/adapter/storage/postgres"
	"payment-reconciler/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		pool, err := pgStorage.NewPool(cmd.Context(), cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		applied, err := pgStorage.Migrate(cmd.Context(), pool, migrations.Files, log)
		if err != nil {
			return err
		}
		log.Info().Int("applied", applied).Msg("migrations complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
