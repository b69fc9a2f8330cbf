package main

import (
	"fmt"
	"time"

	"payment-reconciler/internal/service"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Issue an operator bearer token for the admin API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required")
		}

		tokens := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
		token, expiry, err := tokens.Generate(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiry.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
