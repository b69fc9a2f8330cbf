package main

import (
	"encoding/json"
	"fmt"
	"os"

	"payment-reconciler/internal/service"

	"github.com/spf13/cobra"
)

var ipnType string

var ipnCmd = &cobra.Command{
	Use:   "ipn",
	Short: "Manage push-notification endpoints at the gateway",
}

var ipnRegisterCmd = &cobra.Command{
	Use:   "register [url]",
	Short: "Register an IPN URL (default pesapal.ipn_url) and print its id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		url := cfg.Pesapal.IPNURL
		if len(args) == 1 {
			url = args[0]
		}
		if url == "" {
			return fmt.Errorf("no URL given and pesapal.ipn_url is empty")
		}

		svc := service.NewIPNService(newGateway(cfg, log), log)
		reg, err := svc.Register(cmd.Context(), url, ipnType)
		if err != nil {
			return err
		}
		return printJSON(reg)
	},
}

var ipnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List IPN URLs registered for these credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		regs, err := service.NewIPNService(newGateway(cfg, log), log).List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(regs)
	},
}

func init() {
	rootCmd.AddCommand(ipnCmd)
	ipnCmd.AddCommand(ipnRegisterCmd, ipnListCmd)
	ipnRegisterCmd.Flags().StringVar(&ipnType, "type", "GET", "notification method the gateway uses: GET or POST")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
