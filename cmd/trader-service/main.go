package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// @title Stock Trader Operations API
// @version 1.0
// @description Read-only view of tracked positions and their lifecycle events.
// @BasePath /api/v1
func main() {
	rootCmd := &cobra.Command{
		Use:   "trader-service",
		Short: "Position lifecycle controller",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-trader.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd, syncPositionsCmd, unlockCanSellCmd, healthcheckCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing trader-service CLI: %s\n", err)
		os.Exit(1)
	}
}
