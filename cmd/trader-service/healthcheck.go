package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"golang-stock-trader/internal/trader/config"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const exitUnhealthy = 2

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Pings the database; exits 0 when healthy and 2 otherwise",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "healthcheck: load config: %v\n", err)
			os.Exit(exitUnhealthy)
		}
		if err := pingDatabase(postgresConfig(cfg).URL()); err != nil {
			fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
			os.Exit(exitUnhealthy)
		}
		fmt.Println("ok")
	},
}

func pingDatabase(url string) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}
