package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang-stock-trader/internal/trader/service"
	"golang-stock-trader/pkg/logger"

	"github.com/spf13/cobra"
)

var syncPositionsCmd = &cobra.Command{
	Use:   "sync-positions",
	Short: "Copies open brokerage positions into the position table",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp()
		defer a.close()

		syncSvc := service.NewSyncService(a.cfg, a.tradingRepository, a.stockOperationsRepository, a.events, a.notifier, a.log)
		result, err := syncSvc.SyncPositions(ctx)
		if err != nil {
			a.log.Fatal("Failed to sync positions", logger.ErrorField(err))
		}
		a.log.Info("Positions synced",
			logger.IntField("synced", result.Synced),
			logger.IntField("skipped", result.Skipped),
			logger.StringField("unmatched", strings.Join(result.Unmatched, ",")),
		)
	},
}
