package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang-stock-trader/internal/trader/service"
	"golang-stock-trader/pkg/logger"

	"github.com/spf13/cobra"
)

var unlockCanSellCmd = &cobra.Command{
	Use:   "unlock-can-sell",
	Short: "Enables selling for positions opened before today's session",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp()
		defer a.close()

		unlockSvc := service.NewUnlockService(a.stockOperationsRepository, a.events, a.tradingHours, a.cfg.Unlock.Cron, a.log)
		n, err := unlockSvc.UnlockSellable(ctx)
		if err != nil {
			a.log.Fatal("Failed to unlock sell eligibility", logger.ErrorField(err))
		}
		a.log.Info("Unlock finished", logger.IntField("rows", n))
	},
}
