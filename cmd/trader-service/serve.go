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

	delivery "golang-stock-trader/internal/trader/delivery/http"
	_ "golang-stock-trader/internal/trader/docs"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/internal/trader/service"
	"golang-stock-trader/internal/trader/strategy"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/redis"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	swagger "github.com/swaggo/echo-swagger"
	"golang.org/x/sync/errgroup"
)

const (
	instanceLockTTL     = 60 * time.Second
	instanceLockRefresh = 20 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the trading loop and the operations API",
	// errors surface as a non-zero exit so a supervisor restarts the service
	SilenceUsage: true,
	RunE:         runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	defer a.close()
	appLogger := a.log
	cfg := a.cfg

	appLogger.Info("Starting Trader Service",
		logger.Field("name", cfg.App.Name),
		logger.StringField("trade_env", cfg.Trading.Env),
	)

	redisClient, err := redis.NewClient(redis.Config{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	lock, err := repository.NewLockRepository(redisClient.Client).Acquire(ctx, cfg.Trading.Env, instanceLockTTL)
	if err != nil {
		appLogger.Fatal("Failed to acquire instance lock", logger.ErrorField(err))
	}
	defer lock.Release()

	priceCacheRepository := repository.NewPriceCacheRepository(redisClient.Client, 10*time.Minute)
	quoteSvc := service.NewQuoteService(cfg, a.marketDataRepository, priceCacheRepository, appLogger, a.metrics)
	orderSvc := service.NewOrderService(cfg, a.tradingRepository, appLogger, a.metrics)
	buyGate := service.NewBuyGate(cfg, orderSvc, appLogger, a.metrics)
	registry := strategy.NewDefaultRegistry(cfg.Strategy)
	dispatcherSvc := service.NewDispatcherService(cfg, a.stockOperationsRepository, a.stockPricesRepository,
		quoteSvc, orderSvc, buyGate, a.tradingHours, registry, a.events, appLogger, a.metrics)
	unlockSvc := service.NewUnlockService(a.stockOperationsRepository, a.events, a.tradingHours, cfg.Unlock.Cron, appLogger)
	querySvc := service.NewPositionQueryService(a.stockOperationsRepository, a.positionEventsRepository)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.API.ReadTimeout
	e.Server.WriteTimeout = cfg.API.WriteTimeout
	apiV1 := e.Group("/api/v1")
	delivery.NewPositionHandler(querySvc, appLogger).RegisterRoutes(apiV1)
	delivery.NewHealthHandler(map[string]delivery.HealthCheck{
		"database": a.db.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}, cfg.Trading.Env, a.metrics, appLogger).RegisterRoutes(e, apiV1)
	e.GET("/swagger/*", swagger.WrapHandler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcherSvc.Run(gctx)
	})

	if !cfg.Strategy.SellEligibleOnEntry {
		g.Go(func() error {
			return unlockSvc.Start(gctx)
		})
	}

	g.Go(func() error {
		if err := repository.KeepAlive(gctx, lock, instanceLockTTL, instanceLockRefresh, appLogger); err != nil {
			return fmt.Errorf("instance lock: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := cfg.API.Address()
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Trader service stopped with error", logger.ErrorField(err))
		return err
	}
	appLogger.Info("Server exiting")
	return nil
}
