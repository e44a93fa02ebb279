package main

import (
	"log"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/internal/trader/service"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"
	"golang-stock-trader/pkg/postgres"
	"golang-stock-trader/pkg/telegram"
)

// app holds the dependencies shared by every sub-command.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *postgres.DB
	metrics  *metrics.Metrics
	notifier telegram.Notifier

	stockOperationsRepository repository.StockOperationsRepository
	stockPricesRepository     repository.StockPricesRepository
	positionEventsRepository  repository.PositionEventsRepository
	tradingRepository         repository.TradingRepository
	marketDataRepository      repository.MarketDataRepository

	tradingHours *service.TradingHours
	events       service.EventRecorder
}

// newApp loads and validates configuration and opens the store. Any failure is fatal.
func newApp() *app {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", logger.ErrorField(err))
	}

	db, err := postgres.NewDB(postgresConfig(cfg))
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	tradingHours, err := service.NewTradingHours(cfg.TradingHours)
	if err != nil {
		appLogger.Fatal("Invalid trading hours", logger.ErrorField(err))
	}

	notifier := telegram.NewNoop()
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Error("Failed to initialize telegram notifier, notifications disabled", logger.ErrorField(err))
			notifier = telegram.NewNoop()
		}
	}

	a := &app{
		cfg:                       cfg,
		log:                       appLogger,
		db:                        db,
		metrics:                   metrics.New(),
		notifier:                  notifier,
		stockOperationsRepository: repository.NewStockOperationsRepository(db.DB),
		stockPricesRepository:     repository.NewStockPricesRepository(db.DB),
		positionEventsRepository:  repository.NewPositionEventsRepository(db.DB),
		tradingRepository:         repository.NewTradingRepository(cfg, appLogger),
		marketDataRepository:      repository.NewMarketDataRepository(cfg, appLogger),
		tradingHours:              tradingHours,
	}
	a.events = service.NewEventRecorder(a.positionEventsRepository, notifier, cfg.Trading.Env, appLogger)
	return a
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", logger.ErrorField(err))
	}
	_ = a.log.Sync()
}

func postgresConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
}
