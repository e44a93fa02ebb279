package service

import (
	"context"
	"fmt"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/utils"

	"github.com/robfig/cron/v3"
)

// UnlockService enables selling for positions opened on an earlier session when entries
// leave can_sell off.
type UnlockService interface {
	// UnlockSellable flips can_sell on open positions last touched before today's session.
	UnlockSellable(ctx context.Context) (int, error)
	// Start runs UnlockSellable on the cron schedule until ctx is cancelled.
	Start(ctx context.Context) error
}

type unlockService struct {
	stockOperationsRepository repository.StockOperationsRepository
	events                    EventRecorder
	tradingHours              *TradingHours
	cronExpression            string
	cronParser                cron.Parser
	log                       *logger.Logger
	now                       func() time.Time
}

func NewUnlockService(
	stockOperationsRepository repository.StockOperationsRepository,
	events EventRecorder,
	tradingHours *TradingHours,
	cronExpression string,
	log *logger.Logger,
) UnlockService {
	return &unlockService{
		stockOperationsRepository: stockOperationsRepository,
		events:                    events,
		tradingHours:              tradingHours,
		cronExpression:            cronExpression,
		cronParser:                cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:                       log,
		now:                       time.Now,
	}
}

func (s *unlockService) UnlockSellable(ctx context.Context) (int, error) {
	before := s.tradingHours.StartOfDay(s.now())
	unlocked, err := s.stockOperationsRepository.UnlockSell(ctx, before)
	if err != nil {
		return 0, err
	}

	for _, op := range unlocked {
		s.events.Record(ctx, entity.PositionEvent{
			StockCode: op.StockCode,
			StockType: op.StockType,
			Event:     entity.PositionEventSellUnlocked,
			Stage:     op.CurrentStage(),
			Qty:       op.Qty,
			Reason:    "NEXT_SESSION",
		}, nil)
	}

	s.log.InfoContext(ctx, "Sell eligibility unlocked",
		logger.IntField("rows", len(unlocked)),
		logger.Field("before", before),
	)
	return len(unlocked), nil
}

func (s *unlockService) Start(ctx context.Context) error {
	schedule, err := s.cronParser.Parse(s.cronExpression)
	if err != nil {
		return fmt.Errorf("parse unlock cron %q: %w", s.cronExpression, err)
	}

	for {
		now := s.now().In(s.tradingHours.Location())
		next := schedule.Next(now)
		s.log.Debug("Next sell unlock scheduled", logger.Field("next_execution", next))

		if !utils.SleepContext(ctx, next.Sub(now)) {
			s.log.Info("Unlock scheduler stopping")
			return nil
		}
		if _, err := s.UnlockSellable(ctx); err != nil {
			s.log.ErrorContext(ctx, "Failed to unlock sell eligibility", logger.ErrorField(err))
		}
	}
}
