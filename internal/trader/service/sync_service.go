package service

import (
	"context"
	"math"
	"strings"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/internal/trader/strategy"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/telegram"
	"golang-stock-trader/pkg/utils"
)

// SyncResult reports what a broker reconciliation touched.
type SyncResult struct {
	Synced    int      `json:"synced"`
	Skipped   int      `json:"skipped"`
	Unmatched []string `json:"unmatched"`
}

// SyncService copies the brokerage's open positions into the Position Store.
type SyncService interface {
	SyncPositions(ctx context.Context) (*SyncResult, error)
}

type syncService struct {
	cfg                       *config.Config
	tradingRepository         repository.TradingRepository
	stockOperationsRepository repository.StockOperationsRepository
	events                    EventRecorder
	notifier                  telegram.Notifier
	log                       *logger.Logger
}

func NewSyncService(
	cfg *config.Config,
	tradingRepository repository.TradingRepository,
	stockOperationsRepository repository.StockOperationsRepository,
	events EventRecorder,
	notifier telegram.Notifier,
	log *logger.Logger,
) SyncService {
	if notifier == nil {
		notifier = telegram.NewNoop()
	}
	return &syncService{
		cfg:                       cfg,
		tradingRepository:         tradingRepository,
		stockOperationsRepository: stockOperationsRepository,
		events:                    events,
		notifier:                  notifier,
		log:                       log,
	}
}

// SyncPositions sets qty and cost from the broker and marks the rows open and sellable.
// An existing stop is never lowered.
func (s *syncService) SyncPositions(ctx context.Context) (*SyncResult, error) {
	positions, err := s.tradingRepository.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	operations, err := s.stockOperationsRepository.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string][]entity.StockOperation)
	for _, op := range operations {
		code := strings.ToUpper(op.StockCode)
		bySymbol[code] = append(bySymbol[code], op)
	}

	result := &SyncResult{}
	var synced []entity.StockOperation
	for _, p := range positions {
		qty := int64(math.Floor(p.Qty))
		if qty <= 0 || p.AvgEntryPrice <= 0 {
			result.Skipped++
			continue
		}
		rows, ok := bySymbol[p.Symbol]
		if !ok {
			result.Unmatched = append(result.Unmatched, p.Symbol)
			continue
		}

		cost := strategy.RoundPrice(p.AvgEntryPrice)
		for _, op := range rows {
			stop := math.Max(op.StopLoss(), strategy.RoundPrice(cost*s.cfg.Strategy.InitialStopRatio))
			mutation := dto.PositionMutation{
				IsBought:      utils.ToPointer(1),
				CanSell:       utils.ToPointer(1),
				CanBuy:        utils.ToPointer(0),
				Qty:           utils.ToPointer(qty),
				CostPrice:     utils.ToPointer(cost),
				StopLossPrice: utils.ToPointer(stop),
			}
			if op.Stage == nil {
				mutation.Stage = utils.ToPointer(0)
			}
			if err := s.stockOperationsRepository.Update(ctx, op.StockCode, op.StockType, mutation); err != nil {
				s.log.ErrorContext(ctx, "Failed to sync position", logger.StringField("symbol", op.StockCode), logger.ErrorField(err))
				continue
			}
			result.Synced++
			synced = append(synced, mutation.Apply(op))

			s.events.Record(ctx, entity.PositionEvent{
				StockCode: op.StockCode,
				StockType: op.StockType,
				Event:     entity.PositionEventBrokerSync,
				Stage:     op.CurrentStage(),
				Price:     cost,
				Qty:       qty,
				Reason:    "BROKER_SYNC",
			}, map[string]interface{}{
				"broker_qty":         p.Qty,
				"previous_qty":       op.Qty,
				"previous_cost":      op.Cost(),
				"previous_stop_loss": op.StopLoss(),
			})
			s.log.InfoContext(ctx, "Position synced",
				logger.StringField("symbol", op.StockCode),
				logger.StringField("strategy_type", string(op.StockType)),
				logger.Int64Field("qty", qty),
				logger.Float64Field("cost_price", cost),
				logger.Float64Field("stop_loss_price", stop),
			)
		}
	}

	if len(synced) == 0 {
		return result, nil
	}
	for _, msg := range telegram.FormatPositionsForTelegram(synced) {
		if err := s.notifier.SendMessage(ctx, msg); err != nil {
			s.log.WarnContext(ctx, "Failed to send sync summary", logger.ErrorField(err))
			break
		}
	}
	return result, nil
}
