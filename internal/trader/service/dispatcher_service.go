package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/internal/trader/strategy"
	"golang-stock-trader/pkg/common"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"
	"golang-stock-trader/pkg/utils"
)

const persistRetryDelay = 250 * time.Millisecond

// RoundResult summarises one pass over the eligible rows.
type RoundResult struct {
	BuyAllowed bool
	Loaded     int
	Evaluated  int
	Trades     int
	Errors     int
}

// DispatcherService is the single-worker control loop. Exactly one symbol is evaluated
// at a time, so a record never sees two concurrent mutations.
type DispatcherService interface {
	// Run loops until ctx is cancelled. It never returns on per-symbol or per-round failures.
	Run(ctx context.Context) error
	RunRound(ctx context.Context) (RoundResult, error)
}

type dispatcherService struct {
	cfg                       *config.Config
	stockOperationsRepository repository.StockOperationsRepository
	stockPricesRepository     repository.StockPricesRepository
	quoteService              QuoteService
	orderService              OrderService
	buyGate                   BuyGate
	tradingHours              *TradingHours
	registry                  *strategy.Registry
	events                    EventRecorder
	log                       *logger.Logger
	metrics                   *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewDispatcherService(
	cfg *config.Config,
	stockOperationsRepository repository.StockOperationsRepository,
	stockPricesRepository repository.StockPricesRepository,
	quoteService QuoteService,
	orderService OrderService,
	buyGate BuyGate,
	tradingHours *TradingHours,
	registry *strategy.Registry,
	events EventRecorder,
	log *logger.Logger,
	m *metrics.Metrics,
) DispatcherService {
	return &dispatcherService{
		cfg:                       cfg,
		stockOperationsRepository: stockOperationsRepository,
		stockPricesRepository:     stockPricesRepository,
		quoteService:              quoteService,
		orderService:              orderService,
		buyGate:                   buyGate,
		tradingHours:              tradingHours,
		registry:                  registry,
		events:                    events,
		log:                       log,
		metrics:                   m,
		now:                       time.Now,
		sleep:                     utils.SleepContext,
	}
}

func (s *dispatcherService) Run(ctx context.Context) error {
	d := s.cfg.Dispatcher
	s.log.InfoContext(ctx, "Dispatcher started",
		logger.StringField("trade_env", s.cfg.Trading.Env),
		logger.StringField("timezone", s.cfg.TradingHours.Timezone),
	)

	for {
		if ctx.Err() != nil {
			s.log.Info("Dispatcher stopped")
			return nil
		}

		if !s.tradingHours.IsOpen(s.now()) {
			s.log.DebugContext(ctx, "Outside trading hours", logger.DurationField("sleep", d.OffHoursSleep))
			s.sleep(ctx, d.OffHoursSleep)
			continue
		}

		result, err := s.RunRound(ctx)
		if err != nil {
			backoff := utils.RandomBetween(d.ErrorBackoffMin, d.ErrorBackoffMax)
			s.log.ErrorContext(ctx, "Round failed, backing off",
				logger.ErrorField(err),
				logger.DurationField("backoff", backoff),
			)
			if s.metrics != nil {
				s.metrics.UpstreamErrors.WithLabelValues("round").Inc()
			}
			s.sleep(ctx, backoff)
			continue
		}

		s.log.DebugContext(ctx, "Round completed",
			logger.BoolField("buy_allowed", result.BuyAllowed),
			logger.IntField("loaded", result.Loaded),
			logger.IntField("evaluated", result.Evaluated),
			logger.IntField("trades", result.Trades),
			logger.IntField("errors", result.Errors),
		)
		s.sleep(ctx, utils.Jitter(d.RoundDelay, d.RoundJitter))
	}
}

func (s *dispatcherService) RunRound(ctx context.Context) (RoundResult, error) {
	var result RoundResult

	if err := s.stockOperationsRepository.Ping(ctx); err != nil {
		return result, fmt.Errorf("position store unreachable: %w", err)
	}

	buyAllowed, _ := s.buyGate.Refresh(ctx, false)
	result.BuyAllowed = buyAllowed

	operations, err := s.stockOperationsRepository.GetEligible(ctx, dto.GetEligibleParam{
		BuyAllowed:    buyAllowed,
		StrategyTypes: s.registry.Types(),
	})
	if err != nil {
		return result, fmt.Errorf("load eligible positions: %w", err)
	}
	result.Loaded = len(operations)

	for i, op := range operations {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && !s.sleep(ctx, utils.Jitter(s.cfg.Dispatcher.SymbolDelay, s.cfg.Dispatcher.SymbolJitter)) {
			break
		}

		traded, err := s.evaluate(ctx, op, buyAllowed)
		result.Evaluated++
		if err != nil {
			result.Errors++
			s.log.WarnContext(ctx, "Symbol evaluation failed",
				logger.StringField("symbol", op.StockCode),
				logger.StringField("strategy_type", string(op.StockType)),
				logger.ErrorField(err),
			)
		}
		if traded {
			result.Trades++
			buyAllowed, _ = s.buyGate.Refresh(ctx, true)
		}
	}

	if s.metrics != nil {
		s.metrics.Rounds.Inc()
	}
	return result, nil
}

// evaluate runs one symbol to completion even if shutdown starts meanwhile. The evaluation
// budget covers quotes and orders; writes after a fill get their own deadline.
func (s *dispatcherService) evaluate(ctx context.Context, op entity.StockOperation, buyAllowed bool) (bool, error) {
	evalCtx := context.WithoutCancel(ctx)
	if s.cfg.Dispatcher.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(evalCtx, s.cfg.Dispatcher.EvaluationTimeout)
		defer cancel()
	}
	evalCtx = logger.WithContextFields(evalCtx,
		logger.StringField("symbol", op.StockCode),
		logger.StringField("strategy_type", string(op.StockType)),
	)

	strat, ok := s.registry.Get(op.StockType)
	if !ok {
		return false, fmt.Errorf("unknown strategy type %q", op.StockType)
	}

	if op.Bought() {
		if !op.SellEnabled() {
			return false, nil
		}
		return s.evaluateSell(evalCtx, strat, op)
	}
	if !buyAllowed {
		return false, nil
	}
	return s.evaluateBuy(evalCtx, strat, op)
}

func (s *dispatcherService) evaluateBuy(ctx context.Context, strat strategy.Strategy, op entity.StockOperation) (bool, error) {
	quote, err := s.quoteService.GetQuote(ctx, op.StockCode)
	if err != nil {
		return false, err
	}

	now := s.now()
	decision := strat.EvaluateBuy(strategy.BuyInput{
		Position:    op,
		Quote:       *quote,
		BuyingPower: s.buyGate.BuyingPower(),
		Now:         now,
	})
	s.countDecision(strat, "buy_"+decision.Reason)
	if !decision.Fire {
		s.log.DebugContext(ctx, "Buy skipped",
			logger.StringField("decision", "SKIP"),
			logger.StringField("reason", decision.Reason),
			logger.Float64Field("price", quote.Price),
			logger.Float64Field("trigger_price", op.Trigger()),
			logger.Float64Field("day_change_pct", decision.DayChangePct),
		)
		return false, nil
	}

	s.log.InfoContext(ctx, "Buy signal",
		logger.StringField("decision", "BUY"),
		logger.Float64Field("price", quote.Price),
		logger.Float64Field("trigger_price", op.Trigger()),
		logger.Float64Field("day_change_pct", decision.DayChangePct),
		logger.Float64Field("notional", decision.TargetNotional),
	)

	fill, err := s.orderService.BuyNotional(ctx, op.StockCode, decision.TargetNotional, quote.Price, NewClientOrderID(op, "BUY"))
	if err != nil {
		if isRejection(err) {
			s.recordRejection(ctx, op, common.SideBuy, "BUY", quote.Price, err)
		}
		return false, err
	}

	intent := decision.Intent
	if fill.UsedShares {
		intent += fmt.Sprintf(" (qty=%d)", fill.Qty)
	}
	stopLoss := strategy.InitialStopLoss(op.Trigger(), fill.Price, s.cfg.Strategy.InitialStopRatio)
	mutation := strategy.EntryMutation(fill.Qty, fill.Price, stopLoss, s.cfg.Strategy.SellEligibleOnEntry, strategy.OrderAudit{
		Side:    common.SideBuy,
		Time:    now,
		OrderID: fill.OrderID,
		Intent:  strategy.TruncateIntent(intent, s.cfg.Strategy.IntentMaxLen),
	})
	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.persist(writeCtx, op, mutation); err != nil {
		s.log.ErrorContext(ctx, "Buy filled but position not persisted", logger.StringField("order_id", fill.OrderID), logger.ErrorField(err))
		return true, err
	}

	s.log.InfoContext(ctx, "Position opened",
		logger.StringField("decision", "ENTRY"),
		logger.Int64Field("qty", fill.Qty),
		logger.Float64Field("cost_price", fill.Price),
		logger.BoolField("fill_price_known", fill.PriceKnown),
		logger.Float64Field("stop_loss_price", stopLoss),
		logger.StringField("order_id", fill.OrderID),
	)
	s.events.Record(writeCtx, entity.PositionEvent{
		StockCode: op.StockCode,
		StockType: op.StockType,
		Event:     entity.PositionEventEntry,
		Price:     fill.Price,
		Qty:       fill.Qty,
		OrderID:   fill.OrderID,
		Reason:    decision.Reason,
	}, map[string]interface{}{
		"trigger_price":   op.Trigger(),
		"quote_price":     quote.Price,
		"previous_close":  quote.PreviousClose,
		"notional":        decision.TargetNotional,
		"used_shares":     fill.UsedShares,
		"stop_loss_price": stopLoss,
	})
	return true, nil
}

func (s *dispatcherService) evaluateSell(ctx context.Context, strat strategy.Strategy, op entity.StockOperation) (bool, error) {
	quote, err := s.quoteService.GetQuote(ctx, op.StockCode)
	if err != nil {
		return false, err
	}

	var closes []float64
	if n := strat.ClosesLookback(); n > 0 {
		closes, err = s.stockPricesRepository.RecentCloses(ctx, op.StockCode, n)
		if err != nil {
			// hard stop and the ladder still run without closes
			s.log.WarnContext(ctx, "Failed to load recent closes", logger.ErrorField(err))
			closes = nil
		}
	}

	baseCost := op.Cost()
	pos := op
	traded := false
	// each pass fires at most one stage, so the ladder bounds the loop
	maxPasses := len(s.cfg.Strategy.Stages) + 3

	for pass := 0; pass < maxPasses; pass++ {
		decision := strat.EvaluateSell(strategy.SellInput{
			Position:  pos,
			Quote:     *quote,
			BaseCost:  baseCost,
			Closes:    closes,
			FirstPass: pass == 0,
		})
		s.countDecision(strat, decision.Action.String())

		switch decision.Action {
		case strategy.SellActionNone:
			s.log.DebugContext(ctx, "Hold",
				logger.StringField("decision", "HOLD"),
				logger.StringField("reason", decision.Reason),
				logger.IntField("stage", pos.CurrentStage()),
				logger.Float64Field("price", quote.Price),
				logger.Float64Field("up_pct", decision.UpPct),
				logger.Float64Field("stop_loss_price", pos.StopLoss()),
			)
			return traded, nil

		case strategy.SellActionReseedStop:
			if err := s.stockOperationsRepository.Update(ctx, pos.StockCode, pos.StockType, strategy.ReseedMutation(decision.StopLoss)); err != nil {
				return traded, err
			}
			s.log.WarnContext(ctx, "Stop loss re-seeded",
				logger.StringField("decision", decision.Action.String()),
				logger.Float64Field("stop_loss_price", decision.StopLoss),
			)
			s.events.Record(ctx, s.event(pos, entity.PositionEventStopReseed, decision, quote.Price, 0, ""), nil)

		case strategy.SellActionAdvanceStage:
			if err := s.advanceStage(ctx, pos, decision, quote.Price); err != nil {
				return traded, err
			}
			if decision.HasTrade() {
				traded = true
			}

		case strategy.SellActionHardStop, strategy.SellActionTakeProfit, strategy.SellActionStructuralExit:
			if err := s.exit(ctx, pos, decision, quote.Price); err != nil {
				return traded, err
			}
			return true, nil

		default:
			return traded, fmt.Errorf("unhandled sell action %v", decision.Action)
		}

		if ctx.Err() != nil {
			s.log.WarnContext(ctx, "Evaluation budget exhausted, resuming next round",
				logger.IntField("stage", decision.Stage),
			)
			return traded, nil
		}
		next, err := s.stockOperationsRepository.Get(ctx, pos.StockCode, pos.StockType)
		if err != nil {
			return traded, err
		}
		pos = *next
		if !pos.Bought() || pos.Qty <= 0 {
			return traded, nil
		}
	}
	return traded, nil
}

// advanceStage persists the ratchet first, then submits the optional scale order.
func (s *dispatcherService) advanceStage(ctx context.Context, pos entity.StockOperation, decision strategy.SellDecision, price float64) error {
	if err := s.stockOperationsRepository.Update(ctx, pos.StockCode, pos.StockType, strategy.StageMutation(decision.Stage, decision.StopLoss)); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Stage advanced",
		logger.StringField("decision", decision.Action.String()),
		logger.IntField("stage", decision.Stage),
		logger.Float64Field("price", price),
		logger.Float64Field("up_pct", decision.UpPct),
		logger.Float64Field("stop_loss_price", decision.StopLoss),
		logger.StringField("reason", decision.Reason),
	)
	s.events.Record(ctx, s.event(pos, entity.PositionEventStageAdvance, decision, price, 0, ""), map[string]interface{}{
		"previous_stage":     pos.CurrentStage(),
		"previous_stop_loss": pos.StopLoss(),
		"up_pct":             decision.UpPct,
	})

	if !decision.HasTrade() {
		return nil
	}

	fill, err := s.orderService.SubmitShares(ctx, pos.StockCode, decision.Side, decision.Qty, price, NewClientOrderID(pos, decision.Reason))
	if err != nil {
		if isRejection(err) {
			s.recordRejection(ctx, pos, string(decision.Side), decision.Reason, price, err)
		}
		return err
	}

	audit := strategy.OrderAudit{
		Side:    string(decision.Side),
		Time:    s.now(),
		OrderID: fill.OrderID,
		Intent:  strategy.TruncateIntent(decision.Intent, s.cfg.Strategy.IntentMaxLen),
	}
	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()

	if decision.Side == dto.OrderSideBuy {
		newQty := pos.Qty + fill.Qty
		newCost := strategy.WeightedCost(pos.Qty, pos.Cost(), fill.Qty, fill.Price)
		if err := s.persist(writeCtx, pos, strategy.ScaleInMutation(newQty, newCost, audit)); err != nil {
			s.log.ErrorContext(ctx, "Scale-in filled but position not persisted", logger.StringField("order_id", fill.OrderID), logger.ErrorField(err))
			return err
		}
		s.log.InfoContext(ctx, "Scaled in",
			logger.StringField("decision", "SCALE_IN"),
			logger.Int64Field("qty", fill.Qty),
			logger.Int64Field("new_qty", newQty),
			logger.Float64Field("cost_price", newCost),
			logger.StringField("order_id", fill.OrderID),
		)
		s.events.Record(writeCtx, s.event(pos, entity.PositionEventScaleIn, decision, fill.Price, fill.Qty, fill.OrderID), map[string]interface{}{
			"new_qty":  newQty,
			"new_cost": newCost,
		})
		return nil
	}

	remaining := pos.Qty - fill.Qty
	if err := s.persist(writeCtx, pos, strategy.SellMutation(remaining, audit)); err != nil {
		s.log.ErrorContext(ctx, "Scale-out filled but position not persisted", logger.StringField("order_id", fill.OrderID), logger.ErrorField(err))
		return err
	}
	eventType := entity.PositionEventScaleOut
	if remaining <= 0 {
		eventType = entity.PositionEventExit
	}
	s.log.InfoContext(ctx, "Scaled out",
		logger.StringField("decision", string(eventType)),
		logger.Int64Field("qty", fill.Qty),
		logger.Int64Field("remaining", remaining),
		logger.StringField("order_id", fill.OrderID),
	)
	s.events.Record(writeCtx, s.event(pos, eventType, decision, fill.Price, fill.Qty, fill.OrderID), map[string]interface{}{
		"remaining_qty": remaining,
	})
	return nil
}

// exit liquidates the remaining quantity and returns the record to flat.
func (s *dispatcherService) exit(ctx context.Context, pos entity.StockOperation, decision strategy.SellDecision, price float64) error {
	fill, err := s.orderService.SubmitShares(ctx, pos.StockCode, dto.OrderSideSell, decision.Qty, price, NewClientOrderID(pos, decision.Reason))
	if err != nil {
		if isRejection(err) {
			s.recordRejection(ctx, pos, common.SideSell, decision.Reason, price, err)
		}
		return err
	}

	audit := strategy.OrderAudit{
		Side:    common.SideSell,
		Time:    s.now(),
		OrderID: fill.OrderID,
		Intent:  strategy.TruncateIntent(decision.Intent, s.cfg.Strategy.IntentMaxLen),
	}
	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.persist(writeCtx, pos, strategy.SellMutation(pos.Qty-fill.Qty, audit)); err != nil {
		s.log.ErrorContext(ctx, "Exit filled but position not persisted", logger.StringField("order_id", fill.OrderID), logger.ErrorField(err))
		return err
	}

	s.log.InfoContext(ctx, "Position exited",
		logger.StringField("decision", decision.Action.String()),
		logger.StringField("reason", decision.Reason),
		logger.IntField("stage", decision.Stage),
		logger.Int64Field("qty", fill.Qty),
		logger.Float64Field("price", price),
		logger.Float64Field("cost_price", pos.Cost()),
		logger.StringField("order_id", fill.OrderID),
	)
	s.events.Record(writeCtx, s.event(pos, entity.PositionEventExit, decision, fill.Price, fill.Qty, fill.OrderID), map[string]interface{}{
		"cost_price":  pos.Cost(),
		"up_pct":      decision.UpPct,
		"closes_rule": decision.Action == strategy.SellActionStructuralExit,
	})
	return nil
}

func (s *dispatcherService) recordRejection(ctx context.Context, pos entity.StockOperation, side, tag string, price float64, cause error) {
	intent := fmt.Sprintf("%s:%s_ERR %s %s", pos.StockType, tag, pos.StockCode, cause.Error())
	mutation := strategy.RejectedOrderMutation(strategy.OrderAudit{
		Side:   side,
		Time:   s.now(),
		Intent: strategy.TruncateIntent(intent, s.cfg.Strategy.IntentMaxLen),
	})
	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.persist(writeCtx, pos, mutation); err != nil {
		s.log.WarnContext(ctx, "Failed to record order rejection", logger.ErrorField(err))
	}
	s.events.Record(writeCtx, entity.PositionEvent{
		StockCode: pos.StockCode,
		StockType: pos.StockType,
		Event:     entity.PositionEventOrderRejected,
		Stage:     pos.CurrentStage(),
		Price:     price,
		Reason:    tag + "_ERR",
	}, map[string]interface{}{
		"side":  side,
		"error": cause.Error(),
	})
}

// writeContext detaches record writes that follow a submitted order from the evaluation
// deadline, so an exhausted budget never drops a fill the broker already holds.
func (s *dispatcherService) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Dispatcher.PersistTimeout)
}

// persist applies mutation, retrying transient store failures within ctx.
func (s *dispatcherService) persist(ctx context.Context, pos entity.StockOperation, mutation dto.PositionMutation) error {
	attempts := max(s.cfg.Dispatcher.PersistAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.stockOperationsRepository.Update(ctx, pos.StockCode, pos.StockType, mutation)
		if err == nil || errors.Is(err, dto.ErrPositionNotFound) {
			return err
		}
		if attempt == attempts {
			break
		}
		s.log.WarnContext(ctx, "Position write failed, retrying",
			logger.IntField("attempt", attempt),
			logger.ErrorField(err),
		)
		if !s.sleep(ctx, persistRetryDelay*time.Duration(attempt)) {
			break
		}
	}
	return err
}

func (s *dispatcherService) event(pos entity.StockOperation, t entity.PositionEventType, d strategy.SellDecision, price float64, qty int64, orderID string) entity.PositionEvent {
	return entity.PositionEvent{
		StockCode: pos.StockCode,
		StockType: pos.StockType,
		Event:     t,
		Stage:     d.Stage,
		Price:     price,
		Qty:       qty,
		OrderID:   orderID,
		Reason:    d.Reason,
	}
}

func (s *dispatcherService) countDecision(strat strategy.Strategy, action string) {
	if s.metrics != nil {
		s.metrics.Decisions.WithLabelValues(string(strat.GetType()), action).Inc()
	}
}

// isRejection separates final brokerage refusals from transient failures that leave no trace.
func isRejection(err error) bool {
	return errors.Is(err, dto.ErrOrderRejected) || errors.Is(err, dto.ErrNotFractionable)
}
