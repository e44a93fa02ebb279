package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/strategy"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wednesday 10:00 in Los Angeles
var sessionTime = time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)

var risingCloses = []float64{110, 108, 107, 105}

type dispatcherFixture struct {
	store  *fakeStore
	prices *fakePrices
	quotes *fakeQuotes
	orders *fakeOrders
	gate   *stubGate
	events *recordingEvents
	svc    *dispatcherService
}

func newDispatcherFixture(t *testing.T, ops ...entity.StockOperation) *dispatcherFixture {
	t.Helper()
	cfg := testConfig()
	hours, err := NewTradingHours(cfg.TradingHours)
	require.NoError(t, err)

	f := &dispatcherFixture{
		store:  newFakeStore(ops...),
		prices: &fakePrices{closes: map[string][]float64{}},
		quotes: &fakeQuotes{quotes: map[string]dto.Quote{}, errs: map[string]error{}},
		orders: &fakeOrders{},
		gate:   &stubGate{open: true, bp: 10000},
		events: &recordingEvents{},
	}
	svc := NewDispatcherService(cfg, f.store, f.prices, f.quotes, f.orders, f.gate, hours,
		strategy.NewDefaultRegistry(cfg.Strategy), f.events, logger.NewNop(), metrics.New())
	f.svc = svc.(*dispatcherService)
	f.svc.now = func() time.Time { return sessionTime }
	f.svc.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return f
}

func (f *dispatcherFixture) quote(symbol string, price, prevClose float64) {
	f.quotes.quotes[symbol] = dto.Quote{Symbol: symbol, Price: price, PreviousClose: prevClose, Feed: "iex"}
}

func TestDispatcher_EntryOpensPosition(t *testing.T) {
	f := newDispatcherFixture(t, flatOperation("ACME", 50))
	f.quote("ACME", 53, 49)

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RoundResult{BuyAllowed: true, Loaded: 1, Evaluated: 1, Trades: 1}, result)

	require.Len(t, f.orders.calls, 1)
	call := f.orders.calls[0]
	assert.Equal(t, dto.OrderSideBuy, call.side)
	assert.InDelta(t, 900, call.notional, 1e-9)
	assert.NotEmpty(t, call.clientOrderID)

	op := f.store.row("ACME")
	assert.True(t, op.Bought())
	assert.False(t, op.BuyEnabled())
	assert.True(t, op.SellEnabled())
	assert.EqualValues(t, 16, op.Qty)
	assert.InDelta(t, 53, op.Cost(), 1e-9)
	assert.InDelta(t, strategy.InitialStopLoss(50, 53, 0.95), op.StopLoss(), 1e-9)
	assert.Equal(t, 0, op.CurrentStage())
	assert.Equal(t, "buy", op.LastOrderSide.String)
	assert.Equal(t, "ord-1", op.LastOrderID.String)
	assert.True(t, strings.HasPrefix(op.LastOrderIntent.String, "B:BUY px=53.00"))
	assert.LessOrEqual(t, len(op.LastOrderIntent.String), 70)

	assert.Equal(t, []entity.PositionEventType{entity.PositionEventEntry}, f.events.types())
	assert.Equal(t, 1, f.gate.forced, "a trade forces a buying power refresh")
}

func TestDispatcher_ScenarioB_ScaleInRecomputesCost(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 10, 100, 1))
	f.quote("ACME", 111, 105)
	f.prices.closes["ACME"] = risingCloses

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Trades)

	require.Len(t, f.orders.calls, 1)
	assert.Equal(t, dto.OrderSideBuy, f.orders.calls[0].side)
	assert.EqualValues(t, 5, f.orders.calls[0].qty)

	op := f.store.row("ACME")
	assert.Equal(t, 2, op.CurrentStage())
	assert.InDelta(t, 105, op.StopLoss(), 1e-9)
	assert.EqualValues(t, 15, op.Qty)
	assert.InDelta(t, 103.666667, op.Cost(), 1e-6)
	assert.Equal(t, "buy", op.LastOrderSide.String)

	assert.Equal(t, []entity.PositionEventType{
		entity.PositionEventStageAdvance,
		entity.PositionEventScaleIn,
	}, f.events.types())
}

func TestDispatcher_CascadesThroughLadderInOneTick(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 10, 95, 0))
	f.quote("ACME", 141, 135)
	f.prices.closes["ACME"] = risingCloses

	_, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)

	var sides []string
	for _, c := range f.orders.calls {
		sides = append(sides, fmt.Sprintf("%s:%d", c.side, c.qty))
	}
	assert.Equal(t, []string{"buy:5", "buy:7", "sell:6", "sell:6"}, sides)

	op := f.store.row("ACME")
	assert.Equal(t, 8, op.CurrentStage())
	assert.EqualValues(t, 10, op.Qty)
	assert.True(t, op.Bought())

	var stages []int
	for _, e := range f.events.events {
		if e.event.Event == entity.PositionEventStageAdvance {
			stages = append(stages, e.event.Stage)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, stages)
}

func TestDispatcher_HardStopThenReentry(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 9, 95, 2))
	f.quote("ACME", 94, 99)
	f.prices.closes["ACME"] = risingCloses

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Trades)

	require.Len(t, f.orders.calls, 1)
	assert.Equal(t, dto.OrderSideSell, f.orders.calls[0].side)
	assert.EqualValues(t, 9, f.orders.calls[0].qty)

	op := f.store.row("ACME")
	assert.False(t, op.Bought())
	assert.True(t, op.BuyEnabled())
	assert.False(t, op.SellEnabled())
	assert.Zero(t, op.Qty)
	assert.Nil(t, op.StopLossPrice)
	assert.Nil(t, op.Stage)
	assert.Equal(t, "sell", op.LastOrderSide.String)
	assert.Contains(t, op.LastOrderIntent.String, "STOP")
	assert.Equal(t, []entity.PositionEventType{entity.PositionEventExit}, f.events.types())

	// back above trigger on a strong day: the flat record buys again
	f.quote("ACME", 120, 100)
	result, err = f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Trades)

	op = f.store.row("ACME")
	assert.True(t, op.Bought())
	assert.Equal(t, 0, op.CurrentStage())
	assert.Equal(t, "buy", op.LastOrderSide.String)
}

func TestDispatcher_StructuralExitLiquidates(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 10, 95, 3))
	f.quote("ACME", 101, 100)
	f.prices.closes["ACME"] = []float64{9.0, 9.5, 9.8, 9.6}

	_, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)

	require.Len(t, f.orders.calls, 1)
	assert.EqualValues(t, 10, f.orders.calls[0].qty)

	op := f.store.row("ACME")
	assert.False(t, op.Bought())
	assert.Contains(t, op.LastOrderIntent.String, "STAGE10_EXIT")
	require.Len(t, f.events.events, 1)
	assert.Equal(t, strategy.StructuralExitStage, f.events.events[0].event.Stage)
}

func TestDispatcher_ScenarioE_QuoteFailureSkipsOnlyThatSymbol(t *testing.T) {
	failing := flatOperation("AAA", 50)
	f := newDispatcherFixture(t,
		failing,
		flatOperation("BBB", 50),
		openOperation("CCC", 100, 10, 95, 0),
	)
	f.quotes.errs["AAA"] = fmt.Errorf("snapshot AAA: %w", dto.ErrUpstreamError)
	f.quote("BBB", 53, 49)
	f.quote("CCC", 101, 100)
	f.prices.closes["CCC"] = risingCloses

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Loaded)
	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.Trades)

	assert.Equal(t, failing, f.store.row("AAA"))
	assert.True(t, f.store.row("BBB").Bought())
	assert.Equal(t, 0, f.store.row("CCC").CurrentStage())
}

func TestDispatcher_RejectedBuyWritesAuditOnly(t *testing.T) {
	f := newDispatcherFixture(t, flatOperation("ACME", 50))
	f.quote("ACME", 53, 49)
	f.orders.buyErr = &dto.OrderRejectedError{StatusCode: 403, Code: 40310001, Reason: "insufficient buying power"}

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Zero(t, result.Trades)

	op := f.store.row("ACME")
	assert.False(t, op.Bought())
	assert.True(t, op.BuyEnabled())
	assert.Equal(t, "buy", op.LastOrderSide.String)
	assert.False(t, op.LastOrderID.Valid)
	assert.True(t, strings.HasPrefix(op.LastOrderIntent.String, "B:BUY_ERR ACME"), op.LastOrderIntent.String)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, entity.PositionEventOrderRejected, f.events.events[0].event.Event)
	assert.Equal(t, "BUY_ERR", f.events.events[0].event.Reason)

	// the rejection stamp starts the cooldown, so the next round does not retry
	_, err = f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.orders.calls, 1)
}

func TestDispatcher_TransientOrderErrorLeavesRecordUntouched(t *testing.T) {
	original := flatOperation("ACME", 50)
	f := newDispatcherFixture(t, original)
	f.quote("ACME", 53, 49)
	f.orders.buyErr = fmt.Errorf("POST /v2/orders: %w", dto.ErrUpstreamError)

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)

	assert.Equal(t, original, f.store.row("ACME"))
	assert.Zero(t, f.store.updates)
	assert.Empty(t, f.events.events)
}

func TestDispatcher_RejectedExitKeepsPositionOpen(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 9, 95, 2))
	f.quote("ACME", 94, 99)
	f.orders.sharesErr = &dto.OrderRejectedError{StatusCode: 422, Reason: "asset halted"}

	_, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)

	op := f.store.row("ACME")
	assert.True(t, op.Bought())
	assert.EqualValues(t, 9, op.Qty)
	assert.Equal(t, "sell", op.LastOrderSide.String)
	assert.True(t, strings.HasPrefix(op.LastOrderIntent.String, "B:STOP_ERR"), op.LastOrderIntent.String)
	assert.Equal(t, []entity.PositionEventType{entity.PositionEventOrderRejected}, f.events.types())
}

func TestDispatcher_BuyGateClosedOnlyManagesOpenPositions(t *testing.T) {
	locked := openOperation("LOCK", 100, 5, 95, 0)
	locked.CanSell = nil
	f := newDispatcherFixture(t,
		flatOperation("AAA", 50),
		openOperation("CCC", 100, 10, 95, 0),
		locked,
	)
	f.gate.open = false
	f.quote("AAA", 53, 49)
	f.quote("CCC", 101, 100)
	f.quote("LOCK", 50, 100)

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.False(t, result.BuyAllowed)
	assert.Equal(t, 1, result.Loaded)
	assert.Empty(t, f.orders.calls)
}

func TestDispatcher_StoreUnreachableFailsRound(t *testing.T) {
	f := newDispatcherFixture(t, flatOperation("AAA", 50))
	f.store.pingErr = errors.New("connection refused")

	_, err := f.svc.RunRound(context.Background())
	assert.Error(t, err)
	assert.Zero(t, f.gate.refreshes)
}

func TestDispatcher_ClosesFailureStillRunsLadder(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 10, 95, 0))
	f.quote("ACME", 106, 104)
	f.prices.err = errors.New("table missing")

	_, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.row("ACME").CurrentStage())
}

func TestDispatcher_RunSleepsOutsideHoursAndStopsOnCancel(t *testing.T) {
	f := newDispatcherFixture(t, flatOperation("AAA", 50))
	f.svc.now = func() time.Time { return time.Date(2026, 10, 17, 17, 0, 0, 0, time.UTC) } // saturday

	ctx, cancel := context.WithCancel(context.Background())
	sleeps := 0
	f.svc.sleep = func(context.Context, time.Duration) bool {
		sleeps++
		cancel()
		return false
	}

	require.NoError(t, f.svc.Run(ctx))
	assert.Equal(t, 1, sleeps)
	assert.Zero(t, f.gate.refreshes)
}

// deadlineStore fails reads and writes once their context is done, like a real driver.
type deadlineStore struct {
	*fakeStore
	failWrites int
}

func (s *deadlineStore) Get(ctx context.Context, code string, typ entity.StrategyType) (*entity.StockOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStore.Get(ctx, code, typ)
}

func (s *deadlineStore) Update(ctx context.Context, code string, typ entity.StrategyType, m dto.PositionMutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failWrites > 0 {
		s.failWrites--
		return errors.New("connection reset by peer")
	}
	return s.fakeStore.Update(ctx, code, typ, m)
}

// slowFillOrders fills every order but only returns once the caller's deadline has passed,
// the way a fill poll that never sees a terminal status does.
type slowFillOrders struct {
	*fakeOrders
}

func (o slowFillOrders) BuyNotional(ctx context.Context, symbol string, notional, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	fill, err := o.fakeOrders.BuyNotional(ctx, symbol, notional, quotePrice, clientOrderID)
	<-ctx.Done()
	return fill, err
}

func (o slowFillOrders) SubmitShares(ctx context.Context, symbol string, side dto.OrderSide, qty int64, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	fill, err := o.fakeOrders.SubmitShares(ctx, symbol, side, qty, quotePrice, clientOrderID)
	<-ctx.Done()
	return fill, err
}

func withSlowFills(f *dispatcherFixture) *deadlineStore {
	store := &deadlineStore{fakeStore: f.store}
	f.svc.stockOperationsRepository = store
	f.svc.orderService = slowFillOrders{fakeOrders: f.orders}
	f.svc.cfg.Dispatcher.EvaluationTimeout = 50 * time.Millisecond
	return store
}

func TestDispatcher_ScaleInPersistedAfterEvaluationDeadline(t *testing.T) {
	f := newDispatcherFixture(t, openOperation("ACME", 100, 10, 100, 1))
	f.quote("ACME", 111, 105)
	f.prices.closes["ACME"] = risingCloses
	withSlowFills(f)

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Trades)
	assert.Equal(t, 0, result.Errors)

	require.Len(t, f.orders.calls, 1)
	assert.EqualValues(t, 5, f.orders.calls[0].qty)

	op := f.store.row("ACME")
	assert.Equal(t, 2, op.CurrentStage())
	assert.EqualValues(t, 15, op.Qty, "broker shares must be recorded")
	assert.InDelta(t, 103.666667, op.Cost(), 1e-6)
	assert.Equal(t, []entity.PositionEventType{
		entity.PositionEventStageAdvance,
		entity.PositionEventScaleIn,
	}, f.events.types())
}

func TestDispatcher_EntryAndExitPersistedAfterEvaluationDeadline(t *testing.T) {
	t.Run("entry", func(t *testing.T) {
		f := newDispatcherFixture(t, flatOperation("ACME", 50))
		f.quote("ACME", 53, 49)
		withSlowFills(f)

		result, err := f.svc.RunRound(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Trades)
		assert.Equal(t, 0, result.Errors)

		op := f.store.row("ACME")
		assert.True(t, op.Bought())
		assert.EqualValues(t, 16, op.Qty)
	})

	t.Run("hard stop", func(t *testing.T) {
		f := newDispatcherFixture(t, openOperation("ACME", 100, 10, 95, 0))
		f.quote("ACME", 94, 99)
		withSlowFills(f)

		result, err := f.svc.RunRound(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Trades)

		op := f.store.row("ACME")
		assert.False(t, op.Bought())
		assert.EqualValues(t, 0, op.Qty)
	})
}

func TestDispatcher_PostFillWriteIsRetried(t *testing.T) {
	f := newDispatcherFixture(t, flatOperation("ACME", 50))
	f.quote("ACME", 53, 49)
	store := &deadlineStore{fakeStore: f.store, failWrites: 2}
	f.svc.stockOperationsRepository = store

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Errors)
	assert.EqualValues(t, 16, f.store.row("ACME").Qty)
	assert.Equal(t, 1, f.store.updates)
}

func TestDispatcher_PostFillWriteGivesUpAfterAttempts(t *testing.T) {
	f := newDispatcherFixture(t, flatOperation("ACME", 50))
	f.quote("ACME", 53, 49)
	store := &deadlineStore{fakeStore: f.store, failWrites: 10}
	f.svc.stockOperationsRepository = store

	result, err := f.svc.RunRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Trades)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 7, store.failWrites, "three attempts were made")
	assert.False(t, f.store.row("ACME").Bought())
	assert.Empty(t, f.events.types(), "no entry event without a persisted record")
}
