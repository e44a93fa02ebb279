package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/common"
	"golang-stock-trader/pkg/utils"

	"github.com/stretchr/testify/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.Trading{Env: common.TradingEnvPaper},
		Quote:   config.Quote{CacheTTL: 2 * time.Second},
		Fill:    config.Fill{PollAttempts: 2, PollInterval: time.Millisecond},
		Strategy: config.Strategy{
			MinUpPct:            0.05,
			Cooldown:            30 * time.Minute,
			TargetNotional:      900,
			MaxNotional:         900,
			MinNotional:         1,
			MinBuyingPower:      1,
			BuyingPowerUseRatio: 0.95,
			InitialStopRatio:    0.95,
			SellEligibleOnEntry: true,
			IntentMaxLen:        70,
			ClosesLookback:      4,
			Stages:              config.DefaultStages(),
		},
		Dispatcher: config.Dispatcher{
			BuyGateFloor:      900,
			BuyGateRefresh:    5 * time.Minute,
			EvaluationTimeout: 5 * time.Second,
			PersistTimeout:    time.Second,
			PersistAttempts:   3,
		},
		TradingHours: config.TradingHours{Timezone: "America/Los_Angeles", Open: "06:30", Close: "13:00"},
		Unlock:       config.Unlock{Cron: "35 6 * * 1-5"},
	}
}

func flatOperation(code string, trigger float64) entity.StockOperation {
	return entity.StockOperation{
		StockCode:    code,
		StockType:    entity.StrategyTypeB,
		TriggerPrice: utils.ToPointer(trigger),
		IsBought:     utils.ToPointer(0),
		CanBuy:       utils.ToPointer(1),
		CanSell:      utils.ToPointer(0),
	}
}

func openOperation(code string, cost float64, qty int64, stop float64, stage int) entity.StockOperation {
	return entity.StockOperation{
		StockCode:     code,
		StockType:     entity.StrategyTypeB,
		TriggerPrice:  utils.ToPointer(cost * 0.98),
		CostPrice:     utils.ToPointer(cost),
		StopLossPrice: utils.ToPointer(stop),
		Stage:         utils.ToPointer(stage),
		Qty:           qty,
		IsBought:      utils.ToPointer(1),
		CanBuy:        utils.ToPointer(0),
		CanSell:       utils.ToPointer(1),
	}
}

// fakeStore is an in-memory Position Store applying mutations the way the SQL store does.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]entity.StockOperation
	updates int
	pingErr error
}

func newFakeStore(ops ...entity.StockOperation) *fakeStore {
	s := &fakeStore{rows: map[string]entity.StockOperation{}}
	for _, op := range ops {
		s.rows[storeKey(op.StockCode, op.StockType)] = op
	}
	return s
}

func storeKey(code string, typ entity.StrategyType) string {
	return code + "/" + string(typ)
}

func (s *fakeStore) sorted() []entity.StockOperation {
	out := make([]entity.StockOperation, 0, len(s.rows))
	for _, op := range s.rows {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		return storeKey(out[i].StockCode, out[i].StockType) < storeKey(out[j].StockCode, out[j].StockType)
	})
	return out
}

func (s *fakeStore) row(code string) entity.StockOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[storeKey(code, entity.StrategyTypeB)]
}

func (s *fakeStore) GetEligible(_ context.Context, param dto.GetEligibleParam) ([]entity.StockOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.StockOperation
	for _, op := range s.sorted() {
		sellable := op.Bought() && op.SellEnabled()
		buyable := param.BuyAllowed && op.BuyEnabled() && !op.Bought()
		if sellable || buyable {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *fakeStore) Get(_ context.Context, code string, typ entity.StrategyType) (*entity.StockOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.rows[storeKey(code, typ)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", code, typ, dto.ErrPositionNotFound)
	}
	return &op, nil
}

func (s *fakeStore) List(_ context.Context, typ *entity.StrategyType) ([]entity.StockOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.StockOperation
	for _, op := range s.sorted() {
		if typ == nil || op.StockType == *typ {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, code string, typ entity.StrategyType, m dto.PositionMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(code, typ)
	op, ok := s.rows[key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", code, typ, dto.ErrPositionNotFound)
	}
	s.rows[key] = m.Apply(op)
	s.updates++
	return nil
}

func (s *fakeStore) UpdateBySymbol(ctx context.Context, code string, m dto.PositionMutation) (int64, error) {
	s.mu.Lock()
	rows := s.sorted()
	s.mu.Unlock()

	var n int64
	for _, op := range rows {
		if op.StockCode == code {
			if err := s.Update(ctx, code, op.StockType, m); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UnlockSell(_ context.Context, _ time.Time) ([]entity.StockOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.StockOperation
	for key, op := range s.rows {
		if op.Bought() && op.Qty > 0 && !op.SellEnabled() {
			op.CanSell = utils.ToPointer(1)
			s.rows[key] = op
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

type fakePrices struct {
	closes map[string][]float64
	err    error
}

func (p *fakePrices) RecentCloses(_ context.Context, code string, limit int) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	c := p.closes[code]
	if len(c) > limit {
		c = c[:limit]
	}
	return c, nil
}

// fakeQuotes serves fixed quotes; a symbol mapped in errs fails instead.
type fakeQuotes struct {
	quotes map[string]dto.Quote
	errs   map[string]error
}

func (q *fakeQuotes) GetQuote(_ context.Context, symbol string) (*dto.Quote, error) {
	if err, ok := q.errs[symbol]; ok {
		return nil, err
	}
	quote, ok := q.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, dto.ErrQuoteUnavailable)
	}
	return &quote, nil
}

type orderCall struct {
	symbol        string
	side          dto.OrderSide
	qty           int64
	notional      float64
	clientOrderID string
}

// fakeOrders fills every order at fillPrice (or the quote when zero).
type fakeOrders struct {
	mu        sync.Mutex
	calls     []orderCall
	fillPrice float64
	buyQty    int64
	buyErr    error
	sharesErr error
}

func (o *fakeOrders) GetBuyingPower(context.Context) (float64, error) { return 10000, nil }

func (o *fakeOrders) BuyNotional(_ context.Context, symbol string, notional, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, orderCall{symbol: symbol, side: dto.OrderSideBuy, notional: notional, clientOrderID: clientOrderID})
	if o.buyErr != nil {
		return nil, o.buyErr
	}
	price := o.price(quotePrice)
	qty := o.buyQty
	if qty == 0 {
		qty = int64(notional / price)
	}
	return &dto.OrderFill{OrderID: fmt.Sprintf("ord-%d", len(o.calls)), Qty: qty, Notional: notional, Price: price, PriceKnown: true}, nil
}

func (o *fakeOrders) SubmitShares(_ context.Context, symbol string, side dto.OrderSide, qty int64, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, orderCall{symbol: symbol, side: side, qty: qty, clientOrderID: clientOrderID})
	if o.sharesErr != nil {
		return nil, o.sharesErr
	}
	price := o.price(quotePrice)
	return &dto.OrderFill{OrderID: fmt.Sprintf("ord-%d", len(o.calls)), Qty: qty, Notional: price * float64(qty), Price: price, PriceKnown: true, UsedShares: true}, nil
}

func (o *fakeOrders) PollFillPrice(context.Context, string) (float64, float64, bool) {
	return 0, 0, false
}

func (o *fakeOrders) price(quotePrice float64) float64 {
	if o.fillPrice > 0 {
		return o.fillPrice
	}
	return quotePrice
}

type stubGate struct {
	open      bool
	bp        float64
	refreshes int
	forced    int
}

func (g *stubGate) Refresh(_ context.Context, force bool) (bool, float64) {
	g.refreshes++
	if force {
		g.forced++
	}
	return g.open, g.bp
}

func (g *stubGate) Invalidate()          {}
func (g *stubGate) BuyingPower() float64 { return g.bp }

type recordedEvent struct {
	event   entity.PositionEvent
	payload map[string]interface{}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) Record(_ context.Context, event entity.PositionEvent, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, payload: payload})
}

func (r *recordingEvents) types() []entity.PositionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.PositionEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event.Event)
	}
	return out
}

type mockTradingRepository struct {
	mock.Mock
}

func (m *mockTradingRepository) GetBuyingPower(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockTradingRepository) SubmitOrder(ctx context.Context, req dto.OrderRequest) (*dto.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.Order), args.Error(1)
}

func (m *mockTradingRepository) GetOrder(ctx context.Context, orderID string) (*dto.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.Order), args.Error(1)
}

func (m *mockTradingRepository) GetOrderByClientID(ctx context.Context, clientOrderID string) (*dto.Order, error) {
	args := m.Called(ctx, clientOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.Order), args.Error(1)
}

func (m *mockTradingRepository) ListPositions(ctx context.Context) ([]dto.BrokerPosition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dto.BrokerPosition), args.Error(1)
}

type mockMarketDataRepository struct {
	mock.Mock
}

func (m *mockMarketDataRepository) GetSnapshot(ctx context.Context, symbol string) (*dto.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	q := args.Get(0).(dto.Quote)
	return &q, args.Error(1)
}

type mockPriceCacheRepository struct {
	mock.Mock
}

func (m *mockPriceCacheRepository) SetLastPrice(ctx context.Context, quote dto.Quote) error {
	return m.Called(ctx, quote).Error(0)
}

func (m *mockPriceCacheRepository) GetLastPrice(ctx context.Context, symbol string) (*dto.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.Quote), args.Error(1)
}

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) GetBuyingPower(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockOrderService) BuyNotional(ctx context.Context, symbol string, notional, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	args := m.Called(ctx, symbol, notional, quotePrice, clientOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.OrderFill), args.Error(1)
}

func (m *mockOrderService) SubmitShares(ctx context.Context, symbol string, side dto.OrderSide, qty int64, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	args := m.Called(ctx, symbol, side, qty, quotePrice, clientOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.OrderFill), args.Error(1)
}

func (m *mockOrderService) PollFillPrice(ctx context.Context, orderID string) (float64, float64, bool) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(float64), args.Get(1).(float64), args.Bool(2)
}

type mockPositionEventsRepository struct {
	mock.Mock
}

func (m *mockPositionEventsRepository) Create(ctx context.Context, event *entity.PositionEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPositionEventsRepository) Get(ctx context.Context, param dto.GetPositionEventsParam) ([]entity.PositionEvent, error) {
	args := m.Called(ctx, param)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.PositionEvent), args.Error(1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) SendMessage(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}
