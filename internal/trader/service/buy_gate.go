package service

import (
	"context"
	"sync"
	"time"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"
)

// BuyGate is the account-level switch that disables entries while buying power sits below a floor.
// The balance is refreshed at most once per interval unless a trade forces it.
type BuyGate interface {
	// Refresh re-reads buying power when due (or when force is set) and reports whether entries are allowed.
	Refresh(ctx context.Context, force bool) (open bool, buyingPower float64)
	Invalidate()
	BuyingPower() float64
}

type buyGate struct {
	orderService OrderService
	floor        float64
	interval     time.Duration
	now          func() time.Time
	log          *logger.Logger
	metrics      *metrics.Metrics

	mu          sync.Mutex
	checkedAt   time.Time
	buyingPower float64
	open        bool
	stale       bool
}

func NewBuyGate(cfg *config.Config, orderService OrderService, log *logger.Logger, m *metrics.Metrics) BuyGate {
	return &buyGate{
		orderService: orderService,
		floor:        cfg.Dispatcher.BuyGateFloor,
		interval:     cfg.Dispatcher.BuyGateRefresh,
		now:          time.Now,
		log:          log,
		metrics:      m,
		stale:        true,
	}
}

func (g *buyGate) Refresh(ctx context.Context, force bool) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !force && !g.stale && now.Sub(g.checkedAt) < g.interval {
		return g.open, g.buyingPower
	}

	bp, err := g.orderService.GetBuyingPower(ctx)
	if err != nil {
		// keep the last known balance; retry on the next refresh
		g.log.WarnContext(ctx, "Failed to refresh buying power, using cached value",
			logger.Float64Field("cached_buying_power", g.buyingPower),
			logger.ErrorField(err),
		)
		return g.open, g.buyingPower
	}

	wasOpen := g.open
	g.buyingPower = bp
	g.open = bp >= g.floor
	g.checkedAt = now
	g.stale = false

	if g.metrics != nil {
		if g.open {
			g.metrics.BuyGateOpen.Set(1)
		} else {
			g.metrics.BuyGateOpen.Set(0)
		}
	}
	if wasOpen != g.open {
		g.log.InfoContext(ctx, "Buy gate changed",
			logger.BoolField("open", g.open),
			logger.Float64Field("buying_power", bp),
			logger.Float64Field("floor", g.floor),
		)
	}
	return g.open, g.buyingPower
}

// Invalidate makes the next Refresh hit the brokerage.
func (g *buyGate) Invalidate() {
	g.mu.Lock()
	g.stale = true
	g.mu.Unlock()
}

func (g *buyGate) BuyingPower() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buyingPower
}
