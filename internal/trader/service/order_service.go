package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"

	"github.com/google/uuid"
)

// clientOrderNamespace scopes the name-based client order ids of this service.
var clientOrderNamespace = uuid.MustParse("6f1c2a4e-8d0b-5e57-9a43-3c1f7b2d9e10")

// NewClientOrderID derives a stable id from the record's last order and the action tag, so a
// resubmission after a crash before persistence reuses the id and is refused as a duplicate.
func NewClientOrderID(op entity.StockOperation, tag string) string {
	seed := strings.Join([]string{
		op.StockCode,
		string(op.StockType),
		tag,
		op.LastOrderID.String,
		strconv.FormatInt(op.LastOrderTime.Time.UnixNano(), 10),
	}, "|")
	return uuid.NewSHA1(clientOrderNamespace, []byte(seed)).String()
}

// OrderService applies the caller-side order policy on top of the brokerage adapter.
type OrderService interface {
	GetBuyingPower(ctx context.Context) (float64, error)
	// BuyNotional buys a dollar amount, falling back to whole shares when the asset is not fractionable.
	BuyNotional(ctx context.Context, symbol string, notional, quotePrice float64, clientOrderID string) (*dto.OrderFill, error)
	// SubmitShares trades a whole-share quantity at market.
	SubmitShares(ctx context.Context, symbol string, side dto.OrderSide, qty int64, quotePrice float64, clientOrderID string) (*dto.OrderFill, error)
	// PollFillPrice is best-effort; ok is false when no fill price showed up in time.
	PollFillPrice(ctx context.Context, orderID string) (price, filledQty float64, ok bool)
}

type orderService struct {
	tradingRepository repository.TradingRepository
	pollAttempts      int
	pollInterval      time.Duration
	log               *logger.Logger
	metrics           *metrics.Metrics
}

func NewOrderService(cfg *config.Config, tradingRepository repository.TradingRepository, log *logger.Logger, m *metrics.Metrics) OrderService {
	return &orderService{
		tradingRepository: tradingRepository,
		pollAttempts:      cfg.Fill.PollAttempts,
		pollInterval:      cfg.Fill.PollInterval,
		log:               log,
		metrics:           m,
	}
}

func (s *orderService) GetBuyingPower(ctx context.Context) (float64, error) {
	bp, err := s.tradingRepository.GetBuyingPower(ctx)
	if err != nil {
		s.countUpstreamError("account")
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.BuyingPower.Set(bp)
	}
	return bp, nil
}

func (s *orderService) BuyNotional(ctx context.Context, symbol string, notional, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	order, err := s.submit(ctx, dto.OrderRequest{
		Symbol:        symbol,
		Side:          dto.OrderSideBuy,
		Size:          dto.NotionalSize(notional),
		ClientOrderID: clientOrderID,
	})
	if errors.Is(err, dto.ErrNotFractionable) {
		qty := int64(math.Floor(notional / quotePrice))
		if qty < 1 {
			qty = 1
		}
		s.log.InfoContext(ctx, "Asset not fractionable, resubmitting as shares",
			logger.StringField("symbol", symbol),
			logger.Int64Field("qty", qty),
			logger.Float64Field("notional", notional),
		)
		fill, errShares := s.SubmitShares(ctx, symbol, dto.OrderSideBuy, qty, quotePrice, clientOrderID+"-q")
		if errShares != nil {
			return nil, errShares
		}
		fill.UsedShares = true
		return fill, nil
	}
	if err != nil {
		return nil, err
	}

	fill := &dto.OrderFill{OrderID: order.ID, Notional: notional, Price: quotePrice}
	price, filledQty, ok := s.PollFillPrice(ctx, order.ID)
	if ok {
		fill.Price, fill.PriceKnown = price, true
	}
	fill.Qty = int64(math.Floor(filledQty))
	if fill.Qty < 1 {
		fill.Qty = int64(math.Floor(notional / fill.Price))
	}
	if fill.Qty < 1 {
		fill.Qty = 1
	}
	return fill, nil
}

func (s *orderService) SubmitShares(ctx context.Context, symbol string, side dto.OrderSide, qty int64, quotePrice float64, clientOrderID string) (*dto.OrderFill, error) {
	order, err := s.submit(ctx, dto.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Size:          dto.QtySize(qty),
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return nil, err
	}

	fill := &dto.OrderFill{OrderID: order.ID, Qty: qty, Price: quotePrice, UsedShares: true}
	if price, _, ok := s.PollFillPrice(ctx, order.ID); ok {
		fill.Price, fill.PriceKnown = price, true
	}
	fill.Notional = fill.Price * float64(qty)
	return fill, nil
}

// submit sends one order. A duplicate client id means an earlier attempt reached the broker,
// so that order is looked up and adopted instead.
func (s *orderService) submit(ctx context.Context, req dto.OrderRequest) (*dto.Order, error) {
	order, err := s.tradingRepository.SubmitOrder(ctx, req)
	if errors.Is(err, dto.ErrDuplicateOrder) && req.ClientOrderID != "" {
		existing, errLookup := s.tradingRepository.GetOrderByClientID(ctx, req.ClientOrderID)
		if errLookup != nil {
			s.countOrder(req.Side, "error")
			return nil, fmt.Errorf("recover duplicate %s: %w", req.ClientOrderID, errLookup)
		}
		switch existing.Status {
		case "canceled", "expired", "rejected":
			s.countOrder(req.Side, "rejected")
			return nil, &dto.OrderRejectedError{Reason: "earlier order " + existing.ID + " is " + existing.Status}
		}
		s.log.WarnContext(ctx, "Adopted existing order for duplicate client order id",
			logger.StringField("symbol", req.Symbol),
			logger.StringField("client_order_id", req.ClientOrderID),
			logger.StringField("order_id", existing.ID),
		)
		order, err = existing, nil
	}
	if err != nil {
		if errors.Is(err, dto.ErrOrderRejected) || errors.Is(err, dto.ErrNotFractionable) {
			s.countOrder(req.Side, "rejected")
		} else {
			s.countOrder(req.Side, "error")
			s.countUpstreamError("order")
		}
		return nil, err
	}

	s.countOrder(req.Side, "submitted")
	s.log.InfoContext(ctx, "Order submitted",
		logger.StringField("symbol", req.Symbol),
		logger.StringField("side", string(req.Side)),
		logger.Float64Field("notional", req.Size.Notional),
		logger.Int64Field("qty", req.Size.Qty),
		logger.StringField("order_id", order.ID),
		logger.StringField("client_order_id", req.ClientOrderID),
	)
	return order, nil
}

func (s *orderService) PollFillPrice(ctx context.Context, orderID string) (float64, float64, bool) {
	for attempt := 1; attempt <= s.pollAttempts; attempt++ {
		order, err := s.tradingRepository.GetOrder(ctx, orderID)
		if err == nil && order.FilledAvgPrice > 0 {
			return order.FilledAvgPrice, order.FilledQty, true
		}
		if err != nil {
			s.log.DebugContext(ctx, "Fill poll failed", logger.StringField("order_id", orderID), logger.IntField("attempt", attempt), logger.ErrorField(err))
		}
		if attempt == s.pollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, 0, false
		case <-time.After(s.pollInterval):
		}
	}
	return 0, 0, false
}

func (s *orderService) countOrder(side dto.OrderSide, outcome string) {
	if s.metrics != nil {
		s.metrics.Orders.WithLabelValues(string(side), outcome).Inc()
	}
}

func (s *orderService) countUpstreamError(component string) {
	if s.metrics != nil {
		s.metrics.UpstreamErrors.WithLabelValues(component).Inc()
	}
}
