package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/logger"

	"github.com/shopspring/decimal"
)

const (
	alpacaCodeNotFractionable = 40310000
	alpacaCodeDuplicateOrder  = 40010001
)

// TradingRepository is the brokerage adapter behind the Execution Gateway.
type TradingRepository interface {
	GetBuyingPower(ctx context.Context) (float64, error)
	SubmitOrder(ctx context.Context, req dto.OrderRequest) (*dto.Order, error)
	GetOrder(ctx context.Context, orderID string) (*dto.Order, error)
	GetOrderByClientID(ctx context.Context, clientOrderID string) (*dto.Order, error)
	ListPositions(ctx context.Context) ([]dto.BrokerPosition, error)
}

type tradingRepository struct {
	client        *alpacaClient
	extendedHours bool
}

func NewTradingRepository(cfg *config.Config, log *logger.Logger) TradingRepository {
	keyID, secret, baseURL := cfg.Credentials()
	return &tradingRepository{
		client: newAlpacaClient("trading", strings.TrimRight(baseURL, "/"), keyID, secret,
			cfg.Alpaca.HTTPTimeout, cfg.Alpaca.MaxRequestPerMinute, log),
		extendedHours: cfg.Alpaca.AllowExtendedHours,
	}
}

func (r *tradingRepository) GetBuyingPower(ctx context.Context) (float64, error) {
	resp, err := r.client.do(ctx, http.MethodGet, "/v2/account", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", dto.ErrAccountUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAlpacaError(resp.Body)
		return 0, fmt.Errorf("%w: status %d: %s", dto.ErrAccountUnavailable, resp.StatusCode, apiErr.Message)
	}

	var account dto.AlpacaAccountResponse
	if err := json.Unmarshal(resp.Body, &account); err != nil {
		return 0, fmt.Errorf("%w: %v", dto.ErrAccountUnavailable, err)
	}

	switch {
	case account.BuyingPower != nil:
		return float64(*account.BuyingPower), nil
	case account.Cash != nil:
		return float64(*account.Cash), nil
	default:
		return 0, fmt.Errorf("%w: account has neither buying_power nor cash", dto.ErrAccountUnavailable)
	}
}

func (r *tradingRepository) SubmitOrder(ctx context.Context, req dto.OrderRequest) (*dto.Order, error) {
	body := dto.AlpacaOrderRequest{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Type:          "market",
		TimeInForce:   "day",
		ExtendedHours: r.extendedHours,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Size.IsNotional() {
		body.Notional = decimal.NewFromFloat(req.Size.Notional).Round(2).StringFixed(2)
		// fractional orders are regular-hours only
		body.ExtendedHours = false
	} else {
		if req.Size.Qty <= 0 {
			return nil, &dto.OrderRejectedError{Reason: "qty must be positive"}
		}
		body.Qty = strconv.FormatInt(req.Size.Qty, 10)
	}

	resp, err := r.client.do(ctx, http.MethodPost, "/v2/orders", body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyOrderError(resp.StatusCode, resp.Body)
	}

	var order dto.AlpacaOrderResponse
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, fmt.Errorf("submit order %s: %w: %v", req.Symbol, dto.ErrUpstreamError, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("submit order %s: %w: response without id", req.Symbol, dto.ErrUpstreamError)
	}
	result := order.ToOrder()
	return &result, nil
}

func (r *tradingRepository) GetOrder(ctx context.Context, orderID string) (*dto.Order, error) {
	return r.getOrder(ctx, "/v2/orders/"+url.PathEscape(orderID))
}

func (r *tradingRepository) GetOrderByClientID(ctx context.Context, clientOrderID string) (*dto.Order, error) {
	return r.getOrder(ctx, "/v2/orders:by_client_order_id?client_order_id="+url.QueryEscape(clientOrderID))
}

func (r *tradingRepository) getOrder(ctx context.Context, path string) (*dto.Order, error) {
	resp, err := r.client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAlpacaError(resp.Body)
		return nil, fmt.Errorf("get order: %w: status %d: %s", dto.ErrUpstreamError, resp.StatusCode, apiErr.Message)
	}

	var order dto.AlpacaOrderResponse
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, fmt.Errorf("get order: %w: %v", dto.ErrUpstreamError, err)
	}
	result := order.ToOrder()
	return &result, nil
}

func (r *tradingRepository) ListPositions(ctx context.Context) ([]dto.BrokerPosition, error) {
	resp, err := r.client.do(ctx, http.MethodGet, "/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAlpacaError(resp.Body)
		return nil, fmt.Errorf("list positions: %w: status %d: %s", dto.ErrUpstreamError, resp.StatusCode, apiErr.Message)
	}

	var raw []dto.AlpacaPositionResponse
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("list positions: %w: %v", dto.ErrUpstreamError, err)
	}

	positions := make([]dto.BrokerPosition, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, dto.BrokerPosition{
			Symbol:        strings.ToUpper(p.Symbol),
			Qty:           float64(p.Qty),
			AvgEntryPrice: float64(p.AvgEntryPrice),
		})
	}
	return positions, nil
}

// classifyOrderError maps a non-OK order response onto the gateway's error taxonomy.
func classifyOrderError(statusCode int, body []byte) error {
	apiErr := decodeAlpacaError(body)
	msg := strings.ToLower(apiErr.Message)

	switch {
	case apiErr.Code == alpacaCodeNotFractionable || strings.Contains(msg, "not fractionable"):
		return fmt.Errorf("%w: %s", dto.ErrNotFractionable, apiErr.Message)
	case apiErr.Code == alpacaCodeDuplicateOrder || strings.Contains(msg, "client_order_id must be unique"):
		return fmt.Errorf("%w: %s", dto.ErrDuplicateOrder, apiErr.Message)
	}

	return &dto.OrderRejectedError{
		StatusCode: statusCode,
		Code:       apiErr.Code,
		Reason:     apiErr.Message,
	}
}

// IsOrderRejected reports whether err is a final brokerage rejection rather than a transient failure.
func IsOrderRejected(err error) bool {
	var rejected *dto.OrderRejectedError
	return errors.As(err, &rejected)
}
