package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/logger"
)

// MarketDataRepository fetches raw snapshots. Spacing and caching live in the quote service.
type MarketDataRepository interface {
	GetSnapshot(ctx context.Context, symbol string) (*dto.Quote, error)
}

type marketDataRepository struct {
	client *alpacaClient
	feed   string
}

func NewMarketDataRepository(cfg *config.Config, log *logger.Logger) MarketDataRepository {
	keyID, secret, _ := cfg.Credentials()
	return &marketDataRepository{
		client: newAlpacaClient("market-data", strings.TrimRight(cfg.Alpaca.DataBaseURL, "/"), keyID, secret,
			cfg.Alpaca.HTTPTimeout, cfg.Alpaca.MaxRequestPerMinute, log),
		feed: cfg.Alpaca.DataFeed,
	}
}

func (r *marketDataRepository) GetSnapshot(ctx context.Context, symbol string) (*dto.Quote, error) {
	path := fmt.Sprintf("/v2/stocks/%s/snapshot", url.PathEscape(symbol))
	if r.feed != "" {
		path += "?feed=" + url.QueryEscape(r.feed)
	}

	resp, err := r.client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAlpacaError(resp.Body)
		return nil, fmt.Errorf("snapshot %s: %w: status %d: %s", symbol, dto.ErrUpstreamError, resp.StatusCode, apiErr.Message)
	}

	var snapshot dto.SnapshotResponse
	if err := json.Unmarshal(resp.Body, &snapshot); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", symbol, dto.ErrUpstreamError, err)
	}

	quote, err := ParseSnapshot(symbol, snapshot)
	if err != nil {
		return nil, err
	}
	quote.Feed = r.feed
	quote.FetchedAt = time.Now()
	return quote, nil
}

// ParseSnapshot derives price from the last trade, falling back to the bid/ask midpoint,
// and takes the previous close from the prior daily bar.
func ParseSnapshot(symbol string, snapshot dto.SnapshotResponse) (*dto.Quote, error) {
	var price float64
	if snapshot.LatestTrade != nil && snapshot.LatestTrade.Price > 0 {
		price = snapshot.LatestTrade.Price
	} else if snapshot.LatestQuote != nil && snapshot.LatestQuote.BidPrice > 0 && snapshot.LatestQuote.AskPrice > 0 {
		price = (snapshot.LatestQuote.BidPrice + snapshot.LatestQuote.AskPrice) / 2
	}
	if price <= 0 {
		return nil, fmt.Errorf("%s: no trade or quote: %w", symbol, dto.ErrQuoteUnavailable)
	}

	if snapshot.PrevDailyBar == nil || snapshot.PrevDailyBar.Close <= 0 {
		return nil, fmt.Errorf("%s: no previous close: %w", symbol, dto.ErrQuoteUnavailable)
	}

	return &dto.Quote{
		Symbol:        symbol,
		Price:         price,
		PreviousClose: snapshot.PrevDailyBar.Close,
	}, nil
}
