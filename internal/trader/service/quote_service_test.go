package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQuoteService_CachesWithinWindow(t *testing.T) {
	md := new(mockMarketDataRepository)
	md.On("GetSnapshot", mock.Anything, "AAPL").
		Return(dto.Quote{Symbol: "AAPL", Price: 110, PreviousClose: 100}, nil).Once()
	pc := new(mockPriceCacheRepository)
	pc.On("SetLastPrice", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	m := metrics.New()
	svc := NewQuoteService(testConfig(), md, pc, logger.NewNop(), m)

	first, err := svc.GetQuote(context.Background(), " aapl ")
	require.NoError(t, err)
	second, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, first.Price, second.Price)
	assert.InDelta(t, 1, testutil.ToFloat64(m.QuoteCacheHits), 1e-9)
	md.AssertExpectations(t)
	pc.AssertExpectations(t)
}

func TestQuoteService_ZeroWindowDisablesCache(t *testing.T) {
	md := new(mockMarketDataRepository)
	md.On("GetSnapshot", mock.Anything, "AAPL").Return(dto.Quote{Symbol: "AAPL", Price: 110, PreviousClose: 100}, nil)

	cfg := testConfig()
	cfg.Quote.CacheTTL = 0
	svc := NewQuoteService(cfg, md, nil, logger.NewNop(), nil)

	for i := 0; i < 3; i++ {
		_, err := svc.GetQuote(context.Background(), "AAPL")
		require.NoError(t, err)
	}
	md.AssertNumberOfCalls(t, "GetSnapshot", 3)
}

func TestQuoteService_ErrorsAreNotCached(t *testing.T) {
	md := new(mockMarketDataRepository)
	md.On("GetSnapshot", mock.Anything, "AAPL").Return(nil, dto.ErrUpstreamError).Once()
	md.On("GetSnapshot", mock.Anything, "AAPL").Return(dto.Quote{Symbol: "AAPL", Price: 110, PreviousClose: 100}, nil).Once()

	m := metrics.New()
	svc := NewQuoteService(testConfig(), md, nil, logger.NewNop(), m)

	_, err := svc.GetQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, dto.ErrUpstreamError)
	assert.InDelta(t, 1, testutil.ToFloat64(m.UpstreamErrors.WithLabelValues("quote")), 1e-9)

	q, err := svc.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 110, q.Price, 1e-9)
}

func TestQuoteService_SpacesUpstreamCalls(t *testing.T) {
	md := new(mockMarketDataRepository)
	md.On("GetSnapshot", mock.Anything, mock.Anything).Return(dto.Quote{Price: 1, PreviousClose: 1}, nil)

	cfg := testConfig()
	cfg.Quote.MinInterval = 40 * time.Millisecond
	svc := NewQuoteService(cfg, md, nil, logger.NewNop(), nil)

	start := time.Now()
	for _, symbol := range []string{"A", "B", "C"} {
		_, err := svc.GetQuote(context.Background(), symbol)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestQuoteService_CancelledWhileWaiting(t *testing.T) {
	md := new(mockMarketDataRepository)
	md.On("GetSnapshot", mock.Anything, mock.Anything).Return(dto.Quote{Price: 1, PreviousClose: 1}, nil)

	cfg := testConfig()
	cfg.Quote.MinInterval = time.Hour
	svc := NewQuoteService(cfg, md, nil, logger.NewNop(), nil)

	_, err := svc.GetQuote(context.Background(), "A")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.GetQuote(ctx, "B")
	assert.Error(t, err)
	md.AssertNumberOfCalls(t, "GetSnapshot", 1)
}
