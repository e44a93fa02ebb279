package service

import (
	"context"
	"strings"
	"time"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/metrics"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// QuoteService is the Quote Gateway: a global minimum spacing between upstream calls and a
// short per-symbol cache window. It never retries; callers skip the symbol on error.
type QuoteService interface {
	GetQuote(ctx context.Context, symbol string) (*dto.Quote, error)
}

type quoteService struct {
	marketDataRepository repository.MarketDataRepository
	priceCacheRepository repository.PriceCacheRepository
	cache                *cache.Cache
	cacheTTL             time.Duration
	limiter              *rate.Limiter
	log                  *logger.Logger
	metrics              *metrics.Metrics
}

// NewQuoteService wires the gateway. priceCacheRepository may be nil.
func NewQuoteService(
	cfg *config.Config,
	marketDataRepository repository.MarketDataRepository,
	priceCacheRepository repository.PriceCacheRepository,
	log *logger.Logger,
	m *metrics.Metrics,
) QuoteService {
	limit := rate.Inf
	if cfg.Quote.MinInterval > 0 {
		limit = rate.Every(cfg.Quote.MinInterval)
	}
	return &quoteService{
		marketDataRepository: marketDataRepository,
		priceCacheRepository: priceCacheRepository,
		cache:                cache.New(cfg.Quote.CacheTTL, time.Minute),
		cacheTTL:             cfg.Quote.CacheTTL,
		limiter:              rate.NewLimiter(limit, 1),
		log:                  log,
		metrics:              m,
	}
}

func (s *quoteService) GetQuote(ctx context.Context, symbol string) (*dto.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if cached, found := s.cachedQuote(symbol); found {
		if s.metrics != nil {
			s.metrics.QuoteCacheHits.Inc()
		}
		return &cached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	quote, err := s.marketDataRepository.GetSnapshot(ctx, symbol)
	if err != nil {
		if s.metrics != nil {
			s.metrics.UpstreamErrors.WithLabelValues("quote").Inc()
		}
		return nil, err
	}

	if s.cacheTTL > 0 {
		s.cache.Set(symbol, *quote, s.cacheTTL)
	}

	if s.priceCacheRepository != nil {
		if err := s.priceCacheRepository.SetLastPrice(ctx, *quote); err != nil {
			s.log.WarnContext(ctx, "Failed to publish last price", logger.StringField("symbol", symbol), logger.ErrorField(err))
		}
	}

	s.log.DebugContext(ctx, "Quote fetched",
		logger.StringField("symbol", symbol),
		logger.Float64Field("price", quote.Price),
		logger.Float64Field("previous_close", quote.PreviousClose),
		logger.StringField("feed", quote.Feed),
	)
	return quote, nil
}

// cachedQuote is disabled when the window is zero; go-cache would treat zero as no expiry.
func (s *quoteService) cachedQuote(symbol string) (dto.Quote, bool) {
	if s.cacheTTL <= 0 {
		return dto.Quote{}, false
	}
	cached, found := s.cache.Get(symbol)
	if !found {
		return dto.Quote{}, false
	}
	return cached.(dto.Quote), true
}
