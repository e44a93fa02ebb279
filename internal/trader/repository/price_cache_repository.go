package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/common"

	"github.com/redis/go-redis/v9"
)

// PriceCacheRepository publishes the last observed quote per symbol for other consumers.
type PriceCacheRepository interface {
	SetLastPrice(ctx context.Context, quote dto.Quote) error
	GetLastPrice(ctx context.Context, symbol string) (*dto.Quote, error)
}

type priceCacheRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewPriceCacheRepository(redisClient *redis.Client, ttl time.Duration) PriceCacheRepository {
	return &priceCacheRepository{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func (r *priceCacheRepository) SetLastPrice(ctx context.Context, quote dto.Quote) error {
	key := fmt.Sprintf(common.RedisKeyLastPrice, quote.Symbol)
	redisPipe := r.redisClient.Pipeline()
	redisPipe.HSet(ctx, key, map[string]interface{}{
		"price":          quote.Price,
		"previous_close": quote.PreviousClose,
		"feed":           quote.Feed,
		"timestamp":      quote.FetchedAt.Unix(),
	})
	redisPipe.Expire(ctx, key, r.ttl)
	_, err := redisPipe.Exec(ctx)
	return err
}

// GetLastPrice returns nil without error when nothing is cached.
func (r *priceCacheRepository) GetLastPrice(ctx context.Context, symbol string) (*dto.Quote, error) {
	key := fmt.Sprintf(common.RedisKeyLastPrice, symbol)
	values, err := r.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	quote := &dto.Quote{Symbol: symbol, Feed: values["feed"]}
	if quote.Price, err = strconv.ParseFloat(values["price"], 64); err != nil {
		return nil, fmt.Errorf("parse cached price for %s: %w", symbol, err)
	}
	quote.PreviousClose, _ = strconv.ParseFloat(values["previous_close"], 64)
	if ts, errTs := strconv.ParseInt(values["timestamp"], 10, 64); errTs == nil {
		quote.FetchedAt = time.Unix(ts, 0)
	}
	return quote, nil
}
