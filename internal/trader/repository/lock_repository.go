package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/common"
	"golang-stock-trader/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only if it still carries our token.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshScript extends the lock only if it still carries our token.
const refreshScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// InstanceLock is a held single-instance lock.
type InstanceLock interface {
	Refresh(ctx context.Context) error
	Release()
	Key() string
}

// LockRepository guarantees one dispatcher per trading environment.
type LockRepository interface {
	Acquire(ctx context.Context, env string, ttl time.Duration) (InstanceLock, error)
}

type lockRepository struct {
	redisClient *redis.Client
	unlock      *redis.Script
	refresh     *redis.Script
}

func NewLockRepository(redisClient *redis.Client) LockRepository {
	return &lockRepository{
		redisClient: redisClient,
		unlock:      redis.NewScript(unlockScript),
		refresh:     redis.NewScript(refreshScript),
	}
}

func (r *lockRepository) Acquire(ctx context.Context, env string, ttl time.Duration) (InstanceLock, error) {
	key := fmt.Sprintf(common.RedisKeyInstanceLock, env)
	token := uuid.New().String()

	ok, err := r.redisClient.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, dto.ErrInstanceLocked)
	}

	return &instanceLock{repo: r, key: key, token: token, ttl: ttl}, nil
}

type instanceLock struct {
	repo     *lockRepository
	key      string
	token    string
	ttl      time.Duration
	released bool
}

func (l *instanceLock) Key() string { return l.key }

// Refresh extends the TTL; it fails with ErrInstanceLocked once the lock has been lost.
func (l *instanceLock) Refresh(ctx context.Context) error {
	n, err := l.repo.refresh.Run(ctx, l.repo.redisClient, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s lost: %w", l.key, dto.ErrInstanceLocked)
	}
	return nil
}

// Release is safe to call more than once and ignores the caller's context.
func (l *instanceLock) Release() {
	if l.released {
		return
	}
	l.released = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.repo.unlock.Run(ctx, l.repo.redisClient, []string{l.key}, l.token).Err()
}

// KeepAlive refreshes lock every interval until ctx ends. A lost lock stops it at once.
// Other refresh failures are retried until ttl has passed since the last successful
// refresh, after which another instance may already hold the key.
func KeepAlive(ctx context.Context, lock InstanceLock, ttl, interval time.Duration, log *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRefresh := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := lock.Refresh(ctx)
		if err == nil {
			lastRefresh = time.Now()
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, dto.ErrInstanceLocked) {
			return err
		}
		if time.Since(lastRefresh) >= ttl {
			return fmt.Errorf("lock %s expired after failed refreshes: %w", lock.Key(), err)
		}
		log.WarnContext(ctx, "Instance lock refresh failed, retrying",
			logger.StringField("key", lock.Key()),
			logger.DurationField("since_last_refresh", time.Since(lastRefresh)),
			logger.ErrorField(err),
		)
	}
}
