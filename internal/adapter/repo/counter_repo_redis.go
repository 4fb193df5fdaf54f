package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pageviews/internal/domain"
)

// redisCounterClient is the subset of *redis.Client used by the repository.
type redisCounterClient interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// CounterRepositoryRedis keeps one integer key per (page, bucket). INCRBY creates the key
// at zero when missing and returns the new value in the same atomic command.
type CounterRepositoryRedis struct {
	rdb    redisCounterClient
	prefix string
}

// NewCounterRepositoryRedis constructs the repository. Keys are "<prefix>:<bucket>:<page>".
func NewCounterRepositoryRedis(rdb redisCounterClient, prefix string) *CounterRepositoryRedis {
	return &CounterRepositoryRedis{rdb: rdb, prefix: prefix}
}

func (r *CounterRepositoryRedis) key(page string, bucket domain.HourBucket) string {
	return r.prefix + ":" + bucket.Key() + ":" + page
}

// Increment adds amount to the counter and returns the post-increment value.
func (r *CounterRepositoryRedis) Increment(ctx context.Context, page string, bucket domain.HourBucket, amount int64) (domain.PageHourCounter, error) {
	count, err := r.rdb.IncrBy(ctx, r.key(page, bucket), amount).Result()
	if err != nil {
		return domain.PageHourCounter{}, fmt.Errorf("incrby page view: %w", err)
	}
	return domain.PageHourCounter{Page: page, Bucket: bucket, ViewCount: count}, nil
}

// Get returns the counter or domain.ErrNotFound.
func (r *CounterRepositoryRedis) Get(ctx context.Context, page string, bucket domain.HourBucket) (domain.PageHourCounter, error) {
	count, err := r.rdb.Get(ctx, r.key(page, bucket)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PageHourCounter{}, domain.ErrNotFound
		}
		return domain.PageHourCounter{}, fmt.Errorf("get page view: %w", err)
	}
	return domain.PageHourCounter{Page: page, Bucket: bucket, ViewCount: count}, nil
}

// Ping checks redis connectivity.
func (r *CounterRepositoryRedis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

var _ domain.CounterStore = (*CounterRepositoryRedis)(nil)
