// Package aggregate applies page-view increments to the counter store, one key at a time
// (Aggregator) or as a fanned-out batch (Orchestrator).
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pageviews/internal/domain"
	"pageviews/internal/metrics"
)

// Aggregator is the only writer of page/hour counters. It holds no locks: atomicity
// comes from the store's insert-or-add primitive.
type Aggregator struct {
	store   domain.CounterStore
	backend string
	logger  zerolog.Logger
}

// NewAggregator wires an aggregator to a store. backend labels metrics and logs.
func NewAggregator(store domain.CounterStore, backend string, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		backend: backend,
		logger:  logger.With().Str("component", "aggregator").Str("backend", backend).Logger(),
	}
}

// Increment adds amount views to (page, bucket) and returns the counter as written.
// Failures come back as *domain.AggregationError and are never retried here.
func (a *Aggregator) Increment(ctx context.Context, page string, bucket domain.HourBucket, amount int64) (domain.PageHourCounter, error) {
	if amount < 1 {
		return domain.PageHourCounter{}, &domain.AggregationError{
			Page:   page,
			Bucket: bucket,
			Err:    fmt.Errorf("%w: %d", domain.ErrInvalidCount, amount),
		}
	}

	start := time.Now()
	counter, err := a.store.Increment(ctx, page, bucket, amount)
	metrics.RecordIncrement(a.backend, amount, time.Since(start), err)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("page", page).
			Str("hour", bucket.Key()).
			Int64("amount", amount).
			Msg("failed to record page view")
		return domain.PageHourCounter{}, &domain.AggregationError{Page: page, Bucket: bucket, Err: err}
	}

	a.logger.Debug().
		Str("page", page).
		Str("hour", bucket.Key()).
		Int64("amount", amount).
		Int64("views", counter.ViewCount).
		Msg("recorded page view")
	return counter, nil
}

// Get reads one counter; domain.ErrNotFound when it was never incremented.
func (a *Aggregator) Get(ctx context.Context, page string, bucket domain.HourBucket) (domain.PageHourCounter, error) {
	return a.store.Get(ctx, page, bucket)
}

// Ping reports store connectivity for health checks.
func (a *Aggregator) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Backend returns the configured store backend name.
func (a *Aggregator) Backend() string { return a.backend }
