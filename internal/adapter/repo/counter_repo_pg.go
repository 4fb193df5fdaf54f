package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pageviews/internal/domain"
	"pageviews/internal/infra"
	"pageviews/internal/sqlinline"
)

// CounterRepositoryPG implements domain.CounterStore on PostgreSQL. Increments rely on
// INSERT ... ON CONFLICT DO UPDATE, so concurrent writers never need a lock of ours.
type CounterRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewCounterRepositoryPG constructs the repository over a marked-SQL executor.
func NewCounterRepositoryPG(sql infra.SQLExecutor) *CounterRepositoryPG {
	return &CounterRepositoryPG{sql: sql}
}

// EnsureSchema creates the page_views table when missing.
func (r *CounterRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QEnsurePageViewsSchema); err != nil {
		return fmt.Errorf("ensure page_views schema: %w", err)
	}
	return nil
}

// Increment adds amount to the (page, bucket) counter, creating it when absent.
func (r *CounterRepositoryPG) Increment(ctx context.Context, page string, bucket domain.HourBucket, amount int64) (domain.PageHourCounter, error) {
	var count int64
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertPageView, page, bucket.Day(), int16(bucket.Hour), amount)
	if err := row.Scan(&count); err != nil {
		return domain.PageHourCounter{}, fmt.Errorf("upsert page view: %w", err)
	}
	return domain.PageHourCounter{Page: page, Bucket: bucket, ViewCount: count}, nil
}

// Get returns the counter or domain.ErrNotFound.
func (r *CounterRepositoryPG) Get(ctx context.Context, page string, bucket domain.HourBucket) (domain.PageHourCounter, error) {
	var count int64
	row := r.sql.QueryRow(ctx, sqlinline.QGetPageView, page, bucket.Day(), int16(bucket.Hour))
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PageHourCounter{}, domain.ErrNotFound
		}
		return domain.PageHourCounter{}, fmt.Errorf("get page view: %w", err)
	}
	return domain.PageHourCounter{Page: page, Bucket: bucket, ViewCount: count}, nil
}

// Ping checks database connectivity.
func (r *CounterRepositoryPG) Ping(ctx context.Context) error {
	var one int
	return r.sql.QueryRow(ctx, sqlinline.QPing).Scan(&one)
}

var _ domain.CounterStore = (*CounterRepositoryPG)(nil)
