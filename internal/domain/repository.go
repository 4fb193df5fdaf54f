package domain

import "context"

// CounterStore persists page/hour counters. Increment must be one atomic
// insert-or-add that returns the row as written, safe for concurrent callers
// without any lock held by the caller.
type CounterStore interface {
	Increment(ctx context.Context, page string, bucket HourBucket, amount int64) (PageHourCounter, error)
	Get(ctx context.Context, page string, bucket HourBucket) (PageHourCounter, error)
	Ping(ctx context.Context) error
}
