package repo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"pageviews/internal/domain"
	"pageviews/internal/metrics"
)

const badgerKeyPrefix = "pv:"

// CounterRepositoryBadger stores counters in an embedded badger DB. Badger has no
// insert-or-add primitive, so Increment is a read-modify-write transaction that is
// retried when badger reports a write conflict, at most maxRetries times.
type CounterRepositoryBadger struct {
	db         *badger.DB
	maxRetries int
	logger     zerolog.Logger
}

// NewCounterRepositoryBadger constructs the repository.
func NewCounterRepositoryBadger(db *badger.DB, maxRetries int, logger zerolog.Logger) *CounterRepositoryBadger {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &CounterRepositoryBadger{db: db, maxRetries: maxRetries, logger: logger}
}

func badgerKey(page string, bucket domain.HourBucket) []byte {
	return []byte(badgerKeyPrefix + bucket.Key() + ":" + page)
}

// Increment adds amount to the counter. Conflicting concurrent writers make all but one
// transaction fail at commit; the losers re-read and try again.
func (r *CounterRepositoryBadger) Increment(ctx context.Context, page string, bucket domain.HourBucket, amount int64) (domain.PageHourCounter, error) {
	key := badgerKey(page, bucket)
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.PageHourCounter{}, err
		}

		var next int64
		err := r.db.Update(func(txn *badger.Txn) error {
			current, err := readCount(txn, key)
			if err != nil {
				return err
			}
			if amount > math.MaxInt64-current {
				return domain.ErrCounterOverflow
			}
			next = current + amount
			return txn.Set(key, encodeCount(next))
		})
		if err == nil {
			return domain.PageHourCounter{Page: page, Bucket: bucket, ViewCount: next}, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return domain.PageHourCounter{}, fmt.Errorf("update page view: %w", err)
		}
		metrics.StoreConflictRetries.Inc()
		r.logger.Debug().Str("page", page).Str("hour", bucket.Key()).Int("attempt", attempt).Msg("badger write conflict")
	}
	return domain.PageHourCounter{}, fmt.Errorf("update page view after %d attempts: %w", r.maxRetries, domain.ErrConflictRetriesExhausted)
}

// Get returns the counter or domain.ErrNotFound.
func (r *CounterRepositoryBadger) Get(ctx context.Context, page string, bucket domain.HourBucket) (domain.PageHourCounter, error) {
	var count int64
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(page, bucket))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			count, err = decodeCount(val)
			return err
		})
	})
	if err != nil {
		return domain.PageHourCounter{}, err
	}
	return domain.PageHourCounter{Page: page, Bucket: bucket, ViewCount: count}, nil
}

// Ping reports whether the DB is open.
func (r *CounterRepositoryBadger) Ping(context.Context) error {
	if r.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

func readCount(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count int64
	err = item.Value(func(val []byte) error {
		count, err = decodeCount(val)
		return err
	})
	return count, err
}

func encodeCount(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func decodeCount(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt counter value of %d bytes", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

var _ domain.CounterStore = (*CounterRepositoryBadger)(nil)
