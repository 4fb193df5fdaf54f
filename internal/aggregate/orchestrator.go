package aggregate

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pageviews/internal/domain"
	"pageviews/internal/metrics"
)

// Options tunes batch dispatch.
type Options struct {
	// Concurrency bounds the number of in-flight increments per batch.
	Concurrency int
	// Coalesce pre-sums entries that share a (page, bucket) key so each key is
	// written once. Results are then reported per key instead of per entry.
	Coalesce bool
}

// BatchResult lists the written counters in input order.
type BatchResult struct {
	Updates []domain.PageHourCounter
}

// Orchestrator expands a validated batch into independent increments.
type Orchestrator struct {
	agg    *Aggregator
	opts   Options
	logger zerolog.Logger
}

// NewOrchestrator constructs an orchestrator over agg.
func NewOrchestrator(agg *Aggregator, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Orchestrator{
		agg:    agg,
		opts:   opts,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

type increment struct {
	page   string
	bucket domain.HourBucket
	amount int64
}

// ProcessBatch issues one increment per entry (or per key when coalescing), waits for
// all of them and returns the results in input order. If any increment fails the
// others are still applied and the error is a *domain.PartialFailureError.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch domain.BatchRequest) (BatchResult, error) {
	ops := o.expand(batch)
	metrics.BatchEntries.Observe(float64(batch.Len()))

	results := make([]domain.PageHourCounter, len(ops))
	errs := make([]error, len(ops))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, op := range ops {
		g.Go(func() error {
			results[i], errs[i] = o.agg.Increment(ctx, op.page, op.bucket, op.amount)
			return nil
		})
	}
	_ = g.Wait()

	var (
		applied []domain.PageHourCounter
		failed  int
		first   error
	)
	for i, err := range errs {
		if err != nil {
			failed++
			if first == nil {
				first = err
			}
			continue
		}
		applied = append(applied, results[i])
	}

	if failed > 0 {
		metrics.BatchPartialFailures.Inc()
		o.logger.Error().
			Err(first).
			Int("applied", len(applied)).
			Int("failed", failed).
			Strs("pages", batch.Pages()).
			Msg("batch partially applied")
		return BatchResult{}, &domain.PartialFailureError{
			Applied: len(applied),
			Failed:  failed,
			Updates: applied,
			Err:     errors.Join(nonNil(errs)...),
		}
	}

	o.logger.Info().
		Int("page_count", len(batch.Pages())).
		Int("total_updates", len(results)).
		Msg("recorded multiple page views")
	return BatchResult{Updates: results}, nil
}

func (o *Orchestrator) expand(batch domain.BatchRequest) []increment {
	ops := make([]increment, 0, batch.Len())
	if !o.opts.Coalesce {
		for _, e := range batch.Entries {
			ops = append(ops, increment{page: e.Page, bucket: e.Bucket, amount: e.Count})
		}
		return ops
	}

	type key struct {
		page   string
		bucket domain.HourBucket
	}
	index := make(map[key]int, batch.Len())
	for _, e := range batch.Entries {
		k := key{page: e.Page, bucket: e.Bucket}
		// A sum that would overflow starts a new increment for the same key.
		if i, ok := index[k]; ok && ops[i].amount <= math.MaxInt64-e.Count {
			ops[i].amount += e.Count
			continue
		}
		index[k] = len(ops)
		ops = append(ops, increment{page: e.Page, bucket: e.Bucket, amount: e.Count})
	}
	return ops
}

func nonNil(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
