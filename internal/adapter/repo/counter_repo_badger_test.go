package repo

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"pageviews/internal/domain"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCounterRepositoryBadgerIncrementAndGet(t *testing.T) {
	repo := NewCounterRepositoryBadger(openTestBadger(t), 5, zerolog.New(io.Discard))
	ctx := context.Background()
	bucket := domain.HourBucket{Date: "2024-01-01", Hour: 10}

	if _, err := repo.Get(ctx, "a.html", bucket); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	first, err := repo.Increment(ctx, "a.html", bucket, 3)
	if err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
	second, err := repo.Increment(ctx, "a.html", bucket, 2)
	if err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
	if first.ViewCount != 3 || second.ViewCount != 5 {
		t.Fatalf("counts = %d, %d; want 3, 5", first.ViewCount, second.ViewCount)
	}

	other, err := repo.Increment(ctx, "a.html", domain.HourBucket{Date: "2024-01-01", Hour: 11}, 1)
	if err != nil || other.ViewCount != 1 {
		t.Fatalf("separate bucket = %+v, %v", other, err)
	}

	got, err := repo.Get(ctx, "a.html", bucket)
	if err != nil || got.ViewCount != 5 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestCounterRepositoryBadgerRejectsOverflow(t *testing.T) {
	repo := NewCounterRepositoryBadger(openTestBadger(t), 5, zerolog.New(io.Discard))
	ctx := context.Background()
	bucket := domain.HourBucket{Date: "2024-01-01", Hour: 10}

	if _, err := repo.Increment(ctx, "a.html", bucket, math.MaxInt64); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
	if _, err := repo.Increment(ctx, "a.html", bucket, 1); !errors.Is(err, domain.ErrCounterOverflow) {
		t.Fatalf("Increment error = %v, want ErrCounterOverflow", err)
	}

	got, err := repo.Get(ctx, "a.html", bucket)
	if err != nil || got.ViewCount != math.MaxInt64 {
		t.Fatalf("Get = %+v, %v; stored count must be unchanged", got, err)
	}
}

func TestCounterRepositoryBadgerConcurrentIncrementsSum(t *testing.T) {
	repo := NewCounterRepositoryBadger(openTestBadger(t), 1000, zerolog.New(io.Discard))
	ctx := context.Background()
	bucket := domain.HourBucket{Date: "2024-06-01", Hour: 12}

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	var want int64
	for w := 0; w < workers; w++ {
		amount := int64(w + 1)
		want += amount * perWorker
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := repo.Increment(ctx, "hot.html", bucket, amount); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Increment returned error: %v", err)
	}

	got, err := repo.Get(ctx, "hot.html", bucket)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.ViewCount != want {
		t.Fatalf("ViewCount = %d, want %d", got.ViewCount, want)
	}
}

func TestCounterRepositoryBadgerHonoursContext(t *testing.T) {
	repo := NewCounterRepositoryBadger(openTestBadger(t), 3, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := repo.Increment(ctx, "a.html", domain.HourBucket{Date: "2024-01-01", Hour: 0}, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("Increment error = %v, want context.Canceled", err)
	}
}

func TestCounterRepositoryBadgerPingAfterClose(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	repo := NewCounterRepositoryBadger(db, 1, zerolog.New(io.Discard))
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	_ = db.Close()
	if err := repo.Ping(context.Background()); err == nil {
		t.Fatalf("expected Ping to fail after close")
	}
}
