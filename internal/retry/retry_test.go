package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, 10*time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_TransientFailuresRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, 10*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	var calls int
	sentinel := errors.New("still down")
	err := Do(context.Background(), 3, 10*time.Millisecond, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var calls int
	sentinel := errors.New("no such subscription")
	err := Do(context.Background(), 5, 10*time.Millisecond, func() error {
		calls++
		return Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

// A permanent classification arriving after transient failures (a flaky
// network followed by a definitive 404, the shape the Stripe client
// produces) must stop the remaining attempts and unwrap cleanly.
func TestDo_PermanentAfterTransient(t *testing.T) {
	var calls int
	notFound := errors.New("resource_missing")
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("post api.stripe.com: %w", errors.New("connection reset"))
		}
		return Permanent(notFound)
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected notFound, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 10, 100*time.Millisecond, func() error {
		calls.Add(1)
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c := calls.Load(); c > 3 {
		t.Fatalf("expected at most 3 calls before cancellation, got %d", c)
	}
}

func TestDo_ZeroAttemptsRoundsUpToOne(t *testing.T) {
	var calls int
	err := Do(context.Background(), 0, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_DelaysBetweenAttempts(t *testing.T) {
	var timestamps []time.Time
	err := Do(context.Background(), 4, 20*time.Millisecond, func() error {
		timestamps = append(timestamps, time.Now())
		if len(timestamps) < 4 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if len(timestamps) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(timestamps))
	}

	// Gaps grow roughly 20ms, 40ms, 80ms; only assert a floor because the
	// jitter is random.
	for i := 1; i < len(timestamps); i++ {
		if gap := timestamps[i].Sub(timestamps[i-1]); gap < 5*time.Millisecond {
			t.Errorf("gap %d too short: %v", i, gap)
		}
	}
}

func TestPermanent_WrapsForErrorsIs(t *testing.T) {
	inner := errors.New("inner")
	if !errors.Is(Permanent(inner), inner) {
		t.Fatal("Permanent should unwrap to the inner error")
	}
}
