package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vantler/adcomply-backend/internal/data/repos/testutil"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
)

func newTestThrottler(t *testing.T, cfg ThrottleConfig) *CallThrottler {
	t.Helper()
	th := NewCallThrottler(testutil.Logger(t), cfg)
	th.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return th
}

func TestThrottlerConcurrencyBound(t *testing.T) {
	const bound = 2
	th := newTestThrottler(t, ThrottleConfig{MaxConcurrent: bound, MaxRetries: 1})

	var inFlight, peak int64
	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = th.Do(context.Background(), 0, func(ctx context.Context) error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				<-gate
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
		}()
	}

	// Let the first admissions land before opening the gate.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > bound {
		t.Fatalf("peak in-flight = %d, exceeds bound %d", got, bound)
	}
	if th.InFlight() != 0 {
		t.Fatalf("in-flight = %d after drain, want 0", th.InFlight())
	}
}

func TestThrottlerShrinksOnRateLimit(t *testing.T) {
	th := newTestThrottler(t, ThrottleConfig{MaxConcurrent: 8, MaxRetries: 2, ErrorWindow: time.Minute})

	rateLimited := &openai.HTTPError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}
	err := th.Do(context.Background(), 0, func(ctx context.Context) error {
		return rateLimited
	})
	if !openai.IsRateLimit(err) {
		t.Fatalf("expected rate limit error to surface, got %v", err)
	}

	// Three attempts (initial + 2 retries) each observed a 429.
	if got := th.DynamicMax(); got >= 8 {
		t.Fatalf("dynamic max = %d, expected shrink below 8", got)
	}
	if got := th.DynamicMax(); got < 1 {
		t.Fatalf("dynamic max = %d, must never drop below 1", got)
	}
}

func TestThrottlerDoesNotRetryPermanentErrors(t *testing.T) {
	th := newTestThrottler(t, ThrottleConfig{MaxConcurrent: 2, MaxRetries: 5})

	calls := 0
	badRequest := &openai.HTTPError{StatusCode: http.StatusBadRequest, Body: "no"}
	err := th.Do(context.Background(), 0, func(ctx context.Context) error {
		calls++
		return badRequest
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times", calls)
	}
}

func TestThrottlerRetriesTransientThenSucceeds(t *testing.T) {
	th := newTestThrottler(t, ThrottleConfig{MaxConcurrent: 2, MaxRetries: 3})

	calls := 0
	err := th.Do(context.Background(), 0, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &openai.HTTPError{StatusCode: http.StatusServiceUnavailable, Body: "busy"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestThrottlerHonorsContextCancel(t *testing.T) {
	th := newTestThrottler(t, ThrottleConfig{MaxConcurrent: 1, MaxRetries: 1})

	block := make(chan struct{})
	go func() {
		_ = th.Do(context.Background(), 0, func(ctx context.Context) error {
			<-block
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- th.Do(ctx, 0, func(ctx context.Context) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled waiter never returned")
	}
	close(block)
}
