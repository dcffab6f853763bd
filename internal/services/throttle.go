package services

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/platform/openai"
)

// CallThrottler bounds concurrent outbound model calls and adapts the bound
// to observed rate limiting. It is an explicit object so tests and multiple
// models can run independent throttlers.
type CallThrottler struct {
	log *logger.Logger
	cfg ThrottleConfig

	mu          sync.Mutex
	active      int
	dynamicMax  int
	pending     waiterHeap
	seq         uint64
	rateLimits  []time.Time
	lastLimit   time.Time
	lastRaise   time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

type waiter struct {
	priority int
	seq      uint64
	admit    chan struct{}
	canceled bool
	index    int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

func NewCallThrottler(baseLog *logger.Logger, cfg ThrottleConfig) *CallThrottler {
	cfg = cfg.withDefaults()
	return &CallThrottler{
		log:        baseLog.With("service", "CallThrottler"),
		cfg:        cfg,
		dynamicMax: cfg.MaxConcurrent,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs call under the concurrency bound. Lower priority values are
// admitted first. Rate-limited and transient failures are retried with
// capped exponential backoff, re-enqueued one priority level lower so fresh
// work is not starved by a retry storm.
func (t *CallThrottler) Do(ctx context.Context, priority int, call func(ctx context.Context) error) error {
	backoff := t.cfg.BaseBackoff
	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if err := t.acquire(ctx, priority); err != nil {
			return err
		}
		err := call(ctx)
		t.release(err)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if !openai.IsRetryable(err) {
			return err
		}
		if attempt == t.cfg.MaxRetries {
			break
		}

		sleepFor := backoff
		if ra := openai.RetryAfter(err); ra > 0 {
			sleepFor = ra
		}
		if sleepFor > t.cfg.MaxBackoff {
			sleepFor = t.cfg.MaxBackoff
		}
		sleepFor = jitter(sleepFor)
		t.log.Warn("Model call retrying",
			"attempt", attempt+1,
			"max_retries", t.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"rate_limited", openai.IsRateLimit(err),
			"error", err.Error(),
		)
		if sErr := t.sleep(ctx, sleepFor); sErr != nil {
			return sErr
		}
		backoff *= 2
		priority++
	}
	return lastErr
}

// acquire blocks until a slot is available or ctx is done.
func (t *CallThrottler) acquire(ctx context.Context, priority int) error {
	t.mu.Lock()
	t.maybeRaiseLocked()
	if t.active < t.dynamicMax && t.pending.Len() == 0 {
		t.active++
		t.mu.Unlock()
		return nil
	}
	w := &waiter{priority: priority, seq: t.seq, admit: make(chan struct{})}
	t.seq++
	heap.Push(&t.pending, w)
	t.mu.Unlock()

	select {
	case <-w.admit:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		if !w.canceled && w.index >= 0 && w.index < t.pending.Len() && t.pending[w.index] == w {
			w.canceled = true
			heap.Remove(&t.pending, w.index)
			t.mu.Unlock()
			return ctx.Err()
		}
		t.mu.Unlock()
		// Already admitted between Done and lock: hand the slot back.
		select {
		case <-w.admit:
			t.release(nil)
		default:
		}
		return ctx.Err()
	}
}

// release frees a slot, records rate-limit observations, and admits pending
// work under the (possibly shrunk) bound.
func (t *CallThrottler) release(callErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}
	if callErr != nil && openai.IsRateLimit(callErr) {
		now := time.Now()
		t.lastLimit = now
		t.rateLimits = append(t.rateLimits, now)
		t.shrinkLocked(now)
	}
	t.maybeRaiseLocked()
	t.admitLocked()
}

// shrinkLocked lowers the bound proportionally to how often the model has
// rate-limited us inside the sliding window.
func (t *CallThrottler) shrinkLocked(now time.Time) {
	cutoff := now.Add(-t.cfg.ErrorWindow)
	kept := t.rateLimits[:0]
	for _, ts := range t.rateLimits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.rateLimits = kept

	next := t.cfg.MaxConcurrent - len(t.rateLimits)
	if next < 1 {
		next = 1
	}
	if next < t.dynamicMax {
		t.log.Warn("Lowering model call concurrency",
			"from", t.dynamicMax,
			"to", next,
			"recent_rate_limits", len(t.rateLimits),
		)
		t.dynamicMax = next
	}
}

// maybeRaiseLocked cautiously steps the bound back up, one slot per quiet
// period with no rate-limit errors.
func (t *CallThrottler) maybeRaiseLocked() {
	if t.dynamicMax >= t.cfg.MaxConcurrent {
		return
	}
	now := time.Now()
	if t.lastLimit.IsZero() || now.Sub(t.lastLimit) < t.cfg.QuietPeriod {
		return
	}
	if !t.lastRaise.IsZero() && now.Sub(t.lastRaise) < t.cfg.QuietPeriod {
		return
	}
	t.dynamicMax++
	t.lastRaise = now
	t.log.Info("Raising model call concurrency", "to", t.dynamicMax)
}

func (t *CallThrottler) admitLocked() {
	for t.active < t.dynamicMax && t.pending.Len() > 0 {
		w := heap.Pop(&t.pending).(*waiter)
		if w.canceled {
			continue
		}
		t.active++
		close(w.admit)
	}
}

// InFlight returns the number of currently admitted calls.
func (t *CallThrottler) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// DynamicMax returns the current adaptive concurrency bound.
func (t *CallThrottler) DynamicMax() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dynamicMax
}

func jitter(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}
