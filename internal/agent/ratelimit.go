package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TokenBucket is a deterministic rate limiter: refill is pro-rata over
// elapsed time, and the wait for a deficit is computed, not polled.
type TokenBucket struct {
	mu                sync.Mutex
	tokensPerInterval float64
	interval          time.Duration
	capacity          float64
	available         float64
	lastRefill        time.Time
	now               func() time.Time // overridable in tests
	sleep             func(context.Context, time.Duration) error
}

func NewTokenBucket(tokensPerInterval float64, interval time.Duration, capacity float64) *TokenBucket {
	b := &TokenBucket{
		tokensPerInterval: tokensPerInterval,
		interval:          interval,
		capacity:          capacity,
		available:         capacity,
		now:               time.Now,
		sleep:             sleepCtx,
	}
	b.lastRefill = b.now()
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// refillLocked credits tokens for the elapsed time, capped at capacity.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.available += b.tokensPerInterval * (float64(elapsed) / float64(b.interval))
	if b.available > b.capacity {
		b.available = b.capacity
	}
	b.lastRefill = now
}

// TryAcquire takes n tokens if available, without waiting.
func (b *TokenBucket) TryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.available >= n {
		b.available -= n
		return true
	}
	return false
}

// Acquire takes n tokens, waiting exactly as long as the deficit requires.
func (b *TokenBucket) Acquire(ctx context.Context, n float64) error {
	b.mu.Lock()
	b.refillLocked()
	if b.available >= n {
		b.available -= n
		b.mu.Unlock()
		return nil
	}
	deficit := n - b.available
	wait := time.Duration(deficit / b.tokensPerInterval * float64(b.interval))
	// Go negative; future refills repay the debt before new acquires succeed.
	b.available -= n
	b.mu.Unlock()

	if err := b.sleep(ctx, wait); err != nil {
		// The caller never got to spend the tokens; give them back.
		b.mu.Lock()
		b.available += n
		b.mu.Unlock()
		return err
	}
	return nil
}

// Available reports the current token count after refill.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.available
}

// apiUsage tracks per-API request accounting.
type apiUsage struct {
	Requests    int64
	Tokens      int64
	Errors      int64
	LastRequest time.Time
}

// UsageAccountant records request and token counts per upstream API and
// mirrors them into Prometheus counters.
type UsageAccountant struct {
	mu    sync.Mutex
	byAPI map[string]*apiUsage

	requestsTotal *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

func NewUsageAccountant(reg prometheus.Registerer) *UsageAccountant {
	a := &UsageAccountant{
		byAPI: make(map[string]*apiUsage),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alter_llm_requests_total",
			Help: "LLM requests issued, by API.",
		}, []string{"api"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alter_llm_tokens_total",
			Help: "LLM tokens consumed, by API.",
		}, []string{"api"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alter_llm_errors_total",
			Help: "LLM request errors, by API.",
		}, []string{"api"}),
	}
	if reg != nil {
		reg.MustRegister(a.requestsTotal, a.tokensTotal, a.errorsTotal)
	}
	return a
}

// RecordRequest accounts one request and its token usage.
func (a *UsageAccountant) RecordRequest(api string, tokens int, failed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := a.byAPI[api]
	if u == nil {
		u = &apiUsage{}
		a.byAPI[api] = u
	}
	u.Requests++
	u.Tokens += int64(tokens)
	u.LastRequest = time.Now()
	a.requestsTotal.WithLabelValues(api).Inc()
	a.tokensTotal.WithLabelValues(api).Add(float64(tokens))
	if failed {
		u.Errors++
		a.errorsTotal.WithLabelValues(api).Inc()
	}
}

// Report renders a deterministic usage summary, APIs sorted by name.
func (a *UsageAccountant) Report() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.byAPI))
	for name := range a.byAPI {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("API usage:\n")
	if len(names) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, name := range names {
		u := a.byAPI[name]
		fmt.Fprintf(&b, "  %s: requests=%d tokens=%d errors=%d\n",
			name, u.Requests, u.Tokens, u.Errors)
	}
	return b.String()
}
