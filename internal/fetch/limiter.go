package fetch

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/grantscout/discovery/internal/metrics"
)

// politenessLimiter combines a per-domain token bucket with a randomized
// inter-request delay so adapters never hammer an external site.
type politenessLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	baseDelay    time.Duration
	jitter       time.Duration
}

func newPolitenessLimiter(rps float64, burst int, baseDelay, jitter time.Duration) *politenessLimiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &politenessLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		baseDelay:    baseDelay,
		jitter:       jitter,
	}
}

// Wait blocks until the domain's bucket yields a token and the random
// politeness delay has elapsed, respecting the context.
func (l *politenessLimiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if err := l.sleepJitter(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(rawURL, waited)
	}
	return nil
}

func (l *politenessLimiter) sleepJitter(ctx context.Context) error {
	delay := l.baseDelay
	if l.jitter > 0 {
		bound := big.NewInt(int64(l.jitter))
		if n, err := rand.Int(rand.Reader, bound); err == nil {
			delay += time.Duration(n.Int64())
		}
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
