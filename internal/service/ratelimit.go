package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is an in-memory per-key rate limiter. It is safe for
// concurrent use. Stale keys are removed in the background.
type TokenBucket struct {
	mu       sync.Mutex
	limiters map[string]*limiter
	rate     rate.Limit
	burst    int

	done     chan struct{}
	stopOnce sync.Once
}

type limiter struct {
	*rate.Limiter
	last time.Time
}

// NewTokenBucket creates a rate limiter that allows bursts of up to capacity
// requests per key, refilling at perSecond tokens per second.
func NewTokenBucket(perSecond float64, capacity int) *TokenBucket {
	tb := &TokenBucket{
		limiters: make(map[string]*limiter),
		rate:     rate.Limit(perSecond),
		burst:    capacity,
		done:     make(chan struct{}),
	}
	go tb.cleanup()
	return tb
}

// Allow reports whether key may proceed, consuming one token if so.
func (tb *TokenBucket) Allow(key string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	l, ok := tb.limiters[key]
	if !ok {
		l = &limiter{Limiter: rate.NewLimiter(tb.rate, tb.burst)}
		tb.limiters[key] = l
	}
	l.last = now
	return l.AllowN(now, 1)
}

// Stop ends background cleanup. Allow keeps working afterwards; stale keys
// are simply no longer removed. Stop may be called more than once.
func (tb *TokenBucket) Stop() {
	tb.stopOnce.Do(func() { close(tb.done) })
}

// cleanup drops limiters that have not been used for 10 minutes.
func (tb *TokenBucket) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-tb.done:
			return
		case <-ticker.C:
			tb.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for key, l := range tb.limiters {
				if l.last.Before(cutoff) {
					delete(tb.limiters, key)
				}
			}
			tb.mu.Unlock()
		}
	}
}
