// Package ratelimit provides a per-key fixed-window token bucket used to
// throttle mutating API calls per client address.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/sentinel/internal/clock"
)

// Limiter manages rate limiting for multiple keys. Each key gets limit
// tokens per interval.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    int
	interval time.Duration
	clock    clock.Clock
}

// bucket implements a token bucket refilled in full once per interval.
type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter allowing limit requests per interval per key.
// A non-positive limit disables limiting.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		limit:    limit,
		interval: interval,
		clock:    clock.Or(clk),
	}
}

// Enabled reports whether the limiter restricts anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0
}

// Allow takes a token for key, reporting whether the request may proceed.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens for key.
func (l *Limiter) AllowN(key string, n int) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.buckets[key] = b
	}

	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// RetryAfter returns how long key must wait for its next refill.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if !l.Enabled() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	if wait := l.interval - l.clock.Now().Sub(b.lastFill); wait > 0 {
		return wait
	}
	return 0
}

// Reset clears rate limit for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// CleanupExpired removes buckets whose last refill is older than maxAge and
// returns how many were removed.
func (l *Limiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run removes expired buckets every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.CleanupExpired(maxAge)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
