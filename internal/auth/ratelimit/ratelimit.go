// Package ratelimit implements per-key token buckets. A key with limit n gets
// n tokens per window, refilled continuously.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type bucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

type Limiter struct {
	buckets *xsync.MapOf[string, *bucket]
	window  time.Duration
	now     func() time.Time
}

func New(window time.Duration) *Limiter {
	return &Limiter{
		buckets: xsync.NewMapOf[string, *bucket](),
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one token of key. When the bucket is empty it reports how
// long until the next token. A limit of zero or less is unlimited.
func (l *Limiter) Allow(key string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	now := l.now()
	b, _ := l.buckets.LoadOrCompute(key, func() *bucket {
		return &bucket{tokens: float64(limit), last: now}
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	rate := float64(limit) / l.window.Seconds()
	b.tokens = math.Min(float64(limit), b.tokens+now.Sub(b.last).Seconds()*rate)
	b.last = now
	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

func (l *Limiter) Reset(key string) {
	l.buckets.Delete(key)
}

func (l *Limiter) Len() int {
	return l.buckets.Size()
}

// Sweep drops buckets idle for two windows, which are full again anyway.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-2 * l.window)
	dropped := 0
	l.buckets.Range(func(key string, b *bucket) bool {
		b.mu.Lock()
		idle := b.last.Before(cutoff)
		b.mu.Unlock()
		if idle {
			l.buckets.Delete(key)
			dropped++
		}
		return true
	})
	return dropped
}

// Run sweeps once per window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
