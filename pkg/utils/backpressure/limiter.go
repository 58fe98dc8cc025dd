// Package backpressure provides request rate limiting for the API surface.
package backpressure

import (
	"sync"
	"time"
)

// TokenBucket is a lazily refilled token bucket. Allow is safe for
// concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a bucket that refills at rate tokens per second
// up to burst.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.burst {
		tb.tokens = tb.burst
	}
	tb.lastRefill = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// ClientLimiter keeps one bucket per client key and evicts buckets that
// have gone idle.
type ClientLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    int
	clients  map[string]*clientBucket
	lastSeen time.Duration
}

type clientBucket struct {
	bucket *TokenBucket
	seen   time.Time
}

// NewClientLimiter creates a per-client limiter. Idle clients are evicted
// after ten minutes without a request.
func NewClientLimiter(rate float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		rate:     rate,
		burst:    burst,
		clients:  make(map[string]*clientBucket),
		lastSeen: 10 * time.Minute,
	}
}

// Allow consumes one token from the key's bucket.
func (cl *ClientLimiter) Allow(key string) bool {
	cl.mu.Lock()
	cb, ok := cl.clients[key]
	if !ok {
		cb = &clientBucket{bucket: NewTokenBucket(cl.rate, cl.burst)}
		cl.clients[key] = cb
	}
	cb.seen = time.Now()
	if len(cl.clients) > 1000 {
		cl.evictIdle()
	}
	cl.mu.Unlock()

	return cb.bucket.Allow()
}

// evictIdle drops buckets idle past the threshold. Caller holds the lock.
func (cl *ClientLimiter) evictIdle() {
	cutoff := time.Now().Add(-cl.lastSeen)
	for key, cb := range cl.clients {
		if cb.seen.Before(cutoff) {
			delete(cl.clients, key)
		}
	}
}
