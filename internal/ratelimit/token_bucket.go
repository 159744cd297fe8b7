package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements token bucket rate limiting with continuous refill.
// Tokens accumulate at ratePerSecond up to capacity; acquisition is
// all-or-nothing, so a failed Acquire never consumes partial tokens.
type TokenBucket struct {
	ratePerSecond float64
	capacity      float64
	tokens        float64
	lastUpdate    time.Time
	mu            sync.Mutex
	name          string
}

// NewTokenBucket creates a bucket that starts full. If capacity is zero or
// negative it defaults to one minute's worth of tokens (ratePerSecond * 60).
func NewTokenBucket(name string, ratePerSecond, capacity float64) *TokenBucket {
	if capacity <= 0 {
		capacity = ratePerSecond * 60
	}
	return &TokenBucket{
		ratePerSecond: ratePerSecond,
		capacity:      capacity,
		tokens:        capacity,
		lastUpdate:    time.Now(),
		name:          name,
	}
}

// Acquire attempts to take n tokens from the bucket. It refills the bucket
// based on elapsed time first, then consumes only if enough are available.
func (b *TokenBucket) Acquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Wait blocks until n tokens were acquired or the context is cancelled.
// It returns the total time spent waiting. Concurrent waiters re-evaluate
// the bucket state after every sleep; tokens are never reserved for a
// specific waiter.
func (b *TokenBucket) Wait(ctx context.Context, n float64) (time.Duration, error) {
	start := time.Now()

	for {
		if b.Acquire(n) {
			return time.Since(start), nil
		}

		sleep := b.WaitTime(n)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens returns the current token count without consuming anything.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.projected(time.Now())
}

// WaitTime estimates how long a caller must wait for n tokens without
// consuming anything.
func (b *TokenBucket) WaitTime(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.projected(time.Now())
	if current >= n {
		return 0
	}

	needed := n - current
	return time.Duration(needed / b.ratePerSecond * float64(time.Second))
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}

// Rate returns the refill rate in tokens per second.
func (b *TokenBucket) Rate() float64 {
	return b.ratePerSecond
}

// refill advances the bucket state to now. Caller must hold the lock.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}

	b.tokens = min(b.capacity, b.tokens+elapsed*b.ratePerSecond)
	b.lastUpdate = now
}

// projected returns the token count as of now without mutating state.
// Caller must hold the lock.
func (b *TokenBucket) projected(now time.Time) float64 {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed <= 0 {
		return b.tokens
	}
	return min(b.capacity, b.tokens+elapsed*b.ratePerSecond)
}
