package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Default bucket names provisioned by NewAPILimiter.
const (
	BucketGlobal     = "global"
	BucketTrading    = "trading"
	BucketMarketData = "market_data"
	BucketOrders     = "orders"
	BucketAccount    = "account"
)

// Limiter manages multiple named token buckets. Unknown bucket names are
// treated as unlimited: Acquire succeeds and Wait returns immediately.
// This permissive default lets callers name buckets before provisioning
// them, not an error condition.
type Limiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
}

// NewLimiter creates an empty limiter with no buckets.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*TokenBucket),
	}
}

// AddBucket registers a token bucket under the given name. A capacity of
// zero defaults to one minute's worth of tokens.
func (l *Limiter) AddBucket(name string, ratePerSecond, capacity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets[name] = NewTokenBucket(name, ratePerSecond, capacity)
}

// Acquire attempts to take n tokens from the named bucket.
func (l *Limiter) Acquire(bucket string, n float64) bool {
	b := l.bucket(bucket)
	if b == nil {
		return true
	}
	return b.Acquire(n)
}

// Wait blocks until n tokens are available in the named bucket and returns
// the time spent waiting.
func (l *Limiter) Wait(ctx context.Context, bucket string, n float64) (time.Duration, error) {
	b := l.bucket(bucket)
	if b == nil {
		return 0, nil
	}
	return b.Wait(ctx, n)
}

// WaitTime estimates the wait for n tokens without consuming any.
func (l *Limiter) WaitTime(bucket string, n float64) time.Duration {
	b := l.bucket(bucket)
	if b == nil {
		return 0
	}
	return b.WaitTime(n)
}

// BucketInfo describes the observable state of one bucket.
type BucketInfo struct {
	Name          string  `json:"name"`
	Tokens        float64 `json:"tokens"`
	Capacity      float64 `json:"capacity"`
	RatePerSecond float64 `json:"rate_per_second"`
}

// Info returns the current state of a bucket, or false if it doesn't exist.
func (l *Limiter) Info(bucket string) (BucketInfo, bool) {
	b := l.bucket(bucket)
	if b == nil {
		return BucketInfo{}, false
	}
	return BucketInfo{
		Name:          bucket,
		Tokens:        b.Tokens(),
		Capacity:      b.Capacity(),
		RatePerSecond: b.Rate(),
	}, true
}

// ListBuckets returns the state of every configured bucket.
func (l *Limiter) ListBuckets() []BucketInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	infos := make([]BucketInfo, 0, len(l.buckets))
	for name, b := range l.buckets {
		infos = append(infos, BucketInfo{
			Name:          name,
			Tokens:        b.Tokens(),
			Capacity:      b.Capacity(),
			RatePerSecond: b.Rate(),
		})
	}
	return infos
}

func (l *Limiter) bucket(name string) *TokenBucket {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.buckets[name]
}

// NewAPILimiter provisions the standard brokerage buckets from a single
// requests-per-minute budget. Trading, order and account traffic get
// progressively tighter caps; market data gets a higher one. The caps are
// tuned against the request token costs in CostForRequest.
func NewAPILimiter(ratePerMinute int) *Limiter {
	l := NewLimiter()

	perMinute := float64(ratePerMinute)
	l.AddBucket(BucketGlobal, perMinute/60.0, perMinute)

	tradingPerMinute := min(perMinute/2, 30)
	l.AddBucket(BucketTrading, tradingPerMinute/60.0, tradingPerMinute)

	marketDataPerMinute := min(perMinute*2, 200)
	l.AddBucket(BucketMarketData, marketDataPerMinute/60.0, marketDataPerMinute)

	ordersPerMinute := min(perMinute, 60)
	l.AddBucket(BucketOrders, ordersPerMinute/60.0, ordersPerMinute)

	accountPerMinute := min(perMinute/4, 20)
	l.AddBucket(BucketAccount, accountPerMinute/60.0, accountPerMinute)

	return l
}

// CostForRequest returns the number of tokens a request consumes. Order
// operations cost 2 and account/balance/position lookups cost 3; bucket
// capacities above are tuned against these exact costs.
func CostForRequest(method, path string) float64 {
	lower := strings.ToLower(path)

	if strings.Contains(lower, "orders") {
		return 2
	}
	for _, word := range []string{"balance", "account", "position"} {
		if strings.Contains(lower, word) {
			return 3
		}
	}
	return 1
}
