package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewTokenBucket_StartsFull tests that a new bucket holds its full capacity
func TestNewTokenBucket_StartsFull(t *testing.T) {
	b := NewTokenBucket("test", 10, 100)

	assert.Equal(t, 100.0, b.Capacity())
	assert.Equal(t, 10.0, b.Rate())
	assert.InDelta(t, 100.0, b.Tokens(), 0.5)
}

// TestNewTokenBucket_DefaultCapacity tests the one-minute default capacity
func TestNewTokenBucket_DefaultCapacity(t *testing.T) {
	b := NewTokenBucket("test", 5, 0)

	assert.Equal(t, 300.0, b.Capacity())
}

// TestAcquire_ConsumesTokens tests that successful acquisition subtracts tokens
func TestAcquire_ConsumesTokens(t *testing.T) {
	b := NewTokenBucket("test", 1, 10)

	assert.True(t, b.Acquire(4))
	assert.InDelta(t, 6.0, b.Tokens(), 0.5)
}

// TestAcquire_AllOrNothing tests that a failed acquire consumes nothing
func TestAcquire_AllOrNothing(t *testing.T) {
	b := NewTokenBucket("test", 0.001, 10)

	require.True(t, b.Acquire(8))
	before := b.Tokens()

	assert.False(t, b.Acquire(5))
	assert.InDelta(t, before, b.Tokens(), 0.5)
}

// TestTokens_NeverExceedCapacity tests the upper bound of the conservation invariant
func TestTokens_NeverExceedCapacity(t *testing.T) {
	b := NewTokenBucket("test", 1000, 5)

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, b.Tokens(), 5.0)

	for i := 0; i < 20; i++ {
		b.Acquire(1)
		tokens := b.Tokens()
		assert.GreaterOrEqual(t, tokens, 0.0)
		assert.LessOrEqual(t, tokens, 5.0)
	}
}

// TestRefill_Continuous tests that a drained bucket refills proportionally to
// elapsed time: at 100 tokens/s, half a second restores about 50 tokens
func TestRefill_Continuous(t *testing.T) {
	b := NewTokenBucket("test", 100, 100)
	require.True(t, b.Acquire(100))
	require.InDelta(t, 0.0, b.Tokens(), 1.0)

	time.Sleep(500 * time.Millisecond)

	assert.InDelta(t, 50.0, b.Tokens(), 10.0)
}

// TestAcquire_ExhaustionScenario tests the exhaustion sequence: capacity 2,
// rate 1/s, three immediate acquires then one after a second of refill
func TestAcquire_ExhaustionScenario(t *testing.T) {
	b := NewTokenBucket("test", 1, 2)

	assert.True(t, b.Acquire(1))
	assert.True(t, b.Acquire(1))
	assert.False(t, b.Acquire(1))

	time.Sleep(1100 * time.Millisecond)

	assert.True(t, b.Acquire(1))
}

// TestWaitTime_ZeroWhenAvailable tests that WaitTime is zero with enough tokens
func TestWaitTime_ZeroWhenAvailable(t *testing.T) {
	b := NewTokenBucket("test", 1, 10)

	assert.Equal(t, time.Duration(0), b.WaitTime(5))
}

// TestWaitTime_ProportionalToDeficit tests the deficit-over-rate estimate
func TestWaitTime_ProportionalToDeficit(t *testing.T) {
	b := NewTokenBucket("test", 2, 10)
	require.True(t, b.Acquire(10))

	// 4 tokens short at 2 tokens/s is about 2 seconds
	wait := b.WaitTime(4)
	assert.InDelta(t, 2.0, wait.Seconds(), 0.2)
}

// TestWait_BlocksUntilRefill tests that Wait sleeps through a deficit and
// reports the elapsed wait
func TestWait_BlocksUntilRefill(t *testing.T) {
	b := NewTokenBucket("test", 10, 5)
	require.True(t, b.Acquire(5))

	waited, err := b.Wait(context.Background(), 2)
	require.NoError(t, err)

	assert.Greater(t, waited, 100*time.Millisecond)
	assert.Less(t, waited, time.Second)
}

// TestWait_CancelledContext tests that cancellation interrupts the sleep
func TestWait_CancelledContext(t *testing.T) {
	b := NewTokenBucket("test", 0.1, 1)
	require.True(t, b.Acquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Wait(ctx, 1)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

// TestWait_ConcurrentWaiters tests that concurrent waiters never over-draw
// the bucket
func TestWait_ConcurrentWaiters(t *testing.T) {
	b := NewTokenBucket("test", 50, 10)

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Wait(ctx, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.GreaterOrEqual(t, b.Tokens(), 0.0)
}
