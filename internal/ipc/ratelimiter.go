package ipc

import (
	"sync/atomic"
	"time"
)

// RateLimiter is a fixed-window, one-second-wide request limiter built on
// raw atomics rather than a token-bucket (spec.md §4.6): the spec pins an
// exact race-tolerant algorithm as a testable property, and a token-bucket
// limiter (e.g. golang.org/x/time/rate) would not reproduce that precise
// boundary behavior.
//
// Invariant: count never exceeds maxPerSecond at any observable moment,
// regardless of how many goroutines call Allow concurrently.
type RateLimiter struct {
	maxPerSecond int64
	windowStart  atomic.Int64 // UnixNano of the current window's start
	count        atomic.Int64
}

// NewRateLimiter returns a limiter permitting maxPerSecond calls to Allow
// per fixed one-second window.
func NewRateLimiter(maxPerSecond int) *RateLimiter {
	rl := &RateLimiter{maxPerSecond: int64(maxPerSecond)}
	rl.windowStart.Store(time.Now().UnixNano())
	return rl
}

// Allow reports whether the caller may proceed. It never blocks.
func (rl *RateLimiter) Allow() bool {
	now := time.Now().UnixNano()

	start := rl.windowStart.Load()
	if now-start >= int64(time.Second) {
		// Whichever goroutine wins the CAS resets the window; losers
		// simply re-read windowStart below. This is a harmless race: the
		// count check afterward still enforces the limit correctly even
		// if a loser's now is slightly stale.
		if rl.windowStart.CompareAndSwap(start, now) {
			rl.count.Store(0)
		}
	}

	for {
		c := rl.count.Load()
		if c >= rl.maxPerSecond {
			return false
		}
		if rl.count.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// Reset clears both the window and the count.
func (rl *RateLimiter) Reset() {
	rl.windowStart.Store(time.Now().UnixNano())
	rl.count.Store(0)
}
