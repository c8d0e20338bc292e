package ipc

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(5)
	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("allowed = %d, want 5", allowed)
	}
}

func TestRateLimiterConcurrentNeverExceedsMax(t *testing.T) {
	const max = 5
	const callers = 50
	rl := NewRateLimiter(max)

	var wg sync.WaitGroup
	var allowedCount atomic.Int64
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if rl.Allow() {
				allowedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowedCount.Load() > max {
		t.Errorf("allowed %d concurrent calls, want <= %d", allowedCount.Load(), max)
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1)
	if !rl.Allow() {
		t.Fatal("first Allow should succeed")
	}
	if rl.Allow() {
		t.Fatal("second Allow within window should fail")
	}
	rl.Reset()
	if !rl.Allow() {
		t.Fatal("Allow after Reset should succeed")
	}
}
