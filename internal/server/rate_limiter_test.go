package server

import (
	"testing"
	"time"
)

// TestRateLimiterBurst verifies that a fresh limiter admits exactly the burst
// capacity before throttling.
func TestRateLimiterBurst(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("Expected message %d within burst to be allowed", i+1)
		}
	}
	if rl.allow() {
		t.Error("Expected message beyond burst to be throttled")
	}
}

// TestRateLimiterRefill verifies that tokens are replenished over time.
func TestRateLimiterRefill(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Burst: 1, RefillInterval: 20 * time.Millisecond})

	if !rl.allow() {
		t.Fatal("Expected first message to be allowed")
	}
	if rl.allow() {
		t.Fatal("Expected second immediate message to be throttled")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.allow() {
		t.Error("Expected message after refill interval to be allowed")
	}
}

// TestRateLimiterSanitizesConfig verifies that non-positive settings fall
// back to a working limiter instead of blocking everything.
func TestRateLimiterSanitizesConfig(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Burst: 0, RefillInterval: 0})
	if !rl.allow() {
		t.Error("Expected sanitized limiter to allow at least one message")
	}
}
