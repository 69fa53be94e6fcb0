package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLimiter(rate float64, burst int, clock *fakeClock) *RateLimiter {
	rl := NewRateLimiter(rate, burst)
	rl.now = clock.Now
	rl.lastUpdate = clock.Now()
	return rl
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(2, 3, clock)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Expected request %d within burst to be allowed", i+1)
		}
	}
	if rl.Allow() {
		t.Fatal("Expected request beyond burst to be rejected")
	}

	clock.Advance(500 * time.Millisecond)
	if !rl.Allow() {
		t.Error("Expected one token after 500ms at 2 rps")
	}
	if rl.Allow() {
		t.Error("Expected bucket empty again")
	}

	clock.Advance(time.Hour)
	if got := rl.Available(); got != 3 {
		t.Errorf("Expected refill capped at burst 3, got %v", got)
	}

	t.Log("✓ Token bucket refills and caps at burst")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Expected first Wait to succeed, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}

	t.Log("✓ Wait returns when the context ends")
}

func TestRateLimiter_FromRPM(t *testing.T) {
	rl := NewRateLimiterFromRPM(120, 0)
	if rl.rate != 2 {
		t.Errorf("Expected 2 rps from 120 rpm, got %v", rl.rate)
	}
	if rl.burst != 2 {
		t.Errorf("Expected default burst 2, got %d", rl.burst)
	}
}
