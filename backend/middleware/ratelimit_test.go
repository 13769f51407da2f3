package middleware

import (
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-a") {
			t.Fatalf("Allow() call %d = false, want true", i)
		}
	}
	if rl.Allow("user-a") {
		t.Error("Allow() over limit = true, want false")
	}

	// Limits are tracked per key
	if !rl.Allow("user-b") {
		t.Error("Allow() for fresh key = false, want true")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("user-a") {
		t.Fatal("Allow() first call = false, want true")
	}
	if rl.Allow("user-a") {
		t.Fatal("Allow() within window = true, want false")
	}

	time.Sleep(20 * time.Millisecond)

	if !rl.Allow("user-a") {
		t.Error("Allow() after window = false, want true")
	}
}
