package relay

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("c1") || !rl.Allow("c1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("c1") {
		t.Error("third request inside the window should be rejected")
	}
	if !rl.Allow("c2") {
		t.Error("other keys are limited independently")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("c1") {
		t.Error("request after the window should pass")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Stop()
	for i := 0; i < 100; i++ {
		if !rl.Allow("c1") {
			t.Fatal("a zero limit disables limiting")
		}
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	rl.Allow("alice")
	if rl.Allow("alice") {
		t.Error("second request for alice should be limited")
	}
	if !rl.Allow("bob") {
		t.Error("a different user should have a separate budget")
	}
	rl.Stop()
	rl.Stop()
}
