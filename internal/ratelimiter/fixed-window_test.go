package ratelimiter

import (
	"testing"
	"time"
)

func TestFixedWindowLimiter(t *testing.T) {
	rl := NewFixedWindowLimiter(2, time.Hour)

	for i := 0; i < 2; i++ {
		if allowed, _ := rl.Allow("10.0.0.1"); !allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	allowed, retryAfter := rl.Allow("10.0.0.1")
	if allowed {
		t.Error("third request allowed, want denied")
	}
	if retryAfter != time.Hour {
		t.Errorf("retry after = %v, want %v", retryAfter, time.Hour)
	}

	// Another client has its own window.
	if allowed, _ := rl.Allow("10.0.0.2"); !allowed {
		t.Error("other client denied, want allowed")
	}
}
