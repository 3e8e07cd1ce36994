package security

import (
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	defer rl.Stop()

	if rl.rate != 10 {
		t.Errorf("rate = %d, want 10", rl.rate)
	}
	if rl.burst != 20 {
		t.Errorf("burst = %d, want 20", rl.burst)
	}
	if rl.logger == nil {
		t.Error("nil logger should fall back to the default")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(10, 5, slog.Default())
	defer rl.Stop()

	const ip = "203.0.113.7"

	for i := 0; i < 5; i++ {
		if !rl.Allow(ip) {
			t.Errorf("request %d within burst should be allowed", i+1)
		}
	}
	if rl.Allow(ip) {
		t.Error("request past the burst should be limited")
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(10, 2, slog.Default())
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		if !rl.Allow("203.0.113.7") {
			t.Errorf("request %d within burst should be allowed", i+1)
		}
	}
	if rl.Allow("203.0.113.7") {
		t.Error("exhausted IP should be limited")
	}
	if !rl.Allow("203.0.113.8") {
		t.Error("a different IP has its own bucket and should be allowed")
	}
}

func TestRateLimiter_RefillOverTime(t *testing.T) {
	rl := NewRateLimiter(2, 2, slog.Default())
	defer rl.Stop()

	const ip = "203.0.113.7"

	for i := 0; i < 2; i++ {
		if !rl.Allow(ip) {
			t.Errorf("request %d within burst should be allowed", i+1)
		}
	}
	if rl.Allow(ip) {
		t.Error("request past the burst should be limited")
	}

	// One token refills after 500ms at 2 req/s
	time.Sleep(550 * time.Millisecond)

	if !rl.Allow(ip) {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())
	defer rl.Stop()

	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.2")
	rl.Allow("203.0.113.3")

	rl.mu.Lock()
	for _, elem := range rl.buckets {
		elem.Value.(*limiterBucket).lastAccess = time.Now().Add(-time.Hour)
	}
	rl.mu.Unlock()

	rl.Cleanup(30 * time.Minute)

	rl.mu.RLock()
	remaining := len(rl.buckets)
	rl.mu.RUnlock()
	if remaining != 0 {
		t.Errorf("%d idle limiters survived cleanup, want 0", remaining)
	}
}

func TestRateLimiter_CleanupKeepsActive(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())
	defer rl.Stop()

	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.2")

	rl.mu.Lock()
	rl.buckets["203.0.113.1"].Value.(*limiterBucket).lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.Cleanup(30 * time.Minute)

	rl.mu.RLock()
	_, active := rl.buckets["203.0.113.2"]
	remaining := len(rl.buckets)
	rl.mu.RUnlock()

	if remaining != 1 {
		t.Errorf("%d limiters remain, want 1", remaining)
	}
	if !active {
		t.Error("recently used limiter should survive cleanup")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, 100, slog.Default())
	defer rl.Stop()

	const goroutines = 10
	done := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		go func(n int) {
			ip := fmt.Sprintf("203.0.113.%d", n)
			for j := 0; j < 10; j++ {
				rl.Allow(ip)
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
}

func TestNewRegistrationLimiter_Defaults(t *testing.T) {
	rl := NewRegistrationLimiter(0, 0, nil)
	defer rl.Stop()

	if rl.maxPerWindow != DefaultMaxRegistrationsPerWindow {
		t.Errorf("maxPerWindow = %d, want %d", rl.maxPerWindow, DefaultMaxRegistrationsPerWindow)
	}
	if rl.window != DefaultRegistrationWindow {
		t.Errorf("window = %v, want %v", rl.window, DefaultRegistrationWindow)
	}
}

func TestRegistrationLimiter_Allow(t *testing.T) {
	rl := NewRegistrationLimiter(3, time.Hour, slog.Default())
	defer rl.Stop()

	const ip = "203.0.113.7"

	for i := 0; i < 3; i++ {
		if !rl.Allow(ip) {
			t.Errorf("registration %d within window should be allowed", i+1)
		}
	}
	if rl.Allow(ip) {
		t.Error("registration past the window limit should be rejected")
	}
	if !rl.Allow("203.0.113.8") {
		t.Error("a different IP has its own window and should be allowed")
	}
}

func TestRegistrationLimiter_WindowSlides(t *testing.T) {
	rl := NewRegistrationLimiter(1, 100*time.Millisecond, slog.Default())
	defer rl.Stop()

	const ip = "203.0.113.7"

	if !rl.Allow(ip) {
		t.Fatal("first registration should be allowed")
	}
	if rl.Allow(ip) {
		t.Error("second registration inside the window should be rejected")
	}

	time.Sleep(150 * time.Millisecond)

	if !rl.Allow(ip) {
		t.Error("registration after the window slid should be allowed")
	}
}

func TestRegistrationLimiter_Cleanup(t *testing.T) {
	rl := NewRegistrationLimiter(5, 50*time.Millisecond, slog.Default())
	defer rl.Stop()

	rl.Allow("203.0.113.1")
	rl.Allow("203.0.113.2")

	time.Sleep(80 * time.Millisecond)
	rl.cleanup()

	rl.mu.Lock()
	remaining := len(rl.history)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d aged-out histories survived cleanup, want 0", remaining)
	}
}

func TestRegistrationLimiter_StopIdempotent(t *testing.T) {
	rl := NewRegistrationLimiter(5, time.Hour, slog.Default())
	rl.Stop()
	rl.Stop()
}
