package security

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxRegistrationsPerWindow is the default per-IP registration limit
	DefaultMaxRegistrationsPerWindow = 10

	// DefaultRegistrationWindow is the default sliding window
	DefaultRegistrationWindow = time.Hour

	// defaultRegistrationCleanupInterval is how often idle entries are pruned
	defaultRegistrationCleanupInterval = 15 * time.Minute
)

// RegistrationLimiter provides sliding-window rate limiting for dynamic
// client registration, keyed by client IP. Registration is unauthenticated,
// so without a window limit one caller could fill the client store.
type RegistrationLimiter struct {
	mu           sync.Mutex
	history      map[string][]time.Time // IP -> registration timestamps within window
	maxPerWindow int
	window       time.Duration
	logger       *slog.Logger
	stopCleanup  chan struct{}
	stopOnce     sync.Once
}

// NewRegistrationLimiter creates a registration limiter. Non-positive values
// fall back to the defaults.
func NewRegistrationLimiter(maxPerWindow int, window time.Duration, logger *slog.Logger) *RegistrationLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxRegistrationsPerWindow
	}
	if window <= 0 {
		window = DefaultRegistrationWindow
	}

	rl := &RegistrationLimiter{
		history:      make(map[string][]time.Time),
		maxPerWindow: maxPerWindow,
		window:       window,
		logger:       logger,
		stopCleanup:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records a registration attempt from ip and reports whether it is
// within the window limit.
func (rl *RegistrationLimiter) Allow(ip string) bool {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.history[ip][:0]
	for _, t := range rl.history[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.maxPerWindow {
		rl.history[ip] = recent
		rl.logger.Debug("Registration rate limit hit",
			"ip", ip,
			"count", len(recent),
			"max_per_window", rl.maxPerWindow)
		return false
	}

	rl.history[ip] = append(recent, now)
	return true
}

func (rl *RegistrationLimiter) cleanupLoop() {
	ticker := time.NewTicker(defaultRegistrationCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops IPs whose entire history has aged out of the window
func (rl *RegistrationLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, times := range rl.history {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(rl.history, ip)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (rl *RegistrationLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}
