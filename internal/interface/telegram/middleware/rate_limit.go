// Package middleware contains Telegram bot middlewares for request processing.
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Защищает бота от спама: token bucket на каждого пользователя.
// Повторные нарушения приводят к временной блокировке.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained command rate per user.
	RequestsPerMinute int

	// BurstSize is the number of commands a user may send back to back.
	BurstSize int

	// BanThreshold is the number of violations within BanWindow that
	// triggers a temporary ban. Zero disables bans.
	BanThreshold int
	BanWindow    time.Duration
	BanDuration  time.Duration

	// IdleTTL is how long an untouched bucket is kept in memory.
	IdleTTL time.Duration

	// Now is used by tests.
	Now func() time.Time
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		BurstSize:         5,
		BanThreshold:      3,
		BanWindow:         5 * time.Minute,
		BanDuration:       10 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	IsBanned   bool
}

type userBucket struct {
	limiter      *rate.Limiter
	lastSeen     time.Time
	violations   int
	lastViolated time.Time
	bannedUntil  time.Time
}

// RateLimiter implements per-user rate limiting.
type RateLimiter struct {
	config RateLimitConfig

	mu      sync.Mutex
	buckets map[int64]*userBucket
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 20
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[int64]*userBucket),
	}
}

// Check checks if a command from the given user is allowed.
func (rl *RateLimiter) Check(telegramID int64) RateLimitResult {
	now := rl.config.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[telegramID]
	if !ok {
		every := time.Minute / time.Duration(rl.config.RequestsPerMinute)
		b = &userBucket{limiter: rate.NewLimiter(rate.Every(every), rl.config.BurstSize)}
		rl.buckets[telegramID] = b
	}
	b.lastSeen = now

	if now.Before(b.bannedUntil) {
		return RateLimitResult{IsBanned: true, RetryAfter: b.bannedUntil.Sub(now)}
	}

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		rl.recordViolation(b, now)
		if now.Before(b.bannedUntil) {
			return RateLimitResult{IsBanned: true, RetryAfter: b.bannedUntil.Sub(now)}
		}
		return RateLimitResult{RetryAfter: delay}
	}
	return RateLimitResult{Allowed: true}
}

func (rl *RateLimiter) recordViolation(b *userBucket, now time.Time) {
	if rl.config.BanThreshold <= 0 {
		return
	}
	if now.Sub(b.lastViolated) > rl.config.BanWindow {
		b.violations = 0
	}
	b.violations++
	b.lastViolated = now
	if b.violations >= rl.config.BanThreshold {
		b.bannedUntil = now.Add(rl.config.BanDuration)
		b.violations = 0
	}
}

// Reset clears the state for a user.
func (rl *RateLimiter) Reset(telegramID int64) {
	rl.mu.Lock()
	delete(rl.buckets, telegramID)
	rl.mu.Unlock()
}

// Cleanup drops buckets idle for longer than IdleTTL. Returns the number removed.
func (rl *RateLimiter) Cleanup() int {
	now := rl.config.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.config.IdleTTL && !now.Before(b.bannedUntil) {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}
