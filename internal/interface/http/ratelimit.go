package http

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter decides whether a client key may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryRateLimiter keeps one token bucket per client key. Limits are per
// process; use RedisRateLimiter when several instances serve traffic.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRateLimiter allows `requests` per `window` with a burst of the
// full window quota, refilled evenly.
func NewMemoryRateLimiter(requests int, window time.Duration) *MemoryRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	rl := &MemoryRateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		idle:     window,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow implements RateLimiter.
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow(), nil
}

// Close stops the cleanup goroutine.
func (rl *MemoryRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup drops buckets idle for longer than a window.
func (rl *MemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.limiters {
				if now.Sub(v.lastSeen) > rl.idle {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// WindowCounter is a shared fixed-window counter (the Redis cache implements it).
type WindowCounter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter shares the limit across instances through a WindowCounter.
type RedisRateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
}

// NewRedisRateLimiter creates a shared limiter.
func NewRedisRateLimiter(counter WindowCounter, requests int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{counter: counter, limit: requests, window: window}
}

// Allow implements RateLimiter.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return rl.counter.Allow(ctx, key, rl.limit, rl.window)
}
