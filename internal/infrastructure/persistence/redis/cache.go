// Package redis implements the optional Redis layer: a read-through cache for
// accounts and progress records, a fixed-window rate limiter and the pub/sub
// transport for the distributed event bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss: the key is absent or expired.
var ErrCacheMiss = errors.New("redis: cache miss")

// Все ключи живут под одним префиксом, чтобы их можно было сбросить разом.
const namespace = "alphawulf"

func key(parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

func AccountKey(id string) string         { return key("account", id) }
func TelegramKey(telegramID int64) string { return key("account", "tg", strconv.FormatInt(telegramID, 10)) }
func ProgressKey(accountID string) string { return key("progress", accountID) }
func rateLimitKey(subject string) string  { return key("ratelimit", subject) }

// Cache is a thin JSON layer over go-redis. It also serves as the rate-limit
// counter and the event bus transport.
type Cache struct {
	rdb redis.UniversalClient
}

// Connect dials the redis:// (or rediss://) URL and pings once.
func Connect(ctx context.Context, url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Cache{rdb: rdb}, nil
}

func (c *Cache) Close() error                   { return c.rdb.Close() }
func (c *Cache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// ══════════════════════════════════════════════════════════════════════════════
// JSON VALUES
// ══════════════════════════════════════════════════════════════════════════════

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Get decodes the value under key into dest or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// VERSIONED VALUES
// Хэш {v: версия, d: JSON}. Запись с версией не новее сохранённой отбрасывается,
// поэтому медленный читатель не может затереть более свежую запись.
// ══════════════════════════════════════════════════════════════════════════════

var setIfNewer = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "v")
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "v", ARGV[1], "d", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// SetVersioned stores value under key unless the cached version is equal or
// newer. It reports whether the value was written.
func (c *Cache) SetVersioned(ctx context.Context, key string, version int64, value any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("redis: encode %s: %w", key, err)
	}
	n, err := setIfNewer.Run(ctx, c.rdb, []string{key}, version, raw, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetVersioned decodes a value written by SetVersioned or returns ErrCacheMiss.
func (c *Cache) GetVersioned(ctx context.Context, key string, dest any) error {
	raw, err := c.rdb.HGet(ctx, key, "d").Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITING
// ══════════════════════════════════════════════════════════════════════════════

// fixedWindow increments the counter and starts its TTL on the first hit.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Allow counts one hit for subject and reports whether it is within limit
// for the current window.
func (c *Cache) Allow(ctx context.Context, subject string, limit int, window time.Duration) (bool, error) {
	n, err := fixedWindow.Run(ctx, c.rdb, []string{rateLimitKey(subject)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(limit), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB
// ══════════════════════════════════════════════════════════════════════════════

func (c *Cache) Publish(ctx context.Context, channel, message string) error {
	return c.rdb.Publish(ctx, channel, message).Err()
}

// Subscribe waits for the subscription to be confirmed, then forwards message
// payloads until ctx ends or the returned close function is called.
func (c *Cache) Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error) {
	sub := c.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close, nil
}
