package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/pkg/logger"
	"github.com/alphawulf/alphawulf-hub/pkg/timeutil"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := timeutil.NewManualClock(time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 6, BurstSize: 2, Now: clock.Now})

	assert.True(t, rl.Check(1).Allowed)
	assert.True(t, rl.Check(1).Allowed)

	res := rl.Check(1)
	assert.False(t, res.Allowed)
	assert.False(t, res.IsBanned)
	assert.InDelta(t, 10*time.Second, res.RetryAfter, float64(time.Second))

	// Другой пользователь не затронут.
	assert.True(t, rl.Check(2).Allowed)

	clock.Advance(10 * time.Second)
	assert.True(t, rl.Check(1).Allowed)
}

func TestRateLimiter_BanAfterRepeatedViolations(t *testing.T) {
	clock := timeutil.NewManualClock(time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 1,
		BurstSize:         1,
		BanThreshold:      2,
		BanWindow:         time.Minute,
		BanDuration:       5 * time.Minute,
		Now:               clock.Now,
	})

	assert.True(t, rl.Check(1).Allowed)
	assert.False(t, rl.Check(1).IsBanned)

	res := rl.Check(1)
	assert.True(t, res.IsBanned)
	assert.Equal(t, 5*time.Minute, res.RetryAfter)

	clock.Advance(2 * time.Minute)
	assert.True(t, rl.Check(1).IsBanned)

	clock.Advance(4 * time.Minute)
	assert.True(t, rl.Check(1).Allowed)
}

func TestRateLimiter_CleanupAndReset(t *testing.T) {
	clock := timeutil.NewManualClock(time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1, IdleTTL: time.Minute, Now: clock.Now})

	rl.Check(1)
	rl.Check(2)
	assert.Zero(t, rl.Cleanup())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, rl.Cleanup())

	rl.Check(3)
	assert.False(t, rl.Check(3).Allowed)
	rl.Reset(3)
	assert.True(t, rl.Check(3).Allowed)
}

func TestRecovery_Run(t *testing.T) {
	m := NewRecoveryMiddleware(RecoveryConfig{Logger: logger.Discard()})

	res, err := m.Run(1, "ok", func() error { return nil })
	require.NoError(t, err)
	assert.False(t, res.Recovered)

	boom := errors.New("boom")
	res, err = m.Run(1, "fail", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Recovered)

	res, err = m.Run(7, "panic", func() error { panic("exploded") })
	require.NoError(t, err)
	require.True(t, res.Recovered)
	assert.Equal(t, DefaultRecoveryConfig().UserErrorMessage, res.UserMessage)
	assert.EqualError(t, res.PanicInfo.Err, "exploded")
	assert.Equal(t, int64(7), res.PanicInfo.TelegramID)
	assert.Equal(t, "panic", res.PanicInfo.Command)
	assert.NotEmpty(t, res.PanicInfo.Stack)
}

func TestRecovery_StackBudget(t *testing.T) {
	m := NewRecoveryMiddleware(RecoveryConfig{Logger: logger.Discard(), MaxPanicsPerMinute: 1})

	first, _ := m.Run(1, "panic", func() error { panic(errors.New("one")) })
	second, _ := m.Run(1, "panic", func() error { panic("two") })

	require.True(t, first.Recovered)
	require.True(t, second.Recovered)
	assert.NotEmpty(t, first.PanicInfo.Stack)
	assert.Empty(t, second.PanicInfo.Stack)
	assert.EqualError(t, first.PanicInfo.Err, "one")
}
