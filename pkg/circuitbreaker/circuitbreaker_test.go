package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(Config{Name: "tg", FailureThreshold: 2, Timeout: time.Minute, Now: func() time.Time { return now }})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []State
	cb := New(Config{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		Now:              func() time.Time { return now },
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	now = now.Add(2 * time.Minute)

	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, IsFailure: func(err error) bool { return false }})

	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateReportsHalfOpenAfterCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute, Now: func() time.Time { return now }})

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(Config{FailureThreshold: 1, Timeout: time.Minute, Now: func() time.Time { return now }})

	_ = cb.Execute(context.Background(), fail)
	now = now.Add(2 * time.Minute)

	done, err := cb.Allow()
	assert.NoError(t, err)
	_, err = cb.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	done(errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(7).String())
}
