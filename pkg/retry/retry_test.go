package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func countingOp(calls *int, failFirst int, err error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= failFirst {
			return err
		}
		return nil
	}
}

func TestDo_RecoversAfterFailures(t *testing.T) {
	calls := 0
	err := Policy{Attempts: 5}.Do(context.Background(), countingOp(&calls, 2, errBusy))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), countingOp(&calls, 10, errBusy))

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStopsAndUnwraps(t *testing.T) {
	calls := 0
	err := Policy{Attempts: 5}.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errBusy)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, errBusy, err)
	assert.NoError(t, Permanent(nil))
}

func TestDo_RetryableFilter(t *testing.T) {
	other := errors.New("other")
	calls := 0
	p := Policy{Attempts: 5, Retryable: func(err error) bool { return errors.Is(err, errBusy) }}

	err := p.Do(context.Background(), countingOp(&calls, 10, other))
	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAndReportsRetries(t *testing.T) {
	calls := 0
	var seen []int
	p := Policy{Attempts: 3, OnRetry: func(n int, _ error, _ time.Duration) { seen = append(seen, n) }}

	err := p.Do(context.Background(), countingOp(&calls, 10, errBusy))
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDo_CancelledBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Policy{Attempts: 3}.Do(ctx, countingOp(&calls, 0, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_CancelDuringWaitReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 3, Base: time.Hour, OnRetry: func(int, error, time.Duration) { cancel() }}

	calls := 0
	err := p.Do(ctx, countingOp(&calls, 10, errBusy))
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestBackoff_DoublesUpToCap(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Cap: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.backoff(4))
	assert.Equal(t, time.Second, p.backoff(5))
	assert.Equal(t, time.Second, p.backoff(60))
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	p := CAS(5, nil)
	for i := 0; i < 100; i++ {
		wait := p.backoff(3)
		assert.GreaterOrEqual(t, wait, 10*time.Millisecond)
		assert.LessOrEqual(t, wait, 30*time.Millisecond)
	}
}
