// Package retry repeats an operation with capped exponential backoff.
// Two presets exist: CAS for lost version races on progress records and
// TelegramAPI for Bot API calls.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy describes how an operation is repeated. The zero value runs the
// operation once.
type Policy struct {
	Attempts int           // total calls, first one included
	Base     time.Duration // wait after the first failure
	Cap      time.Duration // upper bound for a single wait
	Jitter   float64       // 0..1, share of each wait that is randomised

	// Retryable filters errors. Nil means every non-permanent error.
	Retryable func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as final. Do returns the unwrapped err immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls op until it succeeds or the policy gives up. The last error
// from op is returned, unless ctx ended before op ever ran.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for n := 1; ; n++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = op(ctx)
		if err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if n >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		wait := p.backoff(n)
		if p.OnRetry != nil {
			p.OnRetry(n, err, wait)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

// backoff is Base·2^(n-1), capped, with ±Jitter/2 spread.
func (p Policy) backoff(n int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	wait := p.Base
	for i := 1; i < n && (p.Cap <= 0 || wait < p.Cap); i++ {
		wait *= 2
	}
	if p.Cap > 0 && wait > p.Cap {
		wait = p.Cap
	}
	if p.Jitter > 0 {
		spread := float64(wait) * min(p.Jitter, 1)
		wait += time.Duration(spread * (rand.Float64() - 0.5))
	}
	return max(wait, 0)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// CAS retries read-modify-write cycles that lost a version race.
// The competing writer has already committed, so waits stay short.
func CAS(attempts int, retryable func(error) bool) Policy {
	return Policy{
		Attempts:  attempts,
		Base:      5 * time.Millisecond,
		Cap:       200 * time.Millisecond,
		Jitter:    1,
		Retryable: retryable,
	}
}

// TelegramAPI retries Bot API calls: 200ms, 400ms, 800ms.
func TelegramAPI(retryable func(error) bool) Policy {
	return Policy{
		Attempts:  4,
		Base:      200 * time.Millisecond,
		Cap:       5 * time.Second,
		Jitter:    0.2,
		Retryable: retryable,
	}
}
