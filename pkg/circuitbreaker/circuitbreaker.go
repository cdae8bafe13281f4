// Package circuitbreaker stops calling a failing dependency for a cool-down
// period. The Telegram client uses it so that an unreachable Bot API does not
// slow down every award that triggers a notification.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // calls pass
	StateOpen                  // calls fail fast until the cool-down ends
	StateHalfOpen              // one probe call decides
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ErrCircuitOpen is returned instead of calling the dependency.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int
	// Timeout is the open period before a probe. Default 30s.
	Timeout time.Duration
	// IsFailure filters errors that count. Nil counts all of them.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu      sync.Mutex
	state   State
	streak  int       // consecutive counted failures while closed
	reopen  time.Time // end of the open period
	probing bool
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Execute runs fn when the circuit lets it through and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	done(err)
	return err
}

// Allow reserves a call. The caller must pass the call's error to done.
func (b *Breaker) Allow() (done func(error), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return nil, ErrCircuitOpen
		}
		b.probing = true
	}
	return b.record, nil
}

// State is the effective state: an open circuit whose cool-down has passed
// reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// current moves open → half-open once the cool-down is over. Caller holds mu.
func (b *Breaker) current() State {
	if b.state == StateOpen && !b.cfg.Now().Before(b.reopen) {
		b.moveTo(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	counted := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))
	if !counted {
		b.streak = 0
		b.moveTo(StateClosed)
		return
	}

	b.streak++
	if b.state == StateHalfOpen || b.streak >= b.cfg.FailureThreshold {
		b.reopen = b.cfg.Now().Add(b.cfg.Timeout)
		b.moveTo(StateOpen)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to != StateOpen {
		b.streak = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
