// Package command contains write operations (CQRS - Commands): account
// provisioning, experience awards, manual achievement grants and catalog seeding.
//
// Every handler that changes a progress record follows the same cycle:
// load, apply the pure domain rules, save with a version check, and retry
// the whole cycle when another writer won the race.
package command

import (
	"errors"

	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/pkg/retry"
)

// DefaultMaxAttempts bounds the optimistic-lock retry loop.
const DefaultMaxAttempts = 5

// isVersionConflict reports whether the error is a lost compare-and-swap.
func isVersionConflict(err error) bool {
	return errors.Is(err, shared.ErrConcurrentModification)
}

func newLockRetrier(maxAttempts int) retry.Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return retry.CAS(maxAttempts, isVersionConflict)
}

// Observer receives counters from the command handlers. Metrics implement it.
type Observer interface {
	AccountProvisioned(created bool)
	ProvisionRace()
	ExperienceAwarded(amount int64, levelsCrossed, unlocked int)
	VersionConflict(operation string)
}

type nopObserver struct{}

func (nopObserver) AccountProvisioned(bool)           {}
func (nopObserver) ProvisionRace()                    {}
func (nopObserver) ExperienceAwarded(int64, int, int) {}
func (nopObserver) VersionConflict(string)            {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// publishAll publishes events in order. Publication happens after commit and
// never fails the command.
func publishAll(publisher shared.EventPublisher, events []shared.Event) []error {
	if publisher == nil {
		return nil
	}
	var errs []error
	for _, e := range events {
		if err := publisher.Publish(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
