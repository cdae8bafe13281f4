package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:5432: connection refused")

	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassInternal},
		{"plain", errors.New("boom"), ClassInternal},
		{"unauthorized", NewDomainError("session", "Parse", ErrUnauthorized, "bad token"), ClassUnauthorized},
		{"expired", fmt.Errorf("verify: %w", ErrExpired), ClassUnauthorized},
		{"empty", NewDomainError("achievement", "Validate", ErrEmptyValue, "name is required"), ClassInvalidInput},
		{"bad id", ErrInvalidID, ClassInvalidInput},
		{"missing", NewDomainError("account", "Get", ErrNotFound, "account not found"), ClassNotFound},
		{"cas", NewDomainError("progress", "Save", ErrConcurrentModification, "modified"), ClassConflict},
		{"duplicate", ErrAlreadyExists, ClassConflict},
		{"store down", Unavailable("progress", "Get", cause), ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassify_UnauthorizedWinsOverValidation(t *testing.T) {
	err := WrapError("initdata", "Verify", ErrUnauthorized, "invalid init data", ErrInvalidInput)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsValidation(err))
}

func TestDomainError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("award: %w", Unavailable("progress", "Save", cause))

	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "award: progress.Save: store unavailable: disk full", err.Error())

	var de *DomainError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "Save", de.Op)
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "internal", Class(99).String())
}
