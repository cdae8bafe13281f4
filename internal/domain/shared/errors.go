// Package shared holds the error taxonomy, events and small value helpers
// common to the account and progress domains. It imports only the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Kinds. Each one belongs to exactly one Class (see Classify).
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation    = errors.New("validation failed")
	ErrInvalidID     = errors.New("malformed identifier")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("empty value")
	ErrNegativeValue = errors.New("negative value")

	// ErrUnauthorized covers bad signatures and bad session tokens alike.
	ErrUnauthorized = errors.New("unauthorized")
	ErrExpired      = errors.New("expired")

	// ErrConcurrentModification is a lost compare-and-swap on a versioned record.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrServiceUnavailable = errors.New("service unavailable")
)

// Class is the caller-facing category of an error.
type Class int

const (
	ClassInternal Class = iota
	ClassInvalidInput
	ClassUnauthorized
	ClassNotFound
	ClassConflict
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassInvalidInput:
		return "invalid_input"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassNotFound:
		return "not_found"
	case ClassConflict:
		return "conflict"
	case ClassTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Classify reports the Class of err. Unknown errors are ClassInternal.
// Authentication is checked first so a wrapped signature failure never
// leaks as a validation message.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrExpired):
		return ClassUnauthorized
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyValue),
		errors.Is(err, ErrNegativeValue):
		return ClassInvalidInput
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConcurrentModification):
		return ClassConflict
	case errors.Is(err, ErrServiceUnavailable):
		return ClassTransient
	default:
		return ClassInternal
	}
}

// DomainError carries where an error happened and which kind it is.
type DomainError struct {
	Domain  string // "account", "progress", "session", ...
	Op      string
	Kind    error
	Message string // safe to show to API clients
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewDomainError builds a DomainError without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError builds a DomainError around cause.
func WrapError(domain, op string, kind error, message string, cause error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: cause}
}

// Unavailable оборачивает ошибку хранилища как временную инфраструктурную.
// Вызывающая сторона может безопасно повторить операцию целиком.
func Unavailable(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrServiceUnavailable, "store unavailable", err)
}

func IsNotFound(err error) bool      { return Classify(err) == ClassNotFound }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsValidation(err error) bool    { return Classify(err) == ClassInvalidInput }
func IsUnauthorized(err error) bool  { return Classify(err) == ClassUnauthorized }

// IsRetryable reports whether repeating the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrConcurrentModification)
}
