// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Entitlement errors
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrUnknownTier   = errors.New("unknown entitlement tier")

	// Persistence errors
	ErrPersistence = errors.New("persistence failure")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "learner", "session", "entitlement"
	Op      string // Operation that failed, e.g., "SubmitAnswer", "Finish"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Learner domain errors
var (
	ErrLearnerNotFound  = NewDomainError("learner", "Find", ErrNotFound, "learner progress not found")
	ErrInvalidLearnerID = NewDomainError("learner", "Validate", ErrInvalidID, "invalid learner ID")
	ErrInvalidCategory  = NewDomainError("learner", "Validate", ErrInvalidInput, "invalid category")
	ErrTierOutOfRange   = NewDomainError("learner", "Validate", ErrValueOutOfRange, "difficulty tier out of range")
)

// Session domain errors
var (
	ErrSessionNotFound        = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionAlreadyExists   = NewDomainError("session", "Create", ErrAlreadyExists, "session already exists")
	ErrSessionAlreadyFinished = NewDomainError("session", "Append", ErrInvalidState, "session already finished")
	ErrSessionNotFinished     = NewDomainError("session", "Summarize", ErrInvalidState, "session not finished")
	ErrInvalidSessionMode     = NewDomainError("session", "Validate", ErrInvalidInput, "invalid session mode")
)

// Entitlement domain errors
var (
	ErrDailyQuotaExceeded = NewDomainError("entitlement", "Consume", ErrQuotaExceeded, "daily question limit reached")
	ErrTierNotConfigured  = NewDomainError("entitlement", "Resolve", ErrUnknownTier, "entitlement tier not configured")
)

// External service errors
var (
	ErrIdentityUnavailable = NewDomainError("identity", "Resolve", ErrServiceUnavailable, "identity provider is unavailable")
	ErrIdentityTimeout     = NewDomainError("identity", "Resolve", ErrTimeout, "identity provider request timeout")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded checks if the error is a quota rejection.
// Quota rejections are recoverable: the caller should surface an
// upgrade or retry-tomorrow path, not a failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsInvalidSession checks if the error is a session lifecycle problem:
// the session is unknown or was already finished.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionAlreadyFinished)
}

// IsPersistence checks if the error is a storage failure. The engine
// fails the whole operation on these rather than committing a partial
// update.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
