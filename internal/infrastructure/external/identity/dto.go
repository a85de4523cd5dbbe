package identity

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the identity provider's standard response envelope.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// EntitlementDTO is the provider's view of a learner's subscription.
type EntitlementDTO struct {
	// LearnerID is the provider's stable learner identifier.
	LearnerID string `json:"learner_id"`

	// Plan is the subscription plan name ("free", "monthly", ...).
	Plan string `json:"plan"`

	// Status is the subscription status ("active", "expired", "cancelled").
	Status string `json:"status"`

	// Timezone is the learner's configured IANA zone, empty if unset.
	Timezone string `json:"timezone,omitempty"`

	// ExpiresAt is when the current plan period ends, nil for free plans.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsActive reports whether the subscription is currently in force.
func (e EntitlementDTO) IsActive() bool {
	if e.Status != "active" {
		return false
	}
	if e.ExpiresAt != nil && e.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR DTOs
// ══════════════════════════════════════════════════════════════════════════════

// APIErrorDTO is a structured error response from the identity provider.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	return fmt.Sprintf("identity api error %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsServerError reports whether the provider failed rather than the request.
func (e *APIErrorDTO) IsServerError() bool {
	return e.Status >= 500
}
