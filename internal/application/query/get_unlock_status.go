// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET UNLOCK STATUS QUERY
// Reports the content-unlock gate state and how far the learner is from
// opening it. Used by clients to render the locked/unlocked bank badge.
// ══════════════════════════════════════════════════════════════════════════════

// GetUnlockStatusQuery contains the unlock status request.
type GetUnlockStatusQuery struct {
	// LearnerID is the learner to report on.
	LearnerID string
}

// Validate checks the query parameters.
func (q GetUnlockStatusQuery) Validate() error {
	if !learner.ID(q.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	return nil
}

// UnlockStatusDTO is the unlock gate read model.
type UnlockStatusDTO struct {
	// LearnerID is the learner.
	LearnerID string `json:"learner_id"`

	// State is "restricted" or "unlocked".
	State string `json:"state"`

	// Unlocked reports whether the gate has fired.
	Unlocked bool `json:"unlocked"`

	// QualifyingSessions is the lifetime qualifying-session count.
	QualifyingSessions int `json:"qualifying_sessions"`

	// SessionsRequired is the gate threshold.
	SessionsRequired int `json:"sessions_required"`

	// SessionsRemaining is how many more qualifying sessions open the gate.
	SessionsRemaining int `json:"sessions_remaining"`
}

// GetUnlockStatusHandler handles the GetUnlockStatusQuery.
type GetUnlockStatusHandler struct {
	learnerRepo learner.Repository
}

// NewGetUnlockStatusHandler creates a new GetUnlockStatusHandler.
func NewGetUnlockStatusHandler(learnerRepo learner.Repository) *GetUnlockStatusHandler {
	return &GetUnlockStatusHandler{learnerRepo: learnerRepo}
}

// Handle executes the query. A learner with no progress record yet is
// reported as restricted with zero qualifying sessions rather than as
// an error.
func (h *GetUnlockStatusHandler) Handle(ctx context.Context, q GetUnlockStatusQuery) (*UnlockStatusDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_unlock_status: %w", err)
	}

	progress, err := h.learnerRepo.GetByID(ctx, learner.ID(q.LearnerID))
	if err != nil {
		if shared.IsNotFound(err) {
			return &UnlockStatusDTO{
				LearnerID:          q.LearnerID,
				State:              string(learner.StateRestricted),
				SessionsRequired:   learner.QualifyingSessionsRequired,
				SessionsRemaining:  learner.QualifyingSessionsRequired,
				QualifyingSessions: 0,
			}, nil
		}
		return nil, fmt.Errorf("get_unlock_status: failed to load progress: %w", err)
	}

	return &UnlockStatusDTO{
		LearnerID:          q.LearnerID,
		State:              string(progress.Unlock),
		Unlocked:           progress.Unlock.Unlocked(),
		QualifyingSessions: progress.QualifyingSessions,
		SessionsRequired:   learner.QualifyingSessionsRequired,
		SessionsRemaining:  progress.SessionsRemaining(),
	}, nil
}
