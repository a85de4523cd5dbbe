package session

import (
	"context"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists session records. Unfinished sessions are mutable
// through Save; finished ones are append-only history.
type Repository interface {
	// Create stores a new session.
	Create(ctx context.Context, s *Session) error

	// GetByID returns a session by ID.
	// Returns shared.ErrSessionNotFound if it does not exist.
	GetByID(ctx context.Context, id ID) (*Session, error)

	// Save persists the session's current answer log and finalization state.
	Save(ctx context.Context, s *Session) error

	// GetActive returns the learner's newest unfinished session, or
	// shared.ErrSessionNotFound when there is none.
	GetActive(ctx context.Context, learnerID learner.ID) (*Session, error)

	// ListFinishedByLearner returns finalized sessions for analytics and
	// calendar display, newest first.
	ListFinishedByLearner(ctx context.Context, learnerID learner.ID, limit int) ([]*Session, error)

	// FindIdleUnfinished returns unfinished sessions whose last activity
	// is older than the cutoff. Used by the abandoned-session sweep.
	FindIdleUnfinished(ctx context.Context, cutoff time.Time) ([]*Session, error)
}
