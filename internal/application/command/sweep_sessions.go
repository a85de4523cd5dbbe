package command

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP ABANDONED SESSIONS COMMAND
// Finalizes sessions whose last activity is older than the idle timeout.
// Swept sessions are marked abandoned: they never qualify and are never
// folded into lifetime aggregates. Run periodically by the scheduler.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultIdleTimeout is how long a session may sit without answers before
// the sweep abandons it.
const DefaultIdleTimeout = 2 * time.Hour

// SweepSessionsCommand contains the sweep parameters.
type SweepSessionsCommand struct {
	// IdleTimeout overrides DefaultIdleTimeout when positive.
	IdleTimeout time.Duration

	// Timestamp is the sweep's reference time (defaults to now if zero).
	Timestamp time.Time
}

// SweepSessionsResult contains the sweep outcome.
type SweepSessionsResult struct {
	// Swept is how many sessions were abandoned.
	Swept int

	// Failed is how many sessions could not be saved.
	Failed int

	// SweptSessionIDs lists the abandoned sessions.
	SweptSessionIDs []string
}

// SweepSessionsHandler handles the SweepSessionsCommand.
type SweepSessionsHandler struct {
	sessionRepo    session.Repository
	locker         LearnerLocker
	eventPublisher shared.EventPublisher
}

// NewSweepSessionsHandler creates a new SweepSessionsHandler.
func NewSweepSessionsHandler(
	sessionRepo session.Repository,
	locker LearnerLocker,
	eventPublisher shared.EventPublisher,
) *SweepSessionsHandler {
	return &SweepSessionsHandler{
		sessionRepo:    sessionRepo,
		locker:         locker,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the sweep.
func (h *SweepSessionsHandler) Handle(ctx context.Context, cmd SweepSessionsCommand) (*SweepSessionsResult, error) {
	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	idleTimeout := cmd.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	cutoff := timestamp.Add(-idleTimeout)
	idle, err := h.sessionRepo.FindIdleUnfinished(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweep_sessions: failed to find idle sessions: %w", err)
	}

	result := &SweepSessionsResult{}
	for _, s := range idle {
		if err := h.sweepOne(ctx, s, timestamp); err != nil {
			result.Failed++
			continue
		}
		result.Swept++
		result.SweptSessionIDs = append(result.SweptSessionIDs, s.ID.String())
	}

	return result, nil
}

// sweepOne abandons a single session under the learner's lock. The
// session is re-checked after acquiring the lock in case an explicit
// finish raced the sweep.
func (h *SweepSessionsHandler) sweepOne(ctx context.Context, stale *session.Session, now time.Time) error {
	learnerID := stale.LearnerID.String()
	h.locker.Lock(learnerID)
	defer h.locker.Unlock(learnerID)

	s, err := h.sessionRepo.GetByID(ctx, stale.ID)
	if err != nil {
		return err
	}
	if s.Finished() {
		return nil
	}

	summary := s.Abandon(now)
	if err := h.sessionRepo.Save(ctx, s); err != nil {
		return err
	}

	_ = h.eventPublisher.Publish(shared.NewSessionFinishedEvent(
		learnerID, s.ID.String(), s.Mode.String(),
		summary.QuestionsAnswered, summary.CorrectAnswers, summary.Accuracy, true,
	))
	return nil
}
