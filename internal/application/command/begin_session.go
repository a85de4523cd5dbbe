// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEGIN SESSION COMMAND
// Opens a new practice or exam session for a learner. An already open
// session is finalized as abandoned first, so at most one session per
// learner is ever active.
// ══════════════════════════════════════════════════════════════════════════════

// BeginSessionCommand contains the data to open a session.
type BeginSessionCommand struct {
	// LearnerID is the learner opening the session.
	LearnerID string

	// Mode is "practice" or "exam".
	Mode string

	// Timezone is an optional IANA zone name. When set it is persisted on
	// the learner's progress and shifts the daily quota day boundary.
	Timezone string

	// Timestamp is when the session starts (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c BeginSessionCommand) Validate() error {
	if !learner.ID(c.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	if !session.Mode(c.Mode).IsValid() {
		return shared.ErrInvalidSessionMode
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return shared.NewDomainError("session", "Begin", shared.ErrInvalidInput, "unknown timezone")
		}
	}
	return nil
}

// BeginSessionResult contains the result of opening a session.
type BeginSessionResult struct {
	// SessionID is the new session's identifier.
	SessionID string

	// Mode is the session mode.
	Mode string

	// StartedAt is when the session started.
	StartedAt time.Time

	// ReplacedSessionID is the previously active session that was swept
	// to make room, empty when there was none.
	ReplacedSessionID string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LearnerLocker serializes command execution per learner. Two concurrent
// commands for different learners run in parallel; for the same learner
// they run one at a time.
type LearnerLocker interface {
	Lock(key string)
	Unlock(key string)
}

// BeginSessionHandler handles the BeginSessionCommand.
type BeginSessionHandler struct {
	learnerRepo    learner.Repository
	sessionRepo    session.Repository
	locker         LearnerLocker
	eventPublisher shared.EventPublisher
}

// NewBeginSessionHandler creates a new BeginSessionHandler.
func NewBeginSessionHandler(
	learnerRepo learner.Repository,
	sessionRepo session.Repository,
	locker LearnerLocker,
	eventPublisher shared.EventPublisher,
) *BeginSessionHandler {
	return &BeginSessionHandler{
		learnerRepo:    learnerRepo,
		sessionRepo:    sessionRepo,
		locker:         locker,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the begin session command.
func (h *BeginSessionHandler) Handle(ctx context.Context, cmd BeginSessionCommand) (*BeginSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("begin_session: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	h.locker.Lock(cmd.LearnerID)
	defer h.locker.Unlock(cmd.LearnerID)

	result := &BeginSessionResult{Mode: cmd.Mode, StartedAt: timestamp}

	if cmd.Timezone != "" {
		progress, err := h.learnerRepo.GetOrCreate(ctx, learner.ID(cmd.LearnerID))
		if err != nil {
			return nil, fmt.Errorf("begin_session: failed to load progress: %w", err)
		}
		if progress.Timezone != cmd.Timezone {
			progress.Timezone = cmd.Timezone
			progress.UpdatedAt = timestamp
			if err := h.learnerRepo.Save(ctx, progress); err != nil {
				return nil, fmt.Errorf("begin_session: failed to save timezone: %w", err)
			}
		}
	}

	// A learner has at most one open session. An existing one is swept as
	// abandoned rather than silently reused, because mixing a stale answer
	// log into a fresh session would skew qualification.
	active, err := h.sessionRepo.GetActive(ctx, learner.ID(cmd.LearnerID))
	if err == nil && active != nil {
		summary := active.Abandon(timestamp)
		if err := h.sessionRepo.Save(ctx, active); err != nil {
			return nil, fmt.Errorf("begin_session: failed to sweep active session: %w", err)
		}
		result.ReplacedSessionID = active.ID.String()
		_ = h.eventPublisher.Publish(shared.NewSessionFinishedEvent(
			cmd.LearnerID, active.ID.String(), active.Mode.String(),
			summary.QuestionsAnswered, summary.CorrectAnswers, summary.Accuracy, true,
		))
	} else if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("begin_session: failed to check active session: %w", err)
	}

	s, err := session.New(learner.ID(cmd.LearnerID), session.Mode(cmd.Mode), timestamp)
	if err != nil {
		return nil, fmt.Errorf("begin_session: %w", err)
	}
	if err := h.sessionRepo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("begin_session: failed to create session: %w", err)
	}

	result.SessionID = s.ID.String()
	_ = h.eventPublisher.Publish(shared.NewSessionStartedEvent(cmd.LearnerID, result.SessionID, cmd.Mode))

	return result, nil
}
