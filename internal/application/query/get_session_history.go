package query

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION HISTORY QUERY
// Lists a learner's finalized sessions, newest first. Used by clients
// to render the study calendar and per-session review screens.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultHistoryLimit is the page size when the caller does not ask
	// for one.
	DefaultHistoryLimit = 20

	// MaxHistoryLimit caps the page size.
	MaxHistoryLimit = 100
)

// GetSessionHistoryQuery contains the session history request.
type GetSessionHistoryQuery struct {
	// LearnerID is the learner whose sessions to list.
	LearnerID string

	// Limit caps the number of sessions returned (0 means the default).
	Limit int
}

// Validate checks the query parameters.
func (q GetSessionHistoryQuery) Validate() error {
	if !learner.ID(q.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	if q.Limit < 0 {
		return shared.NewDomainError("session", "History", shared.ErrNegativeValue, "limit cannot be negative")
	}
	return nil
}

// SessionHistoryEntryDTO is one finalized session in the history list.
type SessionHistoryEntryDTO struct {
	// SessionID is the session.
	SessionID string `json:"session_id"`

	// Mode is "practice" or "exam".
	Mode string `json:"mode"`

	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the session was finalized.
	FinishedAt time.Time `json:"finished_at"`

	// QuestionsAnswered is the session's answered count.
	QuestionsAnswered int `json:"questions_answered"`

	// CorrectAnswers is the session's correct count.
	CorrectAnswers int `json:"correct_answers"`

	// Accuracy is the session accuracy, 0 for an empty session.
	Accuracy float64 `json:"accuracy"`

	// TimeSpentSeconds is the session duration.
	TimeSpentSeconds float64 `json:"time_spent_seconds"`

	// Abandoned marks sessions swept by the idle timeout.
	Abandoned bool `json:"abandoned"`

	// Qualified reports whether the session met the qualification criteria.
	Qualified bool `json:"qualified"`
}

// SessionHistoryDTO is the session history read model.
type SessionHistoryDTO struct {
	// LearnerID is the learner.
	LearnerID string `json:"learner_id"`

	// Sessions lists finalized sessions, newest first.
	Sessions []SessionHistoryEntryDTO `json:"sessions"`

	// Count is len(Sessions).
	Count int `json:"count"`
}

// GetSessionHistoryHandler handles the GetSessionHistoryQuery.
type GetSessionHistoryHandler struct {
	sessionRepo session.Repository
}

// NewGetSessionHistoryHandler creates a new GetSessionHistoryHandler.
func NewGetSessionHistoryHandler(sessionRepo session.Repository) *GetSessionHistoryHandler {
	return &GetSessionHistoryHandler{sessionRepo: sessionRepo}
}

// Handle executes the query. A learner with no finished sessions gets an
// empty list rather than an error.
func (h *GetSessionHistoryHandler) Handle(ctx context.Context, q GetSessionHistoryQuery) (*SessionHistoryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_session_history: %w", err)
	}

	limit := q.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	sessions, err := h.sessionRepo.ListFinishedByLearner(ctx, learner.ID(q.LearnerID), limit)
	if err != nil {
		return nil, fmt.Errorf("get_session_history: failed to list sessions: %w", err)
	}

	entries := make([]SessionHistoryEntryDTO, 0, len(sessions))
	for _, s := range sessions {
		summary := s.Summarize()
		qualification := session.EvaluateQualification(summary)
		entries = append(entries, SessionHistoryEntryDTO{
			SessionID:         summary.SessionID.String(),
			Mode:              summary.Mode.String(),
			StartedAt:         summary.StartedAt,
			FinishedAt:        summary.FinishedAt,
			QuestionsAnswered: summary.QuestionsAnswered,
			CorrectAnswers:    summary.CorrectAnswers,
			Accuracy:          summary.Accuracy,
			TimeSpentSeconds:  summary.TimeSpent.Seconds(),
			Abandoned:         summary.Abandoned,
			Qualified:         qualification.Qualifies,
		})
	}

	return &SessionHistoryDTO{
		LearnerID: q.LearnerID,
		Sessions:  entries,
		Count:     len(entries),
	}, nil
}
