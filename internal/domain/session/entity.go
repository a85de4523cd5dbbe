// Package session contains the practice/exam session domain model: the
// in-progress answer log, the finalized summary, and the qualification
// rules for exam-mode sessions.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID identifies a session.
type ID string

// NewID generates a fresh session identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// IsValid checks that the session ID is non-empty.
func (id ID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the session ID.
func (id ID) String() string {
	return string(id)
}

// Mode distinguishes untimed practice from timed exam sessions. Only
// exam sessions can qualify toward the content unlock.
type Mode string

const (
	// ModePractice is an untimed practice session.
	ModePractice Mode = "practice"

	// ModeExam is a timed exam session.
	ModeExam Mode = "exam"
)

// IsValid checks the mode is one of the two known values.
func (m Mode) IsValid() bool {
	return m == ModePractice || m == ModeExam
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// AnswerEvent is one answered question. Immutable once appended.
type AnswerEvent struct {
	// QuestionID identifies the question in the external content store.
	QuestionID string

	// Category is the question's category.
	Category learner.Category

	// SubCategory is the question's optional sub-category.
	SubCategory learner.SubCategory

	// IsCorrect records whether the answer was correct.
	IsCorrect bool

	// TimeTaken is how long the learner spent on the question.
	TimeTaken time.Duration

	// AnsweredAt is when the answer arrived.
	AnsweredAt time.Time
}

// Validate checks the event's required fields.
func (e AnswerEvent) Validate() error {
	if e.QuestionID == "" {
		return shared.NewDomainError("session", "Append", shared.ErrEmptyValue, "question_id is required")
	}
	if !e.Category.IsValid() {
		return shared.ErrInvalidCategory
	}
	if e.TimeTaken < 0 {
		return shared.NewDomainError("session", "Append", shared.ErrNegativeValue, "time_taken cannot be negative")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session accumulates a learner's answer events until finalization.
// It is owned exclusively by the session recorder until Finish, after
// which it is an immutable historical record.
type Session struct {
	// ID identifies the session.
	ID ID

	// LearnerID identifies the owning learner.
	LearnerID learner.ID

	// Mode is practice or exam.
	Mode Mode

	// StartedAt is when the session began.
	StartedAt time.Time

	// Answers is the ordered answer log.
	Answers []AnswerEvent

	// FinishedAt is set on finalization.
	FinishedAt *time.Time

	// Abandoned is true when the session was swept after its idle
	// timeout instead of being finished explicitly. Abandoned sessions
	// never qualify and are never folded into aggregates.
	Abandoned bool

	// summary caches the finalized summary so Finish is idempotent.
	summary *Summary
}

// New creates a session for a learner.
func New(learnerID learner.ID, mode Mode, startedAt time.Time) (*Session, error) {
	if !learnerID.IsValid() {
		return nil, shared.ErrInvalidLearnerID
	}
	if !mode.IsValid() {
		return nil, shared.ErrInvalidSessionMode
	}

	return &Session{
		ID:        NewID(),
		LearnerID: learnerID,
		Mode:      mode,
		StartedAt: startedAt,
	}, nil
}

// Restore rebuilds a session from persisted state, including an already
// finalized one (its cached summary is recomputed on demand).
func Restore(id ID, learnerID learner.ID, mode Mode, startedAt time.Time, answers []AnswerEvent, finishedAt *time.Time, abandoned bool) *Session {
	return &Session{
		ID:         id,
		LearnerID:  learnerID,
		Mode:       mode,
		StartedAt:  startedAt,
		Answers:    answers,
		FinishedAt: finishedAt,
		Abandoned:  abandoned,
	}
}

// Finished reports whether the session has been finalized.
func (s *Session) Finished() bool {
	return s.FinishedAt != nil
}

// IdleSince returns the time of the last activity: the last answer, or
// the session start when nothing has been answered.
func (s *Session) IdleSince() time.Time {
	if len(s.Answers) == 0 {
		return s.StartedAt
	}
	return s.Answers[len(s.Answers)-1].AnsweredAt
}

// Append adds an answer event to the session.
// Returns shared.ErrSessionAlreadyFinished if the session was finalized.
func (s *Session) Append(event AnswerEvent) error {
	if s.Finished() {
		return shared.ErrSessionAlreadyFinished
	}
	if err := event.Validate(); err != nil {
		return err
	}

	s.Answers = append(s.Answers, event)
	return nil
}

// Finish finalizes the session and computes its summary. Finishing an
// already-finished session returns the same summary again; downstream
// effects must key off the first finalization only.
func (s *Session) Finish(now time.Time) *Summary {
	if s.Finished() {
		return s.Summarize()
	}

	finishedAt := now
	s.FinishedAt = &finishedAt
	return s.Summarize()
}

// Abandon finalizes an idle session as abandoned. Abandoned sessions are
// excluded from qualification and aggregation by construction.
func (s *Session) Abandon(now time.Time) *Summary {
	if s.Finished() {
		return s.Summarize()
	}

	s.Abandoned = true
	finishedAt := now
	s.FinishedAt = &finishedAt
	return s.Summarize()
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// CategoryCount is a per-category answered/correct pair.
type CategoryCount struct {
	Answered int
	Correct  int
}

// SubCategoryKey keys the per-sub-category breakdown.
type SubCategoryKey struct {
	Category    learner.Category
	SubCategory learner.SubCategory
}

// Summary is the immutable result of a finalized session, consumed by
// the qualification evaluator and the performance aggregator.
type Summary struct {
	SessionID         ID
	LearnerID         learner.ID
	Mode              Mode
	StartedAt         time.Time
	FinishedAt        time.Time
	QuestionsAnswered int
	CorrectAnswers    int

	// Accuracy is CorrectAnswers / QuestionsAnswered, defined as 0 for
	// an empty session.
	Accuracy float64

	// TimeSpent is FinishedAt - StartedAt.
	TimeSpent time.Duration

	// PeakStreak is the longest run of consecutive correct answers
	// within the session.
	PeakStreak int

	// Categories is the per-category breakdown.
	Categories map[learner.Category]CategoryCount

	// SubCategories is the per-sub-category breakdown.
	SubCategories map[SubCategoryKey]CategoryCount

	// Abandoned marks summaries of swept sessions.
	Abandoned bool
}

// Summarize computes (and caches) the session summary.
// Must only be called on a finished session; callers go through Finish
// or Abandon, which guarantee that.
func (s *Session) Summarize() *Summary {
	if s.summary != nil {
		return s.summary
	}

	summary := &Summary{
		SessionID:     s.ID,
		LearnerID:     s.LearnerID,
		Mode:          s.Mode,
		StartedAt:     s.StartedAt,
		Abandoned:     s.Abandoned,
		Categories:    make(map[learner.Category]CategoryCount),
		SubCategories: make(map[SubCategoryKey]CategoryCount),
	}
	if s.FinishedAt != nil {
		summary.FinishedAt = *s.FinishedAt
		summary.TimeSpent = s.FinishedAt.Sub(s.StartedAt)
	}

	streak := 0
	for _, answer := range s.Answers {
		summary.QuestionsAnswered++

		catCount := summary.Categories[answer.Category]
		catCount.Answered++

		subKey := SubCategoryKey{Category: answer.Category, SubCategory: answer.SubCategory.Normalize()}
		subCount := summary.SubCategories[subKey]
		subCount.Answered++

		if answer.IsCorrect {
			summary.CorrectAnswers++
			catCount.Correct++
			subCount.Correct++
			streak++
			if streak > summary.PeakStreak {
				summary.PeakStreak = streak
			}
		} else {
			streak = 0
		}

		summary.Categories[answer.Category] = catCount
		summary.SubCategories[subKey] = subCount
	}

	if summary.QuestionsAnswered > 0 {
		summary.Accuracy = float64(summary.CorrectAnswers) / float64(summary.QuestionsAnswered)
	}

	s.summary = summary
	return summary
}
