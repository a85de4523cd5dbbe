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
// FINISH SESSION COMMAND
// Finalizes a session: computes the summary, evaluates qualification,
// folds the session's counts into the learner's lifetime aggregates, and
// advances the unlock gate. Finishing an already-finished session returns
// the original summary and performs no further side effects, so the fold
// happens exactly once per session.
// ══════════════════════════════════════════════════════════════════════════════

// FinishSessionCommand contains the data to finalize a session.
type FinishSessionCommand struct {
	// LearnerID is the session owner.
	LearnerID string

	// SessionID is the session to finalize.
	SessionID string

	// Timestamp is when the session ends (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c FinishSessionCommand) Validate() error {
	if !learner.ID(c.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	if c.SessionID == "" {
		return shared.NewDomainError("session", "Finish", shared.ErrEmptyValue, "session_id is required")
	}
	return nil
}

// FinishSessionResult contains the finalized session outcome.
type FinishSessionResult struct {
	// SessionID is the finalized session.
	SessionID string

	// QuestionsAnswered is the session's answered count.
	QuestionsAnswered int

	// CorrectAnswers is the session's correct count.
	CorrectAnswers int

	// Accuracy is the session accuracy, 0 for an empty session.
	Accuracy float64

	// TimeSpent is the session duration.
	TimeSpent time.Duration

	// Qualified reports whether this session met the qualification criteria.
	Qualified bool

	// QualificationReason explains the qualification outcome.
	QualificationReason string

	// QualifyingSessions is the learner's lifetime qualifying-session count.
	QualifyingSessions int

	// SessionsRemaining is how many more qualifying sessions open the gate.
	SessionsRemaining int

	// JustUnlocked is true only on the call where the gate fired.
	JustUnlocked bool

	// Unlocked reports the gate state after this call.
	Unlocked bool

	// AlreadyFinished is true when this call was a repeat finalization.
	AlreadyFinished bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// FinishSessionHandler handles the FinishSessionCommand.
type FinishSessionHandler struct {
	learnerRepo    learner.Repository
	sessionRepo    session.Repository
	uow            UnitOfWork
	locker         LearnerLocker
	eventPublisher shared.EventPublisher
}

// NewFinishSessionHandler creates a new FinishSessionHandler.
func NewFinishSessionHandler(
	learnerRepo learner.Repository,
	sessionRepo session.Repository,
	uow UnitOfWork,
	locker LearnerLocker,
	eventPublisher shared.EventPublisher,
) *FinishSessionHandler {
	return &FinishSessionHandler{
		learnerRepo:    learnerRepo,
		sessionRepo:    sessionRepo,
		uow:            uow,
		locker:         locker,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the finish session command.
func (h *FinishSessionHandler) Handle(ctx context.Context, cmd FinishSessionCommand) (*FinishSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("finish_session: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	h.locker.Lock(cmd.LearnerID)
	defer h.locker.Unlock(cmd.LearnerID)

	learnerID := learner.ID(cmd.LearnerID)

	s, err := h.sessionRepo.GetByID(ctx, session.ID(cmd.SessionID))
	if err != nil {
		return nil, fmt.Errorf("finish_session: failed to load session: %w", err)
	}
	if s.LearnerID != learnerID {
		return nil, shared.ErrSessionNotFound
	}

	progress, err := h.learnerRepo.GetOrCreate(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("finish_session: failed to load progress: %w", err)
	}

	// Repeat finalization: report the original summary plus current gate
	// state, without folding or qualification side effects. Qualification
	// is a pure function of the summary, so re-running it reports the
	// same verdict the first finish produced.
	if s.Finished() {
		summary := s.Summarize()
		qualification := session.EvaluateQualification(summary)
		return h.buildResult(summary, progress, qualification, false, true), nil
	}

	summary := s.Finish(timestamp)
	qualification := session.EvaluateQualification(summary)

	justUnlocked := false
	if qualification.Qualifies {
		justUnlocked = progress.RecordQualifyingSession(timestamp)
	}

	h.foldAggregates(progress, summary, timestamp)

	// Session, progress, and sub-category stats commit as one unit. A
	// partial finalization would mark the session finished while its fold
	// is lost, and the fold never reruns.
	stats := subCategoryStats(learnerID, summary, timestamp)
	if err := h.uow.SaveFinalization(ctx, s, progress, stats); err != nil {
		return nil, shared.WrapError("session", "Finish", shared.ErrPersistence, "failed to persist finalization", err)
	}

	h.publishEvents(cmd, summary, qualification, progress, justUnlocked)

	return h.buildResult(summary, progress, qualification, justUnlocked, false), nil
}

// foldAggregates adds the session's counts into the learner's lifetime
// totals. The fold is additive and guarded by finish idempotence: the
// caller only reaches here on the first finalization.
func (h *FinishSessionHandler) foldAggregates(progress *learner.Progress, summary *session.Summary, now time.Time) {
	for category, count := range summary.Categories {
		progress.FoldCategoryCounts(category, count.Answered, count.Correct, now)
	}
	progress.FoldPeakStreak(summary.PeakStreak, now)
}

// subCategoryStats turns the summary's per-sub-category breakdown into
// the additive deltas the unit of work persists.
func subCategoryStats(learnerID learner.ID, summary *session.Summary, now time.Time) []learner.SubCategoryStat {
	stats := make([]learner.SubCategoryStat, 0, len(summary.SubCategories))
	for key, count := range summary.SubCategories {
		stats = append(stats, learner.SubCategoryStat{
			LearnerID:     learnerID,
			Category:      key.Category,
			SubCategory:   key.SubCategory,
			TotalAnswered: count.Answered,
			TotalCorrect:  count.Correct,
			LastUpdated:   now,
		})
	}
	return stats
}

// publishEvents emits the finalization event stream.
func (h *FinishSessionHandler) publishEvents(
	cmd FinishSessionCommand,
	summary *session.Summary,
	qualification session.QualificationResult,
	progress *learner.Progress,
	justUnlocked bool,
) {
	_ = h.eventPublisher.Publish(shared.NewSessionFinishedEvent(
		cmd.LearnerID, cmd.SessionID, summary.Mode.String(),
		summary.QuestionsAnswered, summary.CorrectAnswers, summary.Accuracy, false,
	))

	if qualification.Qualifies {
		_ = h.eventPublisher.Publish(shared.NewSessionQualifiedEvent(
			cmd.LearnerID, cmd.SessionID, summary.Accuracy,
			progress.QualifyingSessions, progress.SessionsRemaining(),
		))
	}
	if justUnlocked {
		_ = h.eventPublisher.Publish(shared.NewBankUnlockedEvent(
			cmd.LearnerID, progress.QualifyingSessions,
		))
	}
}

func (h *FinishSessionHandler) buildResult(
	summary *session.Summary,
	progress *learner.Progress,
	qualification session.QualificationResult,
	justUnlocked, alreadyFinished bool,
) *FinishSessionResult {
	return &FinishSessionResult{
		SessionID:           summary.SessionID.String(),
		QuestionsAnswered:   summary.QuestionsAnswered,
		CorrectAnswers:      summary.CorrectAnswers,
		Accuracy:            summary.Accuracy,
		TimeSpent:           summary.TimeSpent,
		Qualified:           qualification.Qualifies,
		QualificationReason: qualification.Reason,
		QualifyingSessions:  progress.QualifyingSessions,
		SessionsRemaining:   progress.SessionsRemaining(),
		JustUnlocked:        justUnlocked,
		Unlocked:            progress.Unlock.Unlocked(),
		AlreadyFinished:     alreadyFinished,
	}
}
