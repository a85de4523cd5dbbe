package command

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ANSWER COMMAND
// The hot path: every answered question flows through here. In one
// serialized step it charges the daily quota, runs the difficulty
// staircase, and appends the event to the open session. A quota
// rejection charges nothing and records nothing.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAnswerCommand contains one answered question.
type SubmitAnswerCommand struct {
	// LearnerID is the learner who answered.
	LearnerID string

	// SessionID is the open session the answer belongs to.
	SessionID string

	// QuestionID identifies the question in the content store.
	QuestionID string

	// Category is the question's category.
	Category string

	// SubCategory is the question's optional sub-category.
	SubCategory string

	// IsCorrect records whether the answer was correct.
	IsCorrect bool

	// TimeTaken is how long the learner spent on the question.
	TimeTaken time.Duration

	// Timestamp is when the answer arrived (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c SubmitAnswerCommand) Validate() error {
	if !learner.ID(c.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	if c.SessionID == "" {
		return shared.NewDomainError("session", "SubmitAnswer", shared.ErrEmptyValue, "session_id is required")
	}
	if c.QuestionID == "" {
		return shared.NewDomainError("session", "SubmitAnswer", shared.ErrEmptyValue, "question_id is required")
	}
	if !learner.Category(c.Category).IsValid() {
		return shared.ErrInvalidCategory
	}
	if c.TimeTaken < 0 {
		return shared.NewDomainError("session", "SubmitAnswer", shared.ErrNegativeValue, "time_taken cannot be negative")
	}
	return nil
}

// SubmitAnswerResult contains the result of an accepted answer.
type SubmitAnswerResult struct {
	// Tier is the learner's difficulty tier for the category after the
	// staircase ran. The next question should be drawn at this tier.
	Tier int

	// TierChanged reports whether the staircase moved the tier.
	TierChanged bool

	// CurrentStreak is the learner's global correct streak after this answer.
	CurrentStreak int

	// QuotaRemaining is how many questions remain today, or
	// entitlement.Unlimited for uncapped tiers.
	QuotaRemaining int

	// QuotaUnlimited reports whether the learner's tier has no daily cap.
	QuotaUnlimited bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAnswerHandler handles the SubmitAnswerCommand.
type SubmitAnswerHandler struct {
	learnerRepo    learner.Repository
	sessionRepo    session.Repository
	quotaRepo      entitlement.QuotaRepository
	tierResolver   entitlement.TierResolver
	uow            UnitOfWork
	locker         LearnerLocker
	eventPublisher shared.EventPublisher
}

// NewSubmitAnswerHandler creates a new SubmitAnswerHandler.
func NewSubmitAnswerHandler(
	learnerRepo learner.Repository,
	sessionRepo session.Repository,
	quotaRepo entitlement.QuotaRepository,
	tierResolver entitlement.TierResolver,
	uow UnitOfWork,
	locker LearnerLocker,
	eventPublisher shared.EventPublisher,
) *SubmitAnswerHandler {
	return &SubmitAnswerHandler{
		learnerRepo:    learnerRepo,
		sessionRepo:    sessionRepo,
		quotaRepo:      quotaRepo,
		tierResolver:   tierResolver,
		uow:            uow,
		locker:         locker,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the submit answer command.
//
// Failure anywhere fails the whole submission: an answer is either fully
// recorded (quota charged, staircase run, event appended) or not at all.
// Returns shared.ErrDailyQuotaExceeded when the learner's cap is reached;
// repeating the rejected call never changes any state.
func (h *SubmitAnswerHandler) Handle(ctx context.Context, cmd SubmitAnswerCommand) (*SubmitAnswerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("submit_answer: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	h.locker.Lock(cmd.LearnerID)
	defer h.locker.Unlock(cmd.LearnerID)

	learnerID := learner.ID(cmd.LearnerID)

	progress, err := h.learnerRepo.GetOrCreate(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("submit_answer: failed to load progress: %w", err)
	}

	s, err := h.sessionRepo.GetByID(ctx, session.ID(cmd.SessionID))
	if err != nil {
		return nil, fmt.Errorf("submit_answer: failed to load session: %w", err)
	}
	if s.LearnerID != learnerID {
		return nil, shared.ErrSessionNotFound
	}
	if s.Finished() {
		return nil, shared.ErrSessionAlreadyFinished
	}

	// Tier resolution failures inside the resolver fall back to the free
	// tier there; an error here means even the fallback could not be
	// produced, so the submission is refused rather than served uncapped.
	tier, err := h.tierResolver.ResolveTier(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("submit_answer: failed to resolve tier: %w", err)
	}

	day := entitlement.DayKeyFor(timestamp, progress.Location())
	counter, err := h.quotaRepo.GetOrCreate(ctx, learnerID, day)
	if err != nil {
		return nil, fmt.Errorf("submit_answer: failed to load quota: %w", err)
	}

	consume := counter.Consume(tier, timestamp)
	if !consume.Allowed {
		_ = h.eventPublisher.Publish(shared.NewQuotaExhaustedEvent(
			cmd.LearnerID, string(tier.Plan), tier.DailyCap,
		))
		return nil, shared.ErrDailyQuotaExceeded
	}

	change := progress.RecordAnswer(learner.Category(cmd.Category), cmd.IsCorrect, timestamp)

	if err := s.Append(session.AnswerEvent{
		QuestionID:  cmd.QuestionID,
		Category:    learner.Category(cmd.Category),
		SubCategory: learner.SubCategory(cmd.SubCategory),
		IsCorrect:   cmd.IsCorrect,
		TimeTaken:   cmd.TimeTaken,
		AnsweredAt:  timestamp,
	}); err != nil {
		return nil, fmt.Errorf("submit_answer: %w", err)
	}

	// Quota, progress, and session commit as one unit: a failed write
	// leaves nothing charged and nothing recorded, and the submission can
	// simply be retried.
	if err := h.uow.SaveAnswerOutcome(ctx, s, progress, counter); err != nil {
		return nil, shared.WrapError("session", "SubmitAnswer", shared.ErrPersistence, "failed to persist answer", err)
	}

	_ = h.eventPublisher.Publish(shared.NewAnswerSubmittedEvent(
		cmd.LearnerID, cmd.QuestionID, cmd.Category, cmd.IsCorrect, int(change.NewTier),
	))
	if change.Moved() {
		_ = h.eventPublisher.Publish(shared.NewTierChangedEvent(
			cmd.LearnerID, cmd.Category, int(change.OldTier), int(change.NewTier),
		))
	}

	return &SubmitAnswerResult{
		Tier:           int(change.NewTier),
		TierChanged:    change.Moved(),
		CurrentStreak:  progress.CurrentStreak,
		QuotaRemaining: consume.Remaining,
		QuotaUnlimited: consume.Unlimited,
	}, nil
}
