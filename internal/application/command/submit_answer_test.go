package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

type submitFixture struct {
	learnerRepo *fakeLearnerRepo
	sessionRepo *fakeSessionRepo
	quotaRepo   *fakeQuotaRepo
	resolver    *fakeTierResolver
	uow         *fakeUnitOfWork
	publisher   *capturePublisher
	handler     *SubmitAnswerHandler
	sessionID   string
}

func newSubmitFixture(t *testing.T, tier entitlement.Tier) *submitFixture {
	t.Helper()

	f := &submitFixture{
		learnerRepo: newFakeLearnerRepo(),
		sessionRepo: newFakeSessionRepo(),
		quotaRepo:   newFakeQuotaRepo(),
		resolver:    &fakeTierResolver{tier: tier},
		publisher:   &capturePublisher{},
	}
	f.uow = &fakeUnitOfWork{
		learners: f.learnerRepo,
		sessions: f.sessionRepo,
		quotas:   f.quotaRepo,
		stats:    newFakeStatsRepo(),
	}
	f.handler = NewSubmitAnswerHandler(
		f.learnerRepo, f.sessionRepo, f.quotaRepo, f.resolver, f.uow, noopLocker{}, f.publisher,
	)

	s, err := session.New("learner-1", session.ModePractice, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Create(context.Background(), s))
	f.sessionID = s.ID.String()

	return f
}

func (f *submitFixture) submit(t *testing.T, correct bool) (*SubmitAnswerResult, error) {
	t.Helper()
	return f.handler.Handle(context.Background(), SubmitAnswerCommand{
		LearnerID:  "learner-1",
		SessionID:  f.sessionID,
		QuestionID: "q1",
		Category:   "cardiology",
		IsCorrect:  correct,
		TimeTaken:  20 * time.Second,
	})
}

func freeTier() entitlement.Tier {
	return entitlement.Tier{Plan: entitlement.PlanFree, DailyCap: 50, Partition: entitlement.PartitionRestricted}
}

func TestSubmitAnswer_RecordsEverything(t *testing.T) {
	f := newSubmitFixture(t, freeTier())

	result, err := f.submit(t, true)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Tier)
	assert.False(t, result.TierChanged)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 49, result.QuotaRemaining)

	progress, err := f.learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	state := progress.CategoryState("cardiology")
	assert.Equal(t, 1, state.ConsecutiveCorrect)
	// Lifetime totals for the category are folded at session finish, not here.
	assert.Zero(t, state.TotalAnswered)
	assert.Equal(t, 1, progress.TotalAnswered)

	s, err := f.sessionRepo.GetByID(context.Background(), session.ID(f.sessionID))
	require.NoError(t, err)
	assert.Len(t, s.Answers, 1)

	assert.Len(t, f.publisher.byType(shared.EventAnswerSubmitted), 1)
}

func TestSubmitAnswer_ThreeCorrectAdvancesTier(t *testing.T) {
	f := newSubmitFixture(t, freeTier())

	for i := 0; i < 2; i++ {
		result, err := f.submit(t, true)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Tier)
	}

	result, err := f.submit(t, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Tier)
	assert.True(t, result.TierChanged)

	assert.Len(t, f.publisher.byType(shared.EventTierAdvanced), 1)
}

func TestSubmitAnswer_QuotaExhaustionIsIdempotent(t *testing.T) {
	tier := entitlement.Tier{Plan: entitlement.PlanFree, DailyCap: 50, Partition: entitlement.PartitionRestricted}
	f := newSubmitFixture(t, tier)

	for i := 0; i < 50; i++ {
		_, err := f.submit(t, true)
		require.NoError(t, err)
	}

	progress, err := f.learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	answeredBefore := progress.TotalAnswered

	// The 51st attempt and repeats of it are rejected without charging
	// quota, moving tiers, or recording the answer.
	for i := 0; i < 3; i++ {
		_, err := f.submit(t, true)
		assert.ErrorIs(t, err, shared.ErrDailyQuotaExceeded)
		assert.True(t, shared.IsQuotaExceeded(err))
	}

	progress, err = f.learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, answeredBefore, progress.TotalAnswered)

	s, err := f.sessionRepo.GetByID(context.Background(), session.ID(f.sessionID))
	require.NoError(t, err)
	assert.Len(t, s.Answers, 50)

	assert.Len(t, f.publisher.byType(shared.EventQuotaExhausted), 3)
}

func TestSubmitAnswer_UnlimitedTierNeverRejects(t *testing.T) {
	tier := entitlement.Tier{Plan: entitlement.PlanAnnual, DailyCap: entitlement.Unlimited, Partition: entitlement.PartitionFull}
	f := newSubmitFixture(t, tier)

	for i := 0; i < 120; i++ {
		result, err := f.submit(t, i%2 == 0)
		require.NoError(t, err)
		assert.True(t, result.QuotaUnlimited)
		assert.Equal(t, entitlement.Unlimited, result.QuotaRemaining)
	}
}

func TestSubmitAnswer_FinishedSessionRejected(t *testing.T) {
	f := newSubmitFixture(t, freeTier())

	s, err := f.sessionRepo.GetByID(context.Background(), session.ID(f.sessionID))
	require.NoError(t, err)
	s.Finish(time.Now().UTC())
	require.NoError(t, f.sessionRepo.Save(context.Background(), s))

	_, err = f.submit(t, true)
	assert.ErrorIs(t, err, shared.ErrSessionAlreadyFinished)
}

func TestSubmitAnswer_WrongLearnerRejected(t *testing.T) {
	f := newSubmitFixture(t, freeTier())

	_, err := f.handler.Handle(context.Background(), SubmitAnswerCommand{
		LearnerID:  "learner-2",
		SessionID:  f.sessionID,
		QuestionID: "q1",
		Category:   "cardiology",
		IsCorrect:  true,
	})
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestSubmitAnswer_ResolverFailureFailsClosed(t *testing.T) {
	f := newSubmitFixture(t, freeTier())
	f.resolver.err = shared.ErrIdentityUnavailable

	_, err := f.submit(t, true)
	require.Error(t, err)

	// Nothing was recorded.
	progress, err := f.learnerRepo.GetByID(context.Background(), "learner-1")
	if err == nil {
		assert.Zero(t, progress.TotalAnswered)
	}
	s, err := f.sessionRepo.GetByID(context.Background(), session.ID(f.sessionID))
	require.NoError(t, err)
	assert.Empty(t, s.Answers)
}

func TestSubmitAnswer_FailedPersistChargesNothing(t *testing.T) {
	f := newSubmitFixture(t, freeTier())
	f.uow.failures = 1
	f.uow.failErr = errors.New("connection reset")

	_, err := f.submit(t, true)
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))

	// No quota charged, no progress change, no answer recorded.
	progress, err := f.learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Zero(t, progress.TotalAnswered)

	s, err := f.sessionRepo.GetByID(context.Background(), session.ID(f.sessionID))
	require.NoError(t, err)
	assert.Empty(t, s.Answers)

	// The retry charges exactly one question.
	result, err := f.submit(t, true)
	require.NoError(t, err)
	assert.Equal(t, 49, result.QuotaRemaining)
	assert.Equal(t, 1, result.CurrentStreak)
}

func TestSubmitAnswer_Validation(t *testing.T) {
	f := newSubmitFixture(t, freeTier())

	tests := []struct {
		name string
		cmd  SubmitAnswerCommand
	}{
		{"missing learner", SubmitAnswerCommand{SessionID: f.sessionID, QuestionID: "q1", Category: "cardiology"}},
		{"missing session", SubmitAnswerCommand{LearnerID: "learner-1", QuestionID: "q1", Category: "cardiology"}},
		{"missing question", SubmitAnswerCommand{LearnerID: "learner-1", SessionID: f.sessionID, Category: "cardiology"}},
		{"missing category", SubmitAnswerCommand{LearnerID: "learner-1", SessionID: f.sessionID, QuestionID: "q1"}},
		{"negative time", SubmitAnswerCommand{LearnerID: "learner-1", SessionID: f.sessionID, QuestionID: "q1", Category: "cardiology", TimeTaken: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestSubmitAnswer_QuotaDayFollowsLearnerTimezone(t *testing.T) {
	f := newSubmitFixture(t, freeTier())

	progress, err := f.learnerRepo.GetOrCreate(context.Background(), "learner-1")
	require.NoError(t, err)
	progress.Timezone = "Asia/Almaty"
	require.NoError(t, f.learnerRepo.Save(context.Background(), progress))

	// 20:30 UTC is already the next day in Almaty.
	at := time.Date(2026, 3, 10, 20, 30, 0, 0, time.UTC)
	_, err = f.handler.Handle(context.Background(), SubmitAnswerCommand{
		LearnerID:  "learner-1",
		SessionID:  f.sessionID,
		QuestionID: "q1",
		Category:   "cardiology",
		IsCorrect:  true,
		Timestamp:  at,
	})
	require.NoError(t, err)

	counter, err := f.quotaRepo.GetOrCreate(context.Background(), "learner-1", "2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.Consumed)
}
