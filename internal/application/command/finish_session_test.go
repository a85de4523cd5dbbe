package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

type finishFixture struct {
	learnerRepo *fakeLearnerRepo
	statsRepo   *fakeStatsRepo
	sessionRepo *fakeSessionRepo
	uow         *fakeUnitOfWork
	publisher   *capturePublisher
	handler     *FinishSessionHandler
}

func newFinishFixture() *finishFixture {
	f := &finishFixture{
		learnerRepo: newFakeLearnerRepo(),
		statsRepo:   newFakeStatsRepo(),
		sessionRepo: newFakeSessionRepo(),
		publisher:   &capturePublisher{},
	}
	f.uow = &fakeUnitOfWork{
		learners: f.learnerRepo,
		sessions: f.sessionRepo,
		quotas:   newFakeQuotaRepo(),
		stats:    f.statsRepo,
	}
	f.handler = NewFinishSessionHandler(
		f.learnerRepo, f.sessionRepo, f.uow, noopLocker{}, f.publisher,
	)
	return f
}

// seedSession creates an open session with the given answer counts.
func (f *finishFixture) seedSession(t *testing.T, mode session.Mode, answered, correct int) *session.Session {
	t.Helper()

	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s, err := session.New("learner-1", mode, started)
	require.NoError(t, err)

	for i := 0; i < answered; i++ {
		require.NoError(t, s.Append(session.AnswerEvent{
			QuestionID:  "q",
			Category:    "cardiology",
			SubCategory: "arrhythmia",
			IsCorrect:   i < correct,
			TimeTaken:   30 * time.Second,
			AnsweredAt:  started.Add(time.Duration(i+1) * time.Minute),
		}))
	}
	require.NoError(t, f.sessionRepo.Create(context.Background(), s))
	return s
}

func (f *finishFixture) finish(t *testing.T, sessionID session.ID) *FinishSessionResult {
	t.Helper()
	result, err := f.handler.Handle(context.Background(), FinishSessionCommand{
		LearnerID: "learner-1",
		SessionID: sessionID.String(),
	})
	require.NoError(t, err)
	return result
}

func TestFinishSession_FoldsAggregates(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModePractice, 10, 7)

	result := f.finish(t, s.ID)
	assert.Equal(t, 10, result.QuestionsAnswered)
	assert.Equal(t, 7, result.CorrectAnswers)
	assert.InDelta(t, 0.7, result.Accuracy, 1e-9)
	assert.False(t, result.Qualified)

	progress, err := f.learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	state := progress.CategoryState("cardiology")
	assert.Equal(t, 10, state.TotalAnswered)
	assert.Equal(t, 7, state.TotalCorrect)
	assert.Equal(t, 7, progress.HighestStreak) // session peak folded in

	stats, err := f.statsRepo.ListByLearner(context.Background(), "learner-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, learner.SubCategory("arrhythmia"), stats[0].SubCategory)
	assert.Equal(t, 10, stats[0].TotalAnswered)
}

func TestFinishSession_IdempotentFold(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModePractice, 10, 7)

	first := f.finish(t, s.ID)
	assert.False(t, first.AlreadyFinished)

	second := f.finish(t, s.ID)
	assert.True(t, second.AlreadyFinished)
	assert.Equal(t, first.QuestionsAnswered, second.QuestionsAnswered)
	assert.Equal(t, first.Accuracy, second.Accuracy)
	assert.Equal(t, first.Qualified, second.Qualified)

	// The fold ran exactly once.
	progress, err := f.learnerRepo.GetByID(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, 10, progress.CategoryState("cardiology").TotalAnswered)

	stats, err := f.statsRepo.ListByLearner(context.Background(), "learner-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 10, stats[0].TotalAnswered)

	assert.Len(t, f.publisher.byType(shared.EventSessionFinished), 1)
}

func TestFinishSession_QualificationAndUnlockGate(t *testing.T) {
	f := newFinishFixture()

	// Two qualifying exams: counted, but the gate stays shut.
	for i := 0; i < 2; i++ {
		s := f.seedSession(t, session.ModeExam, 50, 45)
		result := f.finish(t, s.ID)
		assert.True(t, result.Qualified)
		assert.False(t, result.JustUnlocked)
		assert.False(t, result.Unlocked)
		assert.Equal(t, i+1, result.QualifyingSessions)
	}

	// A below-threshold exam changes nothing.
	s := f.seedSession(t, session.ModeExam, 50, 40)
	result := f.finish(t, s.ID)
	assert.False(t, result.Qualified)
	assert.Equal(t, 2, result.QualifyingSessions)

	// The third qualifying session fires the gate.
	s = f.seedSession(t, session.ModeExam, 60, 55)
	result = f.finish(t, s.ID)
	assert.True(t, result.Qualified)
	assert.True(t, result.JustUnlocked)
	assert.True(t, result.Unlocked)
	assert.Zero(t, result.SessionsRemaining)

	assert.Len(t, f.publisher.byType(shared.EventSessionQualified), 3)
	assert.Len(t, f.publisher.byType(shared.EventBankUnlocked), 1)

	// A fourth qualifying session keeps counting but never re-fires.
	s = f.seedSession(t, session.ModeExam, 50, 50)
	result = f.finish(t, s.ID)
	assert.True(t, result.Qualified)
	assert.False(t, result.JustUnlocked)
	assert.True(t, result.Unlocked)
	assert.Equal(t, 4, result.QualifyingSessions)
	assert.Len(t, f.publisher.byType(shared.EventBankUnlocked), 1)
}

func TestFinishSession_PracticeNeverQualifies(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModePractice, 80, 80)

	result := f.finish(t, s.ID)
	assert.False(t, result.Qualified)
	assert.Contains(t, result.QualificationReason, "exam")
}

func TestFinishSession_EmptySession(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModeExam, 0, 0)

	result := f.finish(t, s.ID)
	assert.Zero(t, result.QuestionsAnswered)
	assert.Zero(t, result.Accuracy)
	assert.False(t, result.Qualified)
}

func TestFinishSession_RepeatFinishKeepsQualificationOutcome(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModeExam, 50, 45)

	first := f.finish(t, s.ID)
	require.True(t, first.Qualified)
	assert.Equal(t, 1, first.QualifyingSessions)

	// A repeat finish reports the same verdict without re-counting it.
	second := f.finish(t, s.ID)
	assert.True(t, second.AlreadyFinished)
	assert.True(t, second.Qualified)
	assert.Equal(t, first.QualificationReason, second.QualificationReason)
	assert.Equal(t, 1, second.QualifyingSessions)
	assert.Len(t, f.publisher.byType(shared.EventSessionQualified), 1)
}

func TestFinishSession_FailedFinalizationLeavesNothingBehind(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModeExam, 50, 45)

	f.uow.failures = 1
	f.uow.failErr = errors.New("connection reset")

	_, err := f.handler.Handle(context.Background(), FinishSessionCommand{
		LearnerID: "learner-1",
		SessionID: s.ID.String(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))

	// The session is still open and nothing was folded or counted.
	stored, err := f.sessionRepo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, stored.Finished())

	progress, err := f.learnerRepo.GetOrCreate(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Zero(t, progress.QualifyingSessions)
	assert.Zero(t, progress.CategoryState("cardiology").TotalAnswered)

	stats, err := f.statsRepo.ListByLearner(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Empty(t, stats)

	// The retry finalizes from scratch: folded once, counted once.
	result := f.finish(t, s.ID)
	assert.False(t, result.AlreadyFinished)
	assert.True(t, result.Qualified)
	assert.Equal(t, 1, result.QualifyingSessions)

	stats, err = f.statsRepo.ListByLearner(context.Background(), "learner-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 50, stats[0].TotalAnswered)
	assert.Equal(t, 45, stats[0].TotalCorrect)
}

func TestFinishSession_WrongLearnerRejected(t *testing.T) {
	f := newFinishFixture()
	s := f.seedSession(t, session.ModeExam, 5, 5)

	_, err := f.handler.Handle(context.Background(), FinishSessionCommand{
		LearnerID: "learner-2",
		SessionID: s.ID.String(),
	})
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestFinishSession_UnknownSessionRejected(t *testing.T) {
	f := newFinishFixture()

	_, err := f.handler.Handle(context.Background(), FinishSessionCommand{
		LearnerID: "learner-1",
		SessionID: "nonexistent",
	})
	assert.True(t, shared.IsNotFound(err))
}
