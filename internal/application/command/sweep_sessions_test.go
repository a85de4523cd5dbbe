package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medprep-hub/assessment-engine/internal/domain/session"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

func TestSweepSessions_AbandonsIdleOnly(t *testing.T) {
	sessionRepo := newFakeSessionRepo()
	publisher := &capturePublisher{}
	handler := NewSweepSessionsHandler(sessionRepo, noopLocker{}, publisher)

	now := time.Now().UTC()

	stale, err := session.New("learner-1", session.ModeExam, now.Add(-3*time.Hour))
	require.NoError(t, err)
	require.NoError(t, sessionRepo.Create(context.Background(), stale))

	fresh, err := session.New("learner-2", session.ModePractice, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NoError(t, sessionRepo.Create(context.Background(), fresh))

	result, err := handler.Handle(context.Background(), SweepSessionsCommand{Timestamp: now})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Swept)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{stale.ID.String()}, result.SweptSessionIDs)

	swept, err := sessionRepo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.True(t, swept.Finished())
	assert.True(t, swept.Abandoned)

	untouched, err := sessionRepo.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.False(t, untouched.Finished())

	assert.Len(t, publisher.byType(shared.EventSessionAbandoned), 1)
}

func TestSweepSessions_RecentAnswerKeepsSessionAlive(t *testing.T) {
	sessionRepo := newFakeSessionRepo()
	handler := NewSweepSessionsHandler(sessionRepo, noopLocker{}, &capturePublisher{})

	now := time.Now().UTC()

	// Started long ago, but answered recently.
	s, err := session.New("learner-1", session.ModeExam, now.Add(-6*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Append(session.AnswerEvent{
		QuestionID: "q1",
		Category:   "cardiology",
		IsCorrect:  true,
		AnsweredAt: now.Add(-5 * time.Minute),
	}))
	require.NoError(t, sessionRepo.Create(context.Background(), s))

	result, err := handler.Handle(context.Background(), SweepSessionsCommand{Timestamp: now})
	require.NoError(t, err)
	assert.Zero(t, result.Swept)
}

func TestSweepSessions_SweptSessionNeverQualifies(t *testing.T) {
	f := newFinishFixture()
	sweeper := NewSweepSessionsHandler(f.sessionRepo, noopLocker{}, f.publisher)

	// An exam run good enough to qualify, left idle past the timeout.
	s := f.seedSession(t, session.ModeExam, 60, 58)
	sweepAt := s.IdleSince().Add(DefaultIdleTimeout + time.Minute)

	result, err := sweeper.Handle(context.Background(), SweepSessionsCommand{Timestamp: sweepAt})
	require.NoError(t, err)
	require.Equal(t, 1, result.Swept)

	// A later explicit finish returns the abandoned summary without
	// qualification or aggregate folds.
	finish := f.finish(t, s.ID)
	assert.True(t, finish.AlreadyFinished)
	assert.False(t, finish.Qualified)

	progress, err := f.learnerRepo.GetOrCreate(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Zero(t, progress.QualifyingSessions)
	assert.Zero(t, progress.CategoryState("cardiology").TotalAnswered)
}
