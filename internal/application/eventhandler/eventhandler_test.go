package eventhandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medprep-hub/assessment-engine/internal/application/query"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

type captureNotifier struct {
	notifications []string
}

func (n *captureNotifier) Notify(_ context.Context, learnerID, title, _ string) error {
	n.notifications = append(n.notifications, learnerID+": "+title)
	return nil
}

func TestOnSessionQualified_ProgressNotification(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewOnSessionQualifiedHandler(notifier, nil)

	event := shared.NewSessionQualifiedEvent("learner-1", "s1", 0.9, 1, 2)
	require.NoError(t, handler.Handle(event))

	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, "learner-1: Qualifying session complete", notifier.notifications[0])
}

func TestOnSessionQualified_SilentWhenUnlockFollows(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewOnSessionQualifiedHandler(notifier, nil)

	// Third qualifying session: remaining hits zero, the unlock event
	// carries the announcement instead.
	qualified := shared.NewSessionQualifiedEvent("learner-1", "s3", 0.9, 3, 0)
	require.NoError(t, handler.Handle(qualified))
	assert.Empty(t, notifier.notifications)

	unlocked := shared.NewBankUnlockedEvent("learner-1", 3)
	require.NoError(t, handler.Handle(unlocked))
	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, "learner-1: Full bank unlocked", notifier.notifications[0])
}

func TestOnSessionQualified_IgnoresOtherEvents(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewOnSessionQualifiedHandler(notifier, nil)

	require.NoError(t, handler.Handle(shared.NewQuotaExhaustedEvent("learner-1", "free", 50)))
	assert.Empty(t, notifier.notifications)
}

type cacheSpy struct {
	invalidated []learner.ID
}

func (c *cacheSpy) Get(context.Context, learner.ID) (*query.SnapshotDTO, error) {
	return nil, shared.ErrNotFound
}

func (c *cacheSpy) Set(context.Context, *query.SnapshotDTO) error { return nil }

func (c *cacheSpy) Invalidate(_ context.Context, id learner.ID) error {
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestOnProgressChanged_InvalidatesSnapshot(t *testing.T) {
	cache := &cacheSpy{}
	handler := NewOnProgressChangedHandler(cache, nil)

	require.NoError(t, handler.Handle(shared.NewAnswerSubmittedEvent("learner-1", "q1", "cardiology", true, 2)))
	require.NoError(t, handler.Handle(shared.NewBankUnlockedEvent("learner-2", 3)))

	assert.Equal(t, []learner.ID{"learner-1", "learner-2"}, cache.invalidated)
}
