// Package eventhandler contains the subscribers wired onto the event bus.
// Handlers run asynchronously after the publishing command has already
// committed; their failures are logged, never propagated back.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON SESSION QUALIFIED HANDLER
// Turns qualification milestones into learner-facing notifications:
// progress toward the unlock after each qualifying session, and the
// unlock announcement itself.
// ══════════════════════════════════════════════════════════════════════════════

// Notifier delivers learner-facing messages. The transport (push, email,
// in-app inbox) is an infrastructure concern.
type Notifier interface {
	Notify(ctx context.Context, learnerID, title, body string) error
}

// OnSessionQualifiedHandler reacts to qualification and unlock events.
type OnSessionQualifiedHandler struct {
	notifier Notifier
	log      *logger.Logger
}

// NewOnSessionQualifiedHandler creates a new OnSessionQualifiedHandler.
func NewOnSessionQualifiedHandler(notifier Notifier, log *logger.Logger) *OnSessionQualifiedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnSessionQualifiedHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_session_qualified")),
	}
}

// Name implements shared.EventHandler.
func (h *OnSessionQualifiedHandler) Name() string {
	return "on_session_qualified"
}

// Handle implements shared.EventHandler.
func (h *OnSessionQualifiedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	switch e := event.(type) {
	case shared.SessionQualifiedEvent:
		return h.onQualified(ctx, e)
	case shared.BankUnlockedEvent:
		return h.onUnlocked(ctx, e)
	default:
		h.log.Warn("received unexpected event",
			logger.String("event_type", string(event.EventType())))
		return nil
	}
}

func (h *OnSessionQualifiedHandler) onQualified(ctx context.Context, e shared.SessionQualifiedEvent) error {
	h.log.Info("session qualified",
		logger.LearnerID(e.AggregateID()),
		logger.SessionID(e.SessionID),
		logger.Float64("accuracy", e.Accuracy),
		logger.Int("qualifying_sessions", e.QualifyingSessions))

	// The unlock announcement supersedes the progress message.
	if e.SessionsRemaining == 0 {
		return nil
	}

	body := fmt.Sprintf(
		"Great exam! %d more qualifying session(s) to unlock the full question bank.",
		e.SessionsRemaining,
	)
	if err := h.notifier.Notify(ctx, e.AggregateID(), "Qualifying session complete", body); err != nil {
		h.log.Error("failed to send qualification notification",
			logger.LearnerID(e.AggregateID()), logger.Err(err))
	}
	return nil
}

func (h *OnSessionQualifiedHandler) onUnlocked(ctx context.Context, e shared.BankUnlockedEvent) error {
	h.log.Info("question bank unlocked",
		logger.LearnerID(e.AggregateID()),
		logger.Int("qualifying_sessions", e.QualifyingSessions))

	body := "You have unlocked the full question bank. Every question is now available."
	if err := h.notifier.Notify(ctx, e.AggregateID(), "Full bank unlocked", body); err != nil {
		h.log.Error("failed to send unlock notification",
			logger.LearnerID(e.AggregateID()), logger.Err(err))
	}
	return nil
}
