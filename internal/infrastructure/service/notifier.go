// Package service contains infrastructure adapters for application-level
// ports that have no dedicated backend yet.
package service

import (
	"context"

	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

// LogNotifier implements eventhandler.Notifier by writing notifications
// to the structured log. It stands in until a push or email channel is
// wired up; the event flow and its tests are identical either way.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Default()
	}
	return &LogNotifier{log: log.With(logger.Component("notifier"))}
}

// Notify records the notification in the log.
func (n *LogNotifier) Notify(ctx context.Context, learnerID, title, body string) error {
	n.log.Info("notification",
		logger.LearnerID(learnerID),
		logger.String("title", title),
		logger.String("body", body),
	)
	return nil
}
