package eventhandler

import (
	"context"

	"github.com/medprep-hub/assessment-engine/internal/application/query"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Drops the cached selection snapshot whenever anything it is derived
// from changes: answers, tier moves, session finalization, the unlock
// gate, or quota exhaustion.
// ══════════════════════════════════════════════════════════════════════════════

// OnProgressChangedHandler invalidates the snapshot cache.
type OnProgressChangedHandler struct {
	cache query.SnapshotCache
	log   *logger.Logger
}

// NewOnProgressChangedHandler creates a new OnProgressChangedHandler.
func NewOnProgressChangedHandler(cache query.SnapshotCache, log *logger.Logger) *OnProgressChangedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnProgressChangedHandler{
		cache: cache,
		log:   log.With(logger.Component("on_progress_changed")),
	}
}

// Name implements shared.EventHandler.
func (h *OnProgressChangedHandler) Name() string {
	return "on_progress_changed"
}

// Handle implements shared.EventHandler.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	learnerID := learner.ID(event.AggregateID())
	if !learnerID.IsValid() {
		return nil
	}

	if err := h.cache.Invalidate(context.Background(), learnerID); err != nil {
		// A stale snapshot self-corrects on TTL expiry; log and move on.
		h.log.Warn("failed to invalidate snapshot cache",
			logger.LearnerID(learnerID.String()),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err))
	}
	return nil
}
