package command

import (
	"context"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork commits a command's multi-aggregate writes atomically:
// either every write lands or none do. Handlers load and mutate
// aggregates through the repositories, then hand the changed set to a
// single call here, so a storage failure can never leave a charged
// quota without its answer or a finalized session whose folds were
// lost. A failed call leaves the store untouched and the command
// retryable.
type UnitOfWork interface {
	// SaveAnswerOutcome persists one accepted answer: the charged quota
	// counter, the updated progress, and the extended session log.
	SaveAnswerOutcome(ctx context.Context, s *session.Session, progress *learner.Progress, counter *entitlement.QuotaCounter) error

	// SaveFinalization persists a finalized session together with the
	// folded progress and the session's sub-category deltas.
	SaveFinalization(ctx context.Context, s *session.Session, progress *learner.Progress, stats []learner.SubCategoryStat) error
}
