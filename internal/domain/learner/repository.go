package learner

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for learner progress.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists learner progress aggregates.
type Repository interface {
	// GetByID returns a learner's progress.
	// Returns shared.ErrLearnerNotFound if the learner has no record yet.
	GetByID(ctx context.Context, id ID) (*Progress, error)

	// GetOrCreate returns a learner's progress, creating an empty record
	// on the learner's first answer event.
	GetOrCreate(ctx context.Context, id ID) (*Progress, error)

	// Save upserts the full progress aggregate, category states included.
	Save(ctx context.Context, progress *Progress) error
}

// StatsRepository persists the append-only sub-category statistics.
// The performance aggregator is the only writer.
type StatsRepository interface {
	// AddSubCategoryCounts adds answered/correct deltas into the stat row
	// keyed by (learner, category, sub-category), creating it if needed.
	AddSubCategoryCounts(ctx context.Context, stat SubCategoryStat) error

	// ListByLearner returns all sub-category stats for a learner, sorted
	// by category then sub-category.
	ListByLearner(ctx context.Context, id ID) ([]SubCategoryStat, error)
}
