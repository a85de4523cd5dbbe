package entitlement

import (
	"context"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
)

// QuotaRepository persists daily quota counters. One live row per
// learner per day; the quota ledger is the only writer.
type QuotaRepository interface {
	// GetOrCreate returns the counter for a learner and day, creating a
	// zeroed one when the date has rolled over.
	GetOrCreate(ctx context.Context, learnerID learner.ID, day DayKey) (*QuotaCounter, error)

	// Save persists an updated counter. Only called after a successful
	// consume; a failed Save means the item was not charged.
	Save(ctx context.Context, counter *QuotaCounter) error
}

// TierResolver resolves a learner's current entitlement tier. The
// production implementation asks the identity provider for the plan name
// and resolves it through the catalog; failures degrade to the most
// restrictive tier.
type TierResolver interface {
	ResolveTier(ctx context.Context, learnerID learner.ID) (Tier, error)
}

// StaticTierResolver resolves every learner to the same tier. Used when
// no identity provider is configured, and in tests.
type StaticTierResolver struct {
	Tier Tier
}

// ResolveTier implements TierResolver.
func (r StaticTierResolver) ResolveTier(_ context.Context, _ learner.ID) (Tier, error) {
	return r.Tier, nil
}
