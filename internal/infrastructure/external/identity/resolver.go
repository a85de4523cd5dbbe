package identity

import (
	"context"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIER RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// EntitlementFetcher fetches a learner's entitlement from the provider.
// Implemented by Client.
type EntitlementFetcher interface {
	GetEntitlement(ctx context.Context, learnerID string) (*EntitlementDTO, error)
}

// PlanCache caches resolved plan names. Implemented by the Redis Cache.
// A nil cache disables caching, so every resolution hits the provider.
type PlanCache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
}

// PlanKeyFunc builds the cache key for a learner's plan.
type PlanKeyFunc func(learnerID string) string

// TierResolver implements entitlement.TierResolver against the identity
// provider. Provider failures degrade to the catalog's most restrictive
// tier instead of erroring, so an identity outage throttles learners
// rather than blocking them.
type TierResolver struct {
	fetcher  EntitlementFetcher
	catalog  *entitlement.Catalog
	cache    PlanCache
	cacheKey PlanKeyFunc
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewTierResolver creates a new TierResolver. The cache may be nil.
func NewTierResolver(
	fetcher EntitlementFetcher,
	catalog *entitlement.Catalog,
	cache PlanCache,
	cacheKey PlanKeyFunc,
	cacheTTL time.Duration,
	log *logger.Logger,
) *TierResolver {
	if log == nil {
		log = logger.Default()
	}
	if cacheKey == nil {
		cacheKey = func(learnerID string) string { return "tier:" + learnerID }
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &TierResolver{
		fetcher:  fetcher,
		catalog:  catalog,
		cache:    cache,
		cacheKey: cacheKey,
		cacheTTL: cacheTTL,
		log:      log.With(logger.Component("tier-resolver")),
	}
}

// ResolveTier resolves a learner's current entitlement tier.
func (r *TierResolver) ResolveTier(ctx context.Context, learnerID learner.ID) (entitlement.Tier, error) {
	if r.cache != nil {
		if plan, err := r.cache.GetString(ctx, r.cacheKey(learnerID.String())); err == nil && plan != "" {
			tier, _ := r.catalog.Resolve(entitlement.Plan(plan))
			return tier, nil
		}
	}

	dto, err := r.fetcher.GetEntitlement(ctx, learnerID.String())
	if err != nil {
		if ctx.Err() != nil {
			return entitlement.Tier{}, ctx.Err()
		}

		r.log.Warn("entitlement lookup failed, using most restrictive tier",
			logger.LearnerID(learnerID.String()),
			logger.Err(err),
		)
		return r.catalog.Fallback(), nil
	}

	plan := entitlement.Plan(dto.Plan)
	if !dto.IsActive() {
		// Expired and cancelled subscriptions fall back to free.
		plan = entitlement.PlanFree
	}

	tier, known := r.catalog.Resolve(plan)
	if !known {
		r.log.Warn("unknown plan, using most restrictive tier",
			logger.LearnerID(learnerID.String()),
			logger.Plan(string(plan)),
		)
	}

	if r.cache != nil {
		if err := r.cache.SetString(ctx, r.cacheKey(learnerID.String()), string(tier.Plan), r.cacheTTL); err != nil {
			r.log.Debug("plan cache write failed", logger.Err(err))
		}
	}

	return tier, nil
}
