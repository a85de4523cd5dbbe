package query

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SELECTION SNAPSHOT QUERY
// One read model with everything the question selector needs for the next
// draw: effective content partition, per-category difficulty tiers, and
// today's remaining quota. Hot enough to warrant a cache in front of it.
// ══════════════════════════════════════════════════════════════════════════════

// GetSnapshotQuery contains the snapshot request.
type GetSnapshotQuery struct {
	// LearnerID is the learner to snapshot.
	LearnerID string

	// Timestamp is the reference time (defaults to now if zero).
	Timestamp time.Time

	// BypassCache forces a rebuild from storage.
	BypassCache bool
}

// Validate checks the query parameters.
func (q GetSnapshotQuery) Validate() error {
	if !learner.ID(q.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	return nil
}

// SnapshotDTO is the selection read model.
type SnapshotDTO struct {
	LearnerID string `json:"learner_id"`

	// Partition is the effective content partition: "full" when the
	// learner has unlocked the bank or their plan grants it, otherwise
	// "restricted".
	Partition string `json:"partition"`

	// Unlocked reports the unlock gate state.
	Unlocked bool `json:"unlocked"`

	// Plan is the learner's entitlement plan.
	Plan string `json:"plan"`

	// Tiers maps category to the tier the next question should be drawn at.
	Tiers map[string]int `json:"tiers"`

	// DefaultTier is the tier for categories the learner has not touched.
	DefaultTier int `json:"default_tier"`

	// CurrentStreak is the global correct streak.
	CurrentStreak int `json:"current_streak"`

	// QuotaRemaining is today's remaining quota, or -1 for unlimited.
	QuotaRemaining int `json:"quota_remaining"`

	// GeneratedAt is when this snapshot was built.
	GeneratedAt time.Time `json:"generated_at"`
}

// SnapshotCache caches built snapshots. Implementations live in
// infrastructure; a nil cache disables caching.
type SnapshotCache interface {
	Get(ctx context.Context, learnerID learner.ID) (*SnapshotDTO, error)
	Set(ctx context.Context, snapshot *SnapshotDTO) error
	Invalidate(ctx context.Context, learnerID learner.ID) error
}

// GetSnapshotHandler handles the GetSnapshotQuery.
type GetSnapshotHandler struct {
	learnerRepo  learner.Repository
	quotaRepo    entitlement.QuotaRepository
	tierResolver entitlement.TierResolver
	cache        SnapshotCache
}

// NewGetSnapshotHandler creates a new GetSnapshotHandler. The cache may
// be nil.
func NewGetSnapshotHandler(
	learnerRepo learner.Repository,
	quotaRepo entitlement.QuotaRepository,
	tierResolver entitlement.TierResolver,
	cache SnapshotCache,
) *GetSnapshotHandler {
	return &GetSnapshotHandler{
		learnerRepo:  learnerRepo,
		quotaRepo:    quotaRepo,
		tierResolver: tierResolver,
		cache:        cache,
	}
}

// Handle executes the query.
func (h *GetSnapshotHandler) Handle(ctx context.Context, q GetSnapshotQuery) (*SnapshotDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_snapshot: %w", err)
	}

	timestamp := q.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	if h.cache != nil && !q.BypassCache {
		// Cache misses and cache failures both fall through to a rebuild.
		if cached, err := h.cache.Get(ctx, learner.ID(q.LearnerID)); err == nil && cached != nil {
			return cached, nil
		}
	}

	snapshot, err := h.build(ctx, q.LearnerID, timestamp)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.Set(ctx, snapshot)
	}
	return snapshot, nil
}

// build assembles the snapshot from storage.
func (h *GetSnapshotHandler) build(ctx context.Context, learnerID string, now time.Time) (*SnapshotDTO, error) {
	snapshot := &SnapshotDTO{
		LearnerID:   learnerID,
		Tiers:       make(map[string]int),
		DefaultTier: int(learner.TierFoundational),
		GeneratedAt: now,
	}

	loc := time.UTC
	unlocked := false

	progress, err := h.learnerRepo.GetByID(ctx, learner.ID(learnerID))
	if err == nil {
		loc = progress.Location()
		unlocked = progress.Unlock.Unlocked()
		snapshot.CurrentStreak = progress.CurrentStreak
		for category, state := range progress.Categories {
			snapshot.Tiers[category.String()] = int(state.Tier)
		}
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get_snapshot: failed to load progress: %w", err)
	}
	snapshot.Unlocked = unlocked

	tier, err := h.tierResolver.ResolveTier(ctx, learner.ID(learnerID))
	if err != nil {
		return nil, fmt.Errorf("get_snapshot: failed to resolve tier: %w", err)
	}
	snapshot.Plan = string(tier.Plan)

	// The unlock gate and the plan's own partition both widen access;
	// either one grants the full bank.
	if unlocked || tier.Partition == entitlement.PartitionFull {
		snapshot.Partition = string(entitlement.PartitionFull)
	} else {
		snapshot.Partition = string(entitlement.PartitionRestricted)
	}

	day := entitlement.DayKeyFor(now, loc)
	counter, err := h.quotaRepo.GetOrCreate(ctx, learner.ID(learnerID), day)
	if err != nil {
		return nil, fmt.Errorf("get_snapshot: failed to load quota: %w", err)
	}
	snapshot.QuotaRemaining = counter.Remaining(tier)

	return snapshot, nil
}
