package redis

import (
	"context"

	"github.com/medprep-hub/assessment-engine/internal/application/query"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
)

// SnapshotCache implements query.SnapshotCache using the generic Redis
// Cache. Entries carry a short TTL so a missed invalidation self-corrects.
type SnapshotCache struct {
	cache *Cache
}

// NewSnapshotCache creates a new SnapshotCache.
func NewSnapshotCache(cache *Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

// Get returns the cached snapshot for a learner.
// Returns ErrCacheMiss when no snapshot is cached.
func (s *SnapshotCache) Get(ctx context.Context, learnerID learner.ID) (*query.SnapshotDTO, error) {
	var snapshot query.SnapshotDTO
	if err := s.cache.Get(ctx, SnapshotKey(learnerID.String()), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Set stores a snapshot under the snapshot TTL.
func (s *SnapshotCache) Set(ctx context.Context, snapshot *query.SnapshotDTO) error {
	if snapshot == nil {
		return nil
	}
	return s.cache.Set(ctx, SnapshotKey(snapshot.LearnerID), snapshot, TTLSnapshot)
}

// Invalidate drops the cached snapshot for a learner.
func (s *SnapshotCache) Invalidate(ctx context.Context, learnerID learner.ID) error {
	return s.cache.Delete(ctx, SnapshotKey(learnerID.String()))
}
