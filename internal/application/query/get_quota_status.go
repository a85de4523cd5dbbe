package query

import (
	"context"
	"fmt"
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/entitlement"
	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
	"github.com/medprep-hub/assessment-engine/internal/domain/shared"
	"github.com/medprep-hub/assessment-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET QUOTA STATUS QUERY
// Reports today's quota consumption without charging anything. The "day"
// is the learner's local calendar day.
// ══════════════════════════════════════════════════════════════════════════════

// GetQuotaStatusQuery contains the quota status request.
type GetQuotaStatusQuery struct {
	// LearnerID is the learner to report on.
	LearnerID string

	// Timestamp is the reference time (defaults to now if zero).
	Timestamp time.Time
}

// Validate checks the query parameters.
func (q GetQuotaStatusQuery) Validate() error {
	if !learner.ID(q.LearnerID).IsValid() {
		return shared.ErrInvalidLearnerID
	}
	return nil
}

// QuotaStatusDTO is the quota read model.
type QuotaStatusDTO struct {
	LearnerID string `json:"learner_id"`

	// Plan is the learner's entitlement plan.
	Plan string `json:"plan"`

	// Day is the learner-local day key (YYYY-MM-DD).
	Day string `json:"day"`

	// DailyCap is the day's cap, or -1 for unlimited.
	DailyCap int `json:"daily_cap"`

	// Consumed is how many questions were charged today.
	Consumed int `json:"consumed"`

	// Remaining is how many remain, or -1 for unlimited.
	Remaining int `json:"remaining"`

	// Unlimited reports whether the plan has no daily cap.
	Unlimited bool `json:"unlimited"`

	// ResetsIn is how long until the local day rolls over.
	ResetsIn string `json:"resets_in"`
}

// GetQuotaStatusHandler handles the GetQuotaStatusQuery.
type GetQuotaStatusHandler struct {
	learnerRepo  learner.Repository
	quotaRepo    entitlement.QuotaRepository
	tierResolver entitlement.TierResolver
}

// NewGetQuotaStatusHandler creates a new GetQuotaStatusHandler.
func NewGetQuotaStatusHandler(
	learnerRepo learner.Repository,
	quotaRepo entitlement.QuotaRepository,
	tierResolver entitlement.TierResolver,
) *GetQuotaStatusHandler {
	return &GetQuotaStatusHandler{
		learnerRepo:  learnerRepo,
		quotaRepo:    quotaRepo,
		tierResolver: tierResolver,
	}
}

// Handle executes the query.
func (h *GetQuotaStatusHandler) Handle(ctx context.Context, q GetQuotaStatusQuery) (*QuotaStatusDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_quota_status: %w", err)
	}

	timestamp := q.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	loc := time.UTC
	progress, err := h.learnerRepo.GetByID(ctx, learner.ID(q.LearnerID))
	if err == nil {
		loc = progress.Location()
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get_quota_status: failed to load progress: %w", err)
	}

	tier, err := h.tierResolver.ResolveTier(ctx, learner.ID(q.LearnerID))
	if err != nil {
		return nil, fmt.Errorf("get_quota_status: failed to resolve tier: %w", err)
	}

	day := entitlement.DayKeyFor(timestamp, loc)
	counter, err := h.quotaRepo.GetOrCreate(ctx, learner.ID(q.LearnerID), day)
	if err != nil {
		return nil, fmt.Errorf("get_quota_status: failed to load quota: %w", err)
	}

	return &QuotaStatusDTO{
		LearnerID: q.LearnerID,
		Plan:      string(tier.Plan),
		Day:       string(day),
		DailyCap:  tier.DailyCap,
		Consumed:  counter.Consumed,
		Remaining: counter.Remaining(tier),
		Unlimited: tier.IsUnlimited(),
		ResetsIn:  timeutil.UntilMidnight(timestamp, loc).Truncate(time.Second).String(),
	}, nil
}
