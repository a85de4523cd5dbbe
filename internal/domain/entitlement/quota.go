package entitlement

import (
	"time"

	"github.com/medprep-hub/assessment-engine/internal/domain/learner"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA COUNTER
// ══════════════════════════════════════════════════════════════════════════════

// DayKey identifies one calendar day in the learner's quota zone,
// formatted as YYYY-MM-DD.
type DayKey string

// DayKeyFor returns the day key for an instant in a zone.
func DayKeyFor(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(loc).Format("2006-01-02"))
}

// QuotaCounter tracks how many items a learner has consumed on one
// calendar day. Consumed is monotonically non-decreasing within a day
// and never negative; a fresh counter is created implicitly when the
// date rolls over.
type QuotaCounter struct {
	LearnerID learner.ID
	Day       DayKey
	Consumed  int
	UpdatedAt time.Time
}

// NewQuotaCounter creates a zeroed counter for a learner and day.
func NewQuotaCounter(learnerID learner.ID, day DayKey) *QuotaCounter {
	return &QuotaCounter{
		LearnerID: learnerID,
		Day:       day,
	}
}

// ConsumeResult is the outcome of a checkAndConsume call.
type ConsumeResult struct {
	// Allowed is true when the item may be consumed.
	Allowed bool

	// Remaining is the number of items left today after this consume,
	// or Unlimited for uncapped tiers.
	Remaining int

	// Unlimited is true for uncapped tiers.
	Unlimited bool
}

// Consume checks the counter against a tier's cap and increments it on
// success. A rejected consume never mutates the counter, so repeated
// calls after exhaustion are idempotent: Consumed never passes the cap
// and Remaining never goes below zero.
func (q *QuotaCounter) Consume(tier Tier, now time.Time) ConsumeResult {
	if tier.IsUnlimited() {
		return ConsumeResult{Allowed: true, Remaining: Unlimited, Unlimited: true}
	}

	if q.Consumed >= tier.DailyCap {
		return ConsumeResult{Allowed: false, Remaining: 0}
	}

	q.Consumed++
	q.UpdatedAt = now
	return ConsumeResult{Allowed: true, Remaining: tier.DailyCap - q.Consumed}
}

// Remaining returns how many items are left today without consuming.
func (q *QuotaCounter) Remaining(tier Tier) int {
	if tier.IsUnlimited() {
		return Unlimited
	}
	remaining := tier.DailyCap - q.Consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}
