// Package learner contains the learner-progress domain model: per-category
// difficulty state, lifetime counters, and the one-way content-unlock gate.
// This is the core of the business logic - there are no external dependencies here.
package learner

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID represents a stable learner identifier supplied by the identity provider.
type ID string

// IsValid checks that the learner ID is non-empty and has no whitespace.
func (id ID) IsValid() bool {
	s := string(id)
	return len(s) > 0 && len(s) <= 64 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation of the learner ID.
func (id ID) String() string {
	return string(id)
}

// Category represents a question category (e.g. "cardiology").
type Category string

// IsValid checks that the category is non-empty.
func (c Category) IsValid() bool {
	return len(strings.TrimSpace(string(c))) > 0
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// SubCategory represents an optional finer-grained topic within a category.
// An empty sub-category is folded into the "general" bucket for reporting.
type SubCategory string

// Normalize returns the sub-category, or "general" when empty.
func (s SubCategory) Normalize() SubCategory {
	if strings.TrimSpace(string(s)) == "" {
		return "general"
	}
	return s
}

// String returns the string representation of the sub-category.
func (s SubCategory) String() string {
	return string(s)
}

// Tier represents a difficulty tier.
type Tier int

// Difficulty tiers. The staircase never leaves this range.
const (
	TierFoundational Tier = 1
	TierCompetent    Tier = 2
	TierProficient   Tier = 3
	TierAdvanced     Tier = 4

	// TierMin and TierMax bound the staircase.
	TierMin = TierFoundational
	TierMax = TierAdvanced
)

// IsValid checks that the tier is within [TierMin, TierMax].
func (t Tier) IsValid() bool {
	return t >= TierMin && t <= TierMax
}

// Clamp forces the tier into [TierMin, TierMax].
func (t Tier) Clamp() Tier {
	if t < TierMin {
		return TierMin
	}
	if t > TierMax {
		return TierMax
	}
	return t
}

// String returns a human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierFoundational:
		return "foundational"
	case TierCompetent:
		return "competent"
	case TierProficient:
		return "proficient"
	case TierAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK GATE
// ══════════════════════════════════════════════════════════════════════════════

// UnlockState is the two-value state of the content-unlock gate.
// The only allowed transition is StateRestricted -> StateUnlocked; the
// type has no operation going the other way, so careless updates cannot
// re-lock a learner.
type UnlockState string

const (
	// StateRestricted is the initial state: only the restricted content
	// partition is visible.
	StateRestricted UnlockState = "restricted"

	// StateUnlocked is the terminal state: the full bank is visible.
	StateUnlocked UnlockState = "unlocked"
)

// IsValid checks the state is one of the two known values.
func (s UnlockState) IsValid() bool {
	return s == StateRestricted || s == StateUnlocked
}

// Unlocked reports whether the gate has fired.
func (s UnlockState) Unlocked() bool {
	return s == StateUnlocked
}

// QualifyingSessionsRequired is how many qualifying sessions open the gate.
const QualifyingSessionsRequired = 3

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY STATE
// ══════════════════════════════════════════════════════════════════════════════

// CategoryState holds the adaptive-difficulty state for one learner in one
// category. The streak counters are mutually exclusive: advancing one
// resets the other to zero.
type CategoryState struct {
	// Tier is the current difficulty tier, always within [1,4].
	Tier Tier

	// ConsecutiveCorrect counts correct answers since the last incorrect
	// answer or tier change.
	ConsecutiveCorrect int

	// ConsecutiveIncorrect counts incorrect answers since the last correct
	// answer or tier change.
	ConsecutiveIncorrect int

	// TotalAnswered is the lifetime answered count for this category.
	// Written only by the performance aggregator at session finish.
	TotalAnswered int

	// TotalCorrect is the lifetime correct count for this category.
	// Written only by the performance aggregator at session finish.
	TotalCorrect int

	// LastUpdated is when this state last changed.
	LastUpdated time.Time
}

// NewCategoryState returns the state for a category the learner has never
// answered in: foundational tier, zeroed counters.
func NewCategoryState() CategoryState {
	return CategoryState{
		Tier: TierFoundational,
	}
}

// Accuracy returns lifetime accuracy for the category, 0 when nothing
// has been answered.
func (s CategoryState) Accuracy() float64 {
	if s.TotalAnswered == 0 {
		return 0
	}
	return float64(s.TotalCorrect) / float64(s.TotalAnswered)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUB-CATEGORY STATS
// ══════════════════════════════════════════════════════════════════════════════

// SubCategoryStat holds cumulative answered/correct counters for one
// (learner, category, sub-category) triple. Written only by the
// performance aggregator.
type SubCategoryStat struct {
	LearnerID     ID
	Category      Category
	SubCategory   SubCategory
	TotalAnswered int
	TotalCorrect  int
	LastUpdated   time.Time
}

// Accuracy returns the accuracy for this sub-category, 0 when empty.
func (s SubCategoryStat) Accuracy() float64 {
	if s.TotalAnswered == 0 {
		return 0
	}
	return float64(s.TotalCorrect) / float64(s.TotalAnswered)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the aggregate root for one learner's adaptive state. It is
// created on the learner's first answer event and never deleted.
type Progress struct {
	// LearnerID identifies the learner.
	LearnerID ID

	// Timezone is the learner's configured IANA zone for quota day
	// boundaries. Empty means UTC.
	Timezone string

	// Categories maps category -> adaptive state.
	Categories map[Category]CategoryState

	// TotalAnswered is the lifetime answered count across categories.
	TotalAnswered int

	// TotalCorrect is the lifetime correct count across categories.
	TotalCorrect int

	// CurrentStreak is the global streak of consecutive correct answers.
	CurrentStreak int

	// HighestStreak is the best streak ever observed, in-session peaks
	// included.
	HighestStreak int

	// QualifyingSessions counts finalized exam sessions that met the
	// qualification criteria.
	QualifyingSessions int

	// Unlock is the content-unlock gate state.
	Unlock UnlockState

	// CreatedAt is when this record was created.
	CreatedAt time.Time

	// UpdatedAt is when this record last changed.
	UpdatedAt time.Time
}

// NewProgress creates an empty progress record for a learner.
func NewProgress(learnerID ID) *Progress {
	now := time.Now().UTC()
	return &Progress{
		LearnerID:  learnerID,
		Categories: make(map[Category]CategoryState),
		Unlock:     StateRestricted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CategoryState returns the state for a category, creating the
// foundational default if the learner has never touched it.
func (p *Progress) CategoryState(category Category) CategoryState {
	if state, ok := p.Categories[category]; ok {
		return state
	}
	return NewCategoryState()
}

// RecordAnswer runs the staircase for the answered category and updates
// the global streak and lifetime totals. It returns the staircase change
// so callers can report the new tier.
func (p *Progress) RecordAnswer(category Category, isCorrect bool, now time.Time) StaircaseChange {
	state := p.CategoryState(category)
	next, change := Staircase(state, isCorrect)
	next.LastUpdated = now
	p.Categories[category] = next

	p.TotalAnswered++
	if isCorrect {
		p.TotalCorrect++
		p.CurrentStreak++
		if p.CurrentStreak > p.HighestStreak {
			p.HighestStreak = p.CurrentStreak
		}
	} else {
		p.CurrentStreak = 0
	}
	p.UpdatedAt = now

	return change
}

// RecordQualifyingSession increments the qualifying-session counter and
// fires the unlock gate when the threshold is reached. It returns true
// only on the transition itself; once unlocked the gate stays unlocked.
func (p *Progress) RecordQualifyingSession(now time.Time) (justUnlocked bool) {
	p.QualifyingSessions++
	p.UpdatedAt = now

	if !p.Unlock.Unlocked() && p.QualifyingSessions >= QualifyingSessionsRequired {
		p.Unlock = StateUnlocked
		return true
	}
	return false
}

// SessionsRemaining returns how many more qualifying sessions the learner
// needs to open the gate.
func (p *Progress) SessionsRemaining() int {
	remaining := QualifyingSessionsRequired - p.QualifyingSessions
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FoldCategoryCounts adds a finished session's per-category counts into
// the lifetime category totals. Purely additive and commutative; the
// aggregator is the only caller.
func (p *Progress) FoldCategoryCounts(category Category, answered, correct int, now time.Time) {
	state := p.CategoryState(category)
	state.TotalAnswered += answered
	state.TotalCorrect += correct
	state.LastUpdated = now
	p.Categories[category] = state
	p.UpdatedAt = now
}

// FoldPeakStreak raises HighestStreak if a finished session's peak
// in-session streak exceeds the lifetime high.
func (p *Progress) FoldPeakStreak(peak int, now time.Time) {
	if peak > p.HighestStreak {
		p.HighestStreak = peak
		p.UpdatedAt = now
	}
}

// Location resolves the learner's quota time zone, falling back to UTC
// when unset or unparseable.
func (p *Progress) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
