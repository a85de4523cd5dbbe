package learner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_RecordAnswerScenario(t *testing.T) {
	// A learner with empty state submits 3 correct answers in cardiology:
	// tier goes 1 -> 2 with streak counters reset. Two incorrect next:
	// tier goes back 2 -> 1.
	now := time.Now().UTC()
	progress := NewProgress("learner-1")

	var change StaircaseChange
	for i := 0; i < 3; i++ {
		change = progress.RecordAnswer("cardiology", true, now)
	}
	require.True(t, change.Advanced)

	state := progress.CategoryState("cardiology")
	assert.Equal(t, TierCompetent, state.Tier)
	assert.Equal(t, 0, state.ConsecutiveCorrect)
	assert.Equal(t, 0, state.ConsecutiveIncorrect)
	assert.Equal(t, 3, progress.CurrentStreak)
	assert.Equal(t, 3, progress.TotalAnswered)
	assert.Equal(t, 3, progress.TotalCorrect)

	change = progress.RecordAnswer("cardiology", false, now)
	assert.False(t, change.Moved())
	assert.Equal(t, 0, progress.CurrentStreak)

	change = progress.RecordAnswer("cardiology", false, now)
	require.True(t, change.Retreated)
	assert.Equal(t, TierFoundational, progress.CategoryState("cardiology").Tier)
	assert.Equal(t, 3, progress.HighestStreak)
}

func TestProgress_CategoriesAreIndependent(t *testing.T) {
	now := time.Now().UTC()
	progress := NewProgress("learner-1")

	for i := 0; i < 3; i++ {
		progress.RecordAnswer("cardiology", true, now)
	}
	progress.RecordAnswer("neurology", false, now)

	assert.Equal(t, TierCompetent, progress.CategoryState("cardiology").Tier)
	assert.Equal(t, TierFoundational, progress.CategoryState("neurology").Tier)

	// An untouched category reads as a fresh foundational state.
	assert.Equal(t, NewCategoryState(), progress.CategoryState("pharmacology"))
}

func TestProgress_UnlockGateIsOneWay(t *testing.T) {
	now := time.Now().UTC()
	progress := NewProgress("learner-1")
	assert.Equal(t, StateRestricted, progress.Unlock)
	assert.Equal(t, 3, progress.SessionsRemaining())

	assert.False(t, progress.RecordQualifyingSession(now))
	assert.False(t, progress.RecordQualifyingSession(now))
	assert.Equal(t, 1, progress.SessionsRemaining())

	// The third qualifying session fires the gate, exactly once.
	assert.True(t, progress.RecordQualifyingSession(now))
	assert.True(t, progress.Unlock.Unlocked())
	assert.Equal(t, 0, progress.SessionsRemaining())

	// Further qualifying sessions keep counting but never re-fire.
	assert.False(t, progress.RecordQualifyingSession(now))
	assert.True(t, progress.Unlock.Unlocked())
	assert.Equal(t, 4, progress.QualifyingSessions)
}

func TestProgress_FoldCategoryCounts(t *testing.T) {
	now := time.Now().UTC()
	progress := NewProgress("learner-1")

	progress.FoldCategoryCounts("cardiology", 10, 8, now)
	progress.FoldCategoryCounts("cardiology", 5, 5, now)

	state := progress.CategoryState("cardiology")
	assert.Equal(t, 15, state.TotalAnswered)
	assert.Equal(t, 13, state.TotalCorrect)
	assert.InDelta(t, 13.0/15.0, state.Accuracy(), 1e-9)

	// Folding never touches the staircase counters.
	assert.Equal(t, TierFoundational, state.Tier)
	assert.Zero(t, state.ConsecutiveCorrect)
}

func TestProgress_FoldPeakStreak(t *testing.T) {
	now := time.Now().UTC()
	progress := NewProgress("learner-1")
	progress.HighestStreak = 7

	progress.FoldPeakStreak(5, now)
	assert.Equal(t, 7, progress.HighestStreak)

	progress.FoldPeakStreak(12, now)
	assert.Equal(t, 12, progress.HighestStreak)
}

func TestProgress_LocationFallsBackToUTC(t *testing.T) {
	progress := NewProgress("learner-1")
	assert.Equal(t, time.UTC, progress.Location())

	progress.Timezone = "not/a-zone"
	assert.Equal(t, time.UTC, progress.Location())

	progress.Timezone = "Asia/Almaty"
	loc := progress.Location()
	require.NotNil(t, loc)
	assert.Equal(t, "Asia/Almaty", loc.String())
}

func TestSubCategoryNormalize(t *testing.T) {
	assert.Equal(t, SubCategory("general"), SubCategory("").Normalize())
	assert.Equal(t, SubCategory("general"), SubCategory("  ").Normalize())
	assert.Equal(t, SubCategory("arrhythmia"), SubCategory("arrhythmia").Normalize())
}

func TestTierClamp(t *testing.T) {
	assert.Equal(t, TierMin, Tier(0).Clamp())
	assert.Equal(t, TierMin, Tier(-3).Clamp())
	assert.Equal(t, TierMax, Tier(9).Clamp())
	assert.Equal(t, TierProficient, TierProficient.Clamp())
}
