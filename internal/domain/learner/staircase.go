package learner

// Staircase parameters: three consecutive correct answers advance the
// tier, two consecutive incorrect answers lower it. A short, symmetric
// window keeps the learner oscillating near their true ability level
// without a full item-response model.
const (
	AdvanceAfterCorrect   = 3
	RetreatAfterIncorrect = 2
)

// StaircaseChange describes what a single answer did to a category's tier.
type StaircaseChange struct {
	// OldTier is the tier before the answer.
	OldTier Tier

	// NewTier is the tier after the answer.
	NewTier Tier

	// Advanced is true when the tier went up.
	Advanced bool

	// Retreated is true when the tier went down.
	Retreated bool
}

// Moved reports whether the tier changed at all.
func (c StaircaseChange) Moved() bool {
	return c.Advanced || c.Retreated
}

// Staircase applies one answer observation to a category state and
// returns the next state. It is a pure function of the prior state and
// the observation - no storage, no cross-category interaction.
//
// On a correct answer the correct streak grows and the incorrect streak
// resets; at three in a row the tier advances (capped at TierMax) and
// the streak resets. Incorrect answers mirror this with a threshold of
// two and a floor of TierMin. A tier already at the boundary still
// resets its streak when the triggering run completes - it does not
// bank extra progress.
func Staircase(state CategoryState, isCorrect bool) (CategoryState, StaircaseChange) {
	change := StaircaseChange{OldTier: state.Tier, NewTier: state.Tier}

	if isCorrect {
		state.ConsecutiveCorrect++
		state.ConsecutiveIncorrect = 0

		if state.ConsecutiveCorrect >= AdvanceAfterCorrect {
			state.ConsecutiveCorrect = 0
			if state.Tier < TierMax {
				state.Tier++
				change.NewTier = state.Tier
				change.Advanced = true
			}
		}
		return state, change
	}

	state.ConsecutiveIncorrect++
	state.ConsecutiveCorrect = 0

	if state.ConsecutiveIncorrect >= RetreatAfterIncorrect {
		state.ConsecutiveIncorrect = 0
		if state.Tier > TierMin {
			state.Tier--
			change.NewTier = state.Tier
			change.Retreated = true
		}
	}
	return state, change
}
