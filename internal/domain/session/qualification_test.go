package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func examSummary(t *testing.T, mode Mode, answered, correct int) *Summary {
	t.Helper()

	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s, err := New("learner-1", mode, started)
	require.NoError(t, err)

	for i := 0; i < answered; i++ {
		event := answerAt("q", i < correct, started.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, s.Append(event))
	}
	return s.Finish(started.Add(2 * time.Hour))
}

func TestEvaluateQualification(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		answered  int
		correct   int
		qualifies bool
	}{
		{"exactly at both thresholds", ModeExam, 50, 43, true},         // 43/50 = 0.86
		{"exactly minimum accuracy", ModeExam, 100, 85, true},          // 85/100 = 0.85
		{"one question short at full accuracy", ModeExam, 49, 49, false},
		{"accuracy just below threshold", ModeExam, 100, 84, false},    // 0.84
		{"42 of 50 misses accuracy", ModeExam, 50, 42, false},          // 0.84
		{"practice session never qualifies", ModePractice, 60, 60, false},
		{"empty exam session", ModeExam, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateQualification(examSummary(t, tt.mode, tt.answered, tt.correct))
			assert.Equal(t, tt.qualifies, result.Qualifies)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestEvaluateQualification_AbandonedNeverQualifies(t *testing.T) {
	started := time.Now().UTC()
	s, err := New("learner-1", ModeExam, started)
	require.NoError(t, err)

	// A perfect run that would otherwise qualify.
	for i := 0; i < QualifyingMinQuestions; i++ {
		require.NoError(t, s.Append(answerAt("q", true, started.Add(time.Duration(i+1)*time.Minute))))
	}
	summary := s.Abandon(started.Add(3 * time.Hour))

	result := EvaluateQualification(summary)
	assert.False(t, result.Qualifies)
	assert.Contains(t, result.Reason, "abandoned")
}
