package session

import "fmt"

// Qualification criteria: a timed exam session of at least 50 items
// scoring at least 85% correct counts toward unlocking the full bank.
const (
	QualifyingMinQuestions = 50
	QualifyingMinAccuracy  = 0.85
)

// QualificationResult explains whether and why a session qualifies.
type QualificationResult struct {
	Qualifies bool
	Reason    string
}

// EvaluateQualification inspects a finalized session summary against the
// fixed qualification criteria. Non-exam sessions, abandoned sessions,
// and exam sessions below either threshold never qualify, regardless of
// how high accuracy is on fewer questions.
func EvaluateQualification(summary *Summary) QualificationResult {
	if summary.Abandoned {
		return QualificationResult{Reason: "session was abandoned"}
	}
	if summary.Mode != ModeExam {
		return QualificationResult{Reason: "only exam sessions qualify"}
	}
	if summary.QuestionsAnswered < QualifyingMinQuestions {
		return QualificationResult{
			Reason: fmt.Sprintf("answered %d of the required %d questions",
				summary.QuestionsAnswered, QualifyingMinQuestions),
		}
	}
	if summary.Accuracy < QualifyingMinAccuracy {
		return QualificationResult{
			Reason: fmt.Sprintf("accuracy %.2f below the required %.2f",
				summary.Accuracy, QualifyingMinAccuracy),
		}
	}

	return QualificationResult{Qualifies: true, Reason: "qualifying session"}
}
