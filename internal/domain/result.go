package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScoreMin and ScoreMax bound every evaluation score.
const (
	ScoreMin = 0.0
	ScoreMax = 10.0
)

// EvaluationResult is the single holistic grade for a completed or aborted
// session with at least one answer. It is inserted exactly once, after every
// answer for the session is durably stored.
type EvaluationResult struct {
	SessionID      uuid.UUID
	Overall        float64
	Technical      float64
	Communication  float64
	ProblemSolving float64
	Confidence     float64
	Strengths      []string
	Improvements   []string
	Summary        string
	// Placeholder is set when the evaluation service was unreachable and the
	// result carries zeroed scores instead of a real grade.
	Placeholder bool
	CreatedAt   time.Time
}

// TranscriptEntry is one ordered question/answer pair fed to the evaluator.
type TranscriptEntry struct {
	Position     int
	QuestionText string
	QuestionType QuestionType
	Keywords     []string
	AnswerText   string
	Duration     time.Duration
}
