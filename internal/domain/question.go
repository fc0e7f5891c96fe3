package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType classifies what a question is probing for.
type QuestionType string

const (
	QuestionTechnical   QuestionType = "technical"
	QuestionBehavioral  QuestionType = "behavioral"
	QuestionSituational QuestionType = "situational"
	QuestionGeneral     QuestionType = "general"
)

// QuestionSource records which tier produced a question.
type QuestionSource string

const (
	SourceCached    QuestionSource = "cached"
	SourceGenerated QuestionSource = "generated"
	SourceStatic    QuestionSource = "static"
)

// Question is immutable once issued to a session. Every question a session
// references has already been persisted, so answers always have a stable
// foreign key.
type Question struct {
	ID           uuid.UUID
	Role         string
	Difficulty   string
	Type         QuestionType
	Text         string
	Keywords     []string
	SampleAnswer string
	// TimeBudget is advisory UI information only; the orchestrator enforces
	// its own hard listening ceiling.
	TimeBudget time.Duration
	Source     QuestionSource
	CreatedAt  time.Time
}

// QuestionDraft is an unpersisted question produced by the generator or the
// static pool. It has no identity until the store assigns one.
type QuestionDraft struct {
	Type         QuestionType
	Text         string
	Keywords     []string
	SampleAnswer string
	TimeBudget   time.Duration
}
