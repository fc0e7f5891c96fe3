package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status of an interview attempt.
// A session is terminal once it leaves StatusActive.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAborted   SessionStatus = "aborted"
)

// Session is one end-to-end interview attempt by one candidate.
// Only the orchestrator mutates it after creation.
type Session struct {
	ID                uuid.UUID
	CandidateID       string
	Role              string
	Difficulty        string
	Status            SessionStatus
	QuestionIDs       []uuid.UUID
	CurrentIndex      int
	QuestionsAnswered int
	StartedAt         time.Time
	EndedAt           *time.Time
}

// Finished reports whether the session has reached a terminal status.
func (s *Session) Finished() bool {
	return s.Status == StatusCompleted || s.Status == StatusAborted
}
