package domain

import (
	"time"

	"github.com/google/uuid"
)

// NoAnswerSentinel marks a question the candidate did not answer (timeout,
// explicit skip, or capture/transcription failure). It is a real stored
// value, never null and never omitted, so evaluation still sees the turn.
const NoAnswerSentinel = "[no answer]"

// Answer is the transcribed response to one question within one session.
// The (SessionID, QuestionID) pair is unique; writes are idempotent.
type Answer struct {
	SessionID  uuid.UUID
	QuestionID uuid.UUID
	// Position is the zero-based issuance order within the session. The
	// evaluation transcript is ordered by it, not by storage timestamp.
	Position int
	Text      string
	Duration  time.Duration
	CreatedAt time.Time
}

// NoAnswer reports whether this answer carries the no-answer sentinel.
func (a *Answer) NoAnswer() bool { return a.Text == NoAnswerSentinel }
