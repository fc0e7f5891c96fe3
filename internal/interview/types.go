package interview

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/capture"
	"github.com/chadiek/interview-coach/internal/domain"
)

// State is the orchestrator's phase within a single turn. Transitions are
// strictly sequential per session; only distinct sessions run concurrently.
type State string

const (
	StateSetup        State = "setup"
	StateGreeting     State = "greeting"
	StateAsking       State = "asking"
	StateListening    State = "listening"
	StateTranscribing State = "transcribing"
	StatePersisting   State = "persisting"
	StateAdvancing    State = "advancing"
	StateEvaluating   State = "evaluating"
	StateDone         State = "done"
	StateAborted      State = "aborted"
)

// Event is a state change pushed to subscribers (the websocket layer, tests).
type Event struct {
	State    State
	Index    int
	Total    int
	Question string
	Detail   string
}

// Speaker voices text to the candidate. Satisfied by speech.Fallback and the
// concrete TTS clients.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Transcriber turns a WAV recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// SessionStore is the slice of storage the orchestrator needs for session
// lifecycle writes.
type SessionStore interface {
	SetSessionStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) error
	UpdateSessionProgress(ctx context.Context, id uuid.UUID, currentIndex int) error
}

// AnswerStore persists answers and exposes the count the abort path needs.
type AnswerStore interface {
	SaveAnswer(ctx context.Context, a domain.Answer) error
	CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// Evaluator produces the session's single evaluation result. It owns its own
// retry and placeholder behavior; the orchestrator only triggers it.
type Evaluator interface {
	Evaluate(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error)
}

// Archiver stores raw answer audio. Best effort: failures never block a turn.
type Archiver interface {
	ArchiveAnswer(ctx context.Context, sessionID, questionID uuid.UUID, wav []byte) error
}

// Recorder matches capture.Device.
type Recorder = capture.Recorder

// DefaultListenTimeout is the hard per-question listening ceiling. A
// question's advisory time budget never extends it.
const DefaultListenTimeout = 90 * time.Second
