package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/domain"
)

const systemPrompt = "You are a rigorous but fair interview assessor. You receive a mock interview transcript " +
	"and score the candidate from 0 to 10 on overall performance, technical depth, communication, " +
	"problem solving, and confidence. A question marked " + domain.NoAnswerSentinel + " was not answered " +
	"and should lower the relevant scores. Respond with a JSON object: " +
	`{"overall_score":0,"technical_score":0,"communication_score":0,"problem_solving_score":0,"confidence_score":0,` +
	`"strengths":["..."],"improvements":["..."],"summary":"..."}. JSON only, no markdown.`

type generator interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// evalStore is the slice of storage the engine needs: the ordered transcript
// in, the single result out.
type evalStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Transcript(ctx context.Context, sessionID uuid.UUID) ([]domain.TranscriptEntry, error)
	SaveResult(ctx context.Context, r domain.EvaluationResult) error
	GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error)
}

// Engine grades finished sessions. One session gets exactly one result: a
// repeat call returns the stored grade instead of re-asking the model.
type Engine struct {
	Store     evalStore
	Generator generator
	// RetryDelay is the pause before the single retry. Shortened in tests.
	RetryDelay time.Duration
}

func NewEngine(store evalStore, gen generator) *Engine {
	return &Engine{Store: store, Generator: gen, RetryDelay: 2 * time.Second}
}

// Evaluate grades the session's transcript. A model that fails twice still
// produces a stored result: a placeholder with zeroed scores, so the session
// always ends with something to show.
func (e *Engine) Evaluate(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error) {
	if existing, err := e.Store.GetResult(ctx, sessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrResultNotFound) {
		return nil, err
	}

	sess, err := e.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := e.Store.Transcript(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if len(entries) == 0 {
		return nil, domain.ErrResultNotFound
	}

	result, err := e.grade(ctx, sess, entries)
	if err != nil {
		log.Printf("eval: session %s: first attempt failed: %v", sessionID, err)
		select {
		case <-time.After(e.RetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		result, err = e.grade(ctx, sess, entries)
	}
	if err != nil {
		log.Printf("eval: session %s: retry failed, storing placeholder: %v", sessionID, err)
		result = placeholder(sessionID)
	}
	result.SessionID = sessionID
	result.CreatedAt = time.Now().UTC()

	if err := e.Store.SaveResult(ctx, *result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) grade(ctx context.Context, sess *domain.Session, entries []domain.TranscriptEntry) (*domain.EvaluationResult, error) {
	raw, err := e.Generator.GenerateJSON(ctx, systemPrompt, buildPrompt(sess, entries))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Overall        json.RawMessage `json:"overall_score"`
		Technical      json.RawMessage `json:"technical_score"`
		Communication  json.RawMessage `json:"communication_score"`
		ProblemSolving json.RawMessage `json:"problem_solving_score"`
		Confidence     json.RawMessage `json:"confidence_score"`
		Strengths      []string        `json:"strengths"`
		Improvements   []string        `json:"improvements"`
		Summary        string          `json:"summary"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}

	return &domain.EvaluationResult{
		Overall:        coerceScore(payload.Overall),
		Technical:      coerceScore(payload.Technical),
		Communication:  coerceScore(payload.Communication),
		ProblemSolving: coerceScore(payload.ProblemSolving),
		Confidence:     coerceScore(payload.Confidence),
		Strengths:      payload.Strengths,
		Improvements:   payload.Improvements,
		Summary:        payload.Summary,
	}, nil
}

func buildPrompt(sess *domain.Session, entries []domain.TranscriptEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\nDifficulty: %s\nQuestions asked: %d\n\n", sess.Role, sess.Difficulty, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "Q%d (%s): %s\n", e.Position+1, e.QuestionType, e.QuestionText)
		if len(e.Keywords) > 0 {
			fmt.Fprintf(&b, "Expected topics: %s\n", strings.Join(e.Keywords, ", "))
		}
		fmt.Fprintf(&b, "Answer (%.0fs): %s\n\n", e.Duration.Seconds(), e.AnswerText)
	}
	return b.String()
}

func placeholder(sessionID uuid.UUID) *domain.EvaluationResult {
	return &domain.EvaluationResult{
		SessionID:   sessionID,
		Summary:     "Automatic evaluation was unavailable for this session.",
		Placeholder: true,
	}
}
