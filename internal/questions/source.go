package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/domain"
)

const (
	// cacheMaxAge bounds how stale a cached question may be before the
	// generator is asked for fresh ones.
	cacheMaxAge = 30 * 24 * time.Hour

	generatorSystemPrompt = "You are an experienced interviewer preparing questions for a mock interview. " +
		"Respond with a JSON object of the form " +
		`{"questions":[{"type":"technical|behavioral|situational|general","text":"...","keywords":["..."],"sample_answer":"...","time_budget_secs":60}]}. ` +
		"Questions must be answerable out loud in under two minutes. No markdown, JSON only."
)

// generator produces question JSON for a role and difficulty. Satisfied by
// llm.CerebrasClient.
type generator interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// questionStore is the slice of the store the source needs.
type questionStore interface {
	SaveQuestion(ctx context.Context, q *domain.Question) error
	CachedQuestions(ctx context.Context, role, difficulty string, limit int, maxAge time.Duration) ([]domain.Question, error)
}

// Source assembles the question list for a new session from three tiers:
// recently cached questions, freshly generated ones, and a static fallback
// pool. Every question it returns is already persisted.
type Source struct {
	Store     questionStore
	Generator generator
}

func NewSource(store questionStore, gen generator) *Source {
	return &Source{Store: store, Generator: gen}
}

// Fetch returns exactly count persisted questions for the role and
// difficulty, or fewer with domain.ErrNoQuestions when even the static pool
// cannot fill the list (count <= 0). A generator failure is logged and
// degraded past, never surfaced.
func (s *Source) Fetch(ctx context.Context, role, difficulty string, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, domain.ErrNoQuestions
	}

	seen := map[string]bool{}
	var out []domain.Question

	cached, err := s.Store.CachedQuestions(ctx, role, difficulty, count, cacheMaxAge)
	if err != nil {
		log.Printf("questions: cache lookup failed: %v", err)
	}
	for _, q := range cached {
		if seen[normalize(q.Text)] {
			continue
		}
		seen[normalize(q.Text)] = true
		out = append(out, q)
	}

	if missing := count - len(out); missing > 0 && s.Generator != nil {
		drafts, err := s.generate(ctx, role, difficulty, missing)
		if err != nil {
			log.Printf("questions: generation failed, falling back to static pool: %v", err)
		}
		out = s.persistDrafts(ctx, out, drafts, role, difficulty, domain.SourceGenerated, count, seen)
	}

	if missing := count - len(out); missing > 0 {
		out = s.persistDrafts(ctx, out, staticDrafts(missing, seen), role, difficulty, domain.SourceStatic, count, seen)
	}

	if len(out) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return out, nil
}

// persistDrafts saves drafts and appends them until out holds count
// questions. A draft that fails to persist is dropped; a session must never
// reference an unsaved question.
func (s *Source) persistDrafts(ctx context.Context, out []domain.Question, drafts []domain.QuestionDraft,
	role, difficulty string, source domain.QuestionSource, count int, seen map[string]bool) []domain.Question {
	for _, d := range drafts {
		if len(out) >= count {
			break
		}
		key := normalize(d.Text)
		if d.Text == "" || (source == domain.SourceGenerated && seen[key]) {
			continue
		}
		seen[key] = true
		q := domain.Question{
			ID:           uuid.New(),
			Role:         role,
			Difficulty:   difficulty,
			Type:         d.Type,
			Text:         d.Text,
			Keywords:     d.Keywords,
			SampleAnswer: d.SampleAnswer,
			TimeBudget:   d.TimeBudget,
			Source:       source,
			CreatedAt:    time.Now().UTC(),
		}
		if q.Type == "" {
			q.Type = domain.QuestionGeneral
		}
		if q.TimeBudget <= 0 {
			q.TimeBudget = 90 * time.Second
		}
		if err := s.Store.SaveQuestion(ctx, &q); err != nil {
			log.Printf("questions: persist failed, dropping question: %v", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

type generatedQuestion struct {
	Type           string   `json:"type"`
	Text           string   `json:"text"`
	Keywords       []string `json:"keywords"`
	SampleAnswer   string   `json:"sample_answer"`
	TimeBudgetSecs int      `json:"time_budget_secs"`
}

type generatedPayload struct {
	Questions []generatedQuestion `json:"questions"`
}

func (s *Source) generate(ctx context.Context, role, difficulty string, n int) ([]domain.QuestionDraft, error) {
	user := fmt.Sprintf("Generate %d interview questions for a %s candidate at %s difficulty. Mix the question types.",
		n, role, difficulty)
	raw, err := s.Generator.GenerateJSON(ctx, generatorSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("decode generated questions: %w", err)
	}

	drafts := make([]domain.QuestionDraft, 0, len(payload.Questions))
	for _, g := range payload.Questions {
		if strings.TrimSpace(g.Text) == "" {
			continue
		}
		drafts = append(drafts, domain.QuestionDraft{
			Type:         questionType(g.Type),
			Text:         strings.TrimSpace(g.Text),
			Keywords:     g.Keywords,
			SampleAnswer: g.SampleAnswer,
			TimeBudget:   time.Duration(g.TimeBudgetSecs) * time.Second,
		})
	}
	return drafts, nil
}

func questionType(raw string) domain.QuestionType {
	switch domain.QuestionType(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.QuestionTechnical:
		return domain.QuestionTechnical
	case domain.QuestionBehavioral:
		return domain.QuestionBehavioral
	case domain.QuestionSituational:
		return domain.QuestionSituational
	default:
		return domain.QuestionGeneral
	}
}
