package eval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/domain"
)

func TestCoerceScore(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`7`, 7},
		{`7.0`, 7},
		{`"7"`, 7},
		{`7.6`, 7.6},
		{`7.65`, 7.7},
		{`"8.25"`, 8.3},
		{`-5`, 0},
		{`42`, 10},
		{`"abc"`, 0},
		{`null`, 0},
		{`{"value":7}`, 0},
		{``, 0},
	}
	for _, c := range cases {
		if got := coerceScore(json.RawMessage(c.raw)); got != c.want {
			t.Errorf("coerceScore(%s) = %v, want %v", c.raw, got, c.want)
		}
	}
}

type stubStore struct {
	session    *domain.Session
	entries    []domain.TranscriptEntry
	saved      []domain.EvaluationResult
	existing   *domain.EvaluationResult
	saveErr    error
	transcript error
}

func (s *stubStore) GetSession(context.Context, uuid.UUID) (*domain.Session, error) {
	return s.session, nil
}

func (s *stubStore) Transcript(context.Context, uuid.UUID) ([]domain.TranscriptEntry, error) {
	return s.entries, s.transcript
}

func (s *stubStore) SaveResult(_ context.Context, r domain.EvaluationResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, r)
	return nil
}

func (s *stubStore) GetResult(context.Context, uuid.UUID) (*domain.EvaluationResult, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	return nil, domain.ErrResultNotFound
}

type stubGenerator struct {
	responses []string
	errs      []error
	calls     int
}

func (g *stubGenerator) GenerateJSON(context.Context, string, string) (string, error) {
	i := g.calls
	g.calls++
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	var resp string
	if i < len(g.responses) {
		resp = g.responses[i]
	}
	return resp, err
}

func testStore() *stubStore {
	return &stubStore{
		session: &domain.Session{ID: uuid.New(), Role: "backend engineer", Difficulty: "mid"},
		entries: []domain.TranscriptEntry{
			{Position: 0, QuestionText: "q1", QuestionType: domain.QuestionTechnical, AnswerText: "a1", Duration: 40 * time.Second},
			{Position: 1, QuestionText: "q2", QuestionType: domain.QuestionBehavioral, AnswerText: domain.NoAnswerSentinel},
		},
	}
}

func testEngine(store *stubStore, gen *stubGenerator) *Engine {
	e := NewEngine(store, gen)
	e.RetryDelay = time.Millisecond
	return e
}

const goodResponse = `{"overall_score":"7","technical_score":8,"communication_score":6.5,
	"problem_solving_score":7,"confidence_score":5,
	"strengths":["clear structure"],"improvements":["answer every question"],"summary":"solid"}`

func TestEvaluateStoresResult(t *testing.T) {
	store := testStore()
	gen := &stubGenerator{responses: []string{goodResponse}}
	e := testEngine(store, gen)

	r, err := e.Evaluate(context.Background(), store.session.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r.Overall != 7 || r.Technical != 8 || r.Communication != 6.5 {
		t.Fatalf("scores = %v/%v/%v, want 7/8/6.5", r.Overall, r.Technical, r.Communication)
	}
	if r.Placeholder {
		t.Fatal("real grade marked as placeholder")
	}
	if len(store.saved) != 1 {
		t.Fatalf("stored %d results, want 1", len(store.saved))
	}
	if store.saved[0].SessionID != store.session.ID {
		t.Fatal("stored result carries the wrong session id")
	}
}

func TestEvaluateRetriesOnce(t *testing.T) {
	store := testStore()
	gen := &stubGenerator{
		errs:      []error{errors.New("upstream 500"), nil},
		responses: []string{"", goodResponse},
	}
	e := testEngine(store, gen)

	r, err := e.Evaluate(context.Background(), store.session.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want 2", gen.calls)
	}
	if r.Placeholder {
		t.Fatal("successful retry still produced a placeholder")
	}
}

func TestEvaluatePlaceholderAfterTwoFailures(t *testing.T) {
	store := testStore()
	gen := &stubGenerator{errs: []error{errors.New("down"), errors.New("still down")}}
	e := testEngine(store, gen)

	r, err := e.Evaluate(context.Background(), store.session.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !r.Placeholder {
		t.Fatal("expected a placeholder result")
	}
	if r.Overall != 0 || r.Technical != 0 {
		t.Fatalf("placeholder scores not zeroed: %+v", r)
	}
	if len(store.saved) != 1 {
		t.Fatalf("stored %d results, want 1", len(store.saved))
	}
	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want exactly 2", gen.calls)
	}
}

func TestEvaluateBadJSONCountsAsFailure(t *testing.T) {
	store := testStore()
	gen := &stubGenerator{responses: []string{"not json", goodResponse}}
	e := testEngine(store, gen)

	r, err := e.Evaluate(context.Background(), store.session.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want 2", gen.calls)
	}
	if r.Placeholder {
		t.Fatal("valid retry output still produced a placeholder")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	store := testStore()
	store.existing = &domain.EvaluationResult{SessionID: store.session.ID, Overall: 6}
	gen := &stubGenerator{}
	e := testEngine(store, gen)

	r, err := e.Evaluate(context.Background(), store.session.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r.Overall != 6 {
		t.Fatalf("returned overall %v, want the stored 6", r.Overall)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times for an already graded session", gen.calls)
	}
}

func TestEvaluateEmptyTranscript(t *testing.T) {
	store := testStore()
	store.entries = nil
	e := testEngine(store, &stubGenerator{})

	if _, err := e.Evaluate(context.Background(), store.session.ID); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("err = %v, want ErrResultNotFound", err)
	}
}
