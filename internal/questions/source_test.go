package questions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/domain"
)

type fakeStore struct {
	cached    []domain.Question
	cacheErr  error
	saved     []domain.Question
	saveErr   error
	saveCalls int
}

func (f *fakeStore) SaveQuestion(_ context.Context, q *domain.Question) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *q)
	return nil
}

func (f *fakeStore) CachedQuestions(_ context.Context, _, _ string, limit int, _ time.Duration) ([]domain.Question, error) {
	if f.cacheErr != nil {
		return nil, f.cacheErr
	}
	if len(f.cached) > limit {
		return f.cached[:limit], nil
	}
	return f.cached, nil
}

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func cachedQuestion(text string) domain.Question {
	return domain.Question{
		ID:        uuid.New(),
		Role:      "backend engineer",
		Type:      domain.QuestionTechnical,
		Text:      text,
		Source:    domain.SourceCached,
		CreatedAt: time.Now(),
	}
}

func TestFetchPrefersCache(t *testing.T) {
	store := &fakeStore{cached: []domain.Question{
		cachedQuestion("q one"), cachedQuestion("q two"), cachedQuestion("q three"),
	}}
	gen := &fakeGenerator{}
	src := NewSource(store, gen)

	got, err := src.Fetch(context.Background(), "backend engineer", "mid", 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d questions, want 3", len(got))
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times for a fully cached fetch", gen.calls)
	}
	if store.saveCalls != 0 {
		t.Fatalf("cached questions re-persisted %d times", store.saveCalls)
	}
}

func TestFetchGeneratesAndPersistsShortfall(t *testing.T) {
	store := &fakeStore{cached: []domain.Question{cachedQuestion("from cache")}}
	gen := &fakeGenerator{response: `{"questions":[
		{"type":"technical","text":"Explain indexes.","keywords":["btree"],"time_budget_secs":60},
		{"type":"behavioral","text":"Tell me about a deadline you missed."}
	]}`}
	src := NewSource(store, gen)

	got, err := src.Fetch(context.Background(), "backend engineer", "mid", 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d questions, want 3", len(got))
	}
	if len(store.saved) != 2 {
		t.Fatalf("persisted %d generated questions, want 2", len(store.saved))
	}
	for _, q := range store.saved {
		if q.Source != domain.SourceGenerated {
			t.Fatalf("persisted question has source %q, want generated", q.Source)
		}
		if q.ID == (uuid.UUID{}) {
			t.Fatal("persisted question has zero id")
		}
	}
	// a draft without a budget gets the default
	if store.saved[1].TimeBudget != 90*time.Second {
		t.Fatalf("default time budget = %s, want 90s", store.saved[1].TimeBudget)
	}
}

func TestFetchFallsBackToStaticPool(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{err: errors.New("upstream down")}
	src := NewSource(store, gen)

	got, err := src.Fetch(context.Background(), "backend engineer", "senior", 4)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d questions, want 4", len(got))
	}
	for _, q := range got {
		if q.Source != domain.SourceStatic {
			t.Fatalf("question source = %q, want static", q.Source)
		}
	}
	if len(store.saved) != 4 {
		t.Fatalf("persisted %d static questions, want 4", len(store.saved))
	}
}

func TestFetchBadGeneratorJSONDegrades(t *testing.T) {
	store := &fakeStore{}
	gen := &fakeGenerator{response: "not json at all"}
	src := NewSource(store, gen)

	got, err := src.Fetch(context.Background(), "backend engineer", "junior", 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
	for _, q := range got {
		if q.Source != domain.SourceStatic {
			t.Fatalf("question source = %q, want static", q.Source)
		}
	}
}

func TestFetchSkipsDuplicateGeneratedText(t *testing.T) {
	store := &fakeStore{cached: []domain.Question{cachedQuestion("Explain indexes.")}}
	gen := &fakeGenerator{response: `{"questions":[
		{"type":"technical","text":"Explain indexes."},
		{"type":"technical","text":"Explain transactions."}
	]}`}
	src := NewSource(store, gen)

	got, err := src.Fetch(context.Background(), "backend engineer", "mid", 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
	if got[1].Text != "Explain transactions." {
		t.Fatalf("duplicate not skipped, second question is %q", got[1].Text)
	}
}

func TestFetchZeroCount(t *testing.T) {
	src := NewSource(&fakeStore{}, &fakeGenerator{})
	if _, err := src.Fetch(context.Background(), "role", "mid", 0); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
}

func TestFetchPersistFailureDropsQuestion(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("db down")}
	gen := &fakeGenerator{response: `{"questions":[{"type":"technical","text":"Explain indexes."}]}`}
	src := NewSource(store, gen)

	_, err := src.Fetch(context.Background(), "backend engineer", "mid", 1)
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions when nothing persists", err)
	}
}
