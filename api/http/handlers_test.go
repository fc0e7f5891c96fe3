package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/interview-coach/internal/domain"
	"github.com/chadiek/interview-coach/internal/interview"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	quests   map[uuid.UUID]*domain.Question
	answers  []domain.Answer
	results  map[uuid.UUID]*domain.EvaluationResult
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[uuid.UUID]*domain.Session{},
		quests:   map[uuid.UUID]*domain.Question{},
		results:  map[uuid.UUID]*domain.EvaluationResult{},
	}
}

func (m *memStore) CreateSession(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *memStore) GetQuestion(_ context.Context, id uuid.UUID) (*domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quests[id]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (m *memStore) CountAnswers(_ context.Context, sessionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.answers {
		if a.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) SaveAnswer(_ context.Context, a domain.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, a)
	return nil
}

func (m *memStore) GetResult(_ context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[sessionID]
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	return r, nil
}

func (m *memStore) SetSessionStatus(_ context.Context, id uuid.UUID, st domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.Status = st
	}
	return nil
}

func (m *memStore) UpdateSessionProgress(_ context.Context, id uuid.UUID, idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.CurrentIndex = idx
	}
	return nil
}

type stubSource struct{ store *memStore }

func (s stubSource) Fetch(_ context.Context, role, difficulty string, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, domain.ErrNoQuestions
	}
	var qs []domain.Question
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for i := 0; i < count; i++ {
		q := domain.Question{
			ID: uuid.New(), Role: role, Difficulty: difficulty,
			Type: domain.QuestionTechnical, Text: "generated question",
		}
		s.store.quests[q.ID] = &q
		qs = append(qs, q)
	}
	return qs, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, []byte) (string, error) { return "ok", nil }

type stubEvaluator struct{ calls atomic.Int32 }

func (s *stubEvaluator) Evaluate(context.Context, uuid.UUID) (*domain.EvaluationResult, error) {
	s.calls.Add(1)
	return &domain.EvaluationResult{}, nil
}

func testServer(t *testing.T) (*echo.Echo, *memStore) {
	t.Helper()
	store := newMemStore()
	manager := interview.NewManager(interview.Deps{
		Transcriber:   stubTranscriber{},
		Sessions:      store,
		Answers:       store,
		Evaluator:     &stubEvaluator{},
		ListenTimeout: 50 * time.Millisecond,
	})
	h := NewHandlers(store, stubSource{store}, manager, nil)
	e := echo.New()
	h.Register(e)
	return e, store
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateInterview(t *testing.T) {
	e, store := testServer(t)

	rec := doJSON(e, http.MethodPost, "/interviews",
		`{"candidate_id":"cand-1","role":"backend engineer","difficulty":"mid","question_count":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != string(domain.StatusPending) {
		t.Fatalf("status = %q, want pending", view.Status)
	}
	if view.TotalQuestions != 3 || len(view.Questions) != 3 {
		t.Fatalf("question count = %d/%d, want 3", view.TotalQuestions, len(view.Questions))
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.sessions) != 1 {
		t.Fatalf("stored %d sessions, want 1", len(store.sessions))
	}
}

func TestCreateInterviewRequiresRole(t *testing.T) {
	e, _ := testServer(t)
	rec := doJSON(e, http.MethodPost, "/interviews", `{"candidate_id":"cand-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetInterviewNotFound(t *testing.T) {
	e, _ := testServer(t)
	rec := doJSON(e, http.MethodGet, "/interviews/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetInterviewBadID(t *testing.T) {
	e, _ := testServer(t)
	rec := doJSON(e, http.MethodGet, "/interviews/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSignalBeforeStart(t *testing.T) {
	e, _ := testServer(t)
	rec := doJSON(e, http.MethodPost, "/interviews/"+uuid.NewString()+"/done-speaking", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartRunsSessionToCompletion(t *testing.T) {
	e, store := testServer(t)

	rec := doJSON(e, http.MethodPost, "/interviews",
		`{"role":"backend engineer","question_count":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(e, http.MethodPost, "/interviews/"+view.ID+"/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	// the 50ms ceiling walks both questions through as no-answer turns
	id := uuid.MustParse(view.ID)
	deadline := time.Now().Add(3 * time.Second)
	for {
		sess, err := store.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if sess.Finished() {
			if sess.Status != domain.StatusCompleted {
				t.Fatalf("status = %q, want completed", sess.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never finished, status %q", sess.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if n, _ := store.CountAnswers(context.Background(), id); n != 2 {
		t.Fatalf("stored %d answers, want 2", n)
	}
}

func TestStartFinishedSessionConflicts(t *testing.T) {
	e, store := testServer(t)
	sess := &domain.Session{ID: uuid.New(), Role: "x", Status: domain.StatusCompleted}
	store.sessions[sess.ID] = sess

	rec := doJSON(e, http.MethodPost, "/interviews/"+sess.ID.String()+"/start", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestGetResult(t *testing.T) {
	e, store := testServer(t)
	id := uuid.New()

	rec := doJSON(e, http.MethodGet, "/interviews/"+id.String()+"/result", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before evaluation", rec.Code)
	}

	store.mu.Lock()
	store.results[id] = &domain.EvaluationResult{SessionID: id, Overall: 7.5, Summary: "solid"}
	store.mu.Unlock()

	rec = doJSON(e, http.MethodGet, "/interviews/"+id.String()+"/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view resultView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.OverallScore != 7.5 || view.Summary != "solid" {
		t.Fatalf("unexpected result view: %+v", view)
	}
}

func TestWebsocketStreamsEventsAndControls(t *testing.T) {
	e, store := testServer(t)

	rec := doJSON(e, http.MethodPost, "/interviews", `{"role":"backend engineer","question_count":2}`)
	var view sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/interviews/" + view.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// connecting starts the session; events follow until it finishes
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawListening := false
	aborted := false
	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.State == string(interview.StateListening) && !aborted {
			sawListening = true
			aborted = true
			msg, _ := json.Marshal(wsControl{Type: "abort"})
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				t.Fatalf("write control: %v", err)
			}
		}
		if ev.State == string(interview.StateAborted) {
			break
		}
	}
	if !sawListening {
		t.Fatal("never saw a listening event")
	}

	id := uuid.MustParse(view.ID)
	deadline := time.Now().Add(2 * time.Second)
	for {
		sess, _ := store.GetSession(context.Background(), id)
		if sess != nil && sess.Status == domain.StatusAborted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session not aborted after control message")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
