package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/interview-coach/internal/capture"
	"github.com/chadiek/interview-coach/internal/domain"
	"github.com/chadiek/interview-coach/internal/interview"
	"github.com/chadiek/interview-coach/internal/speech"
)

// Store is the storage slice the HTTP layer reads and writes.
type Store interface {
	CreateSession(ctx context.Context, sess *domain.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*domain.Question, error)
	CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error)
	GetResult(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error)
}

// QuestionSource assembles the persisted question list for new sessions.
type QuestionSource interface {
	Fetch(ctx context.Context, role, difficulty string, count int) ([]domain.Question, error)
}

// SinkSetter is implemented by speakers whose audio output can be rebound to
// a transport, like the WebRTC opus track.
type SinkSetter interface {
	SetSink(sink speech.AudioSink)
}

type Handlers struct {
	Store     Store
	Questions QuestionSource
	Manager   *interview.Manager
	RTC       *capture.WebRTCTransport
	Speaker   any // checked for SinkSetter when a WebRTC peer attaches
	// DefaultQuestionCount applies when the create request omits a count.
	DefaultQuestionCount int

	upgrader websocket.Upgrader
}

func NewHandlers(store Store, questions QuestionSource, manager *interview.Manager, rtc *capture.WebRTCTransport) *Handlers {
	return &Handlers{
		Store:                store,
		Questions:            questions,
		Manager:              manager,
		RTC:                  rtc,
		DefaultQuestionCount: 5,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.POST("/interviews", h.createInterview)
	e.GET("/interviews/:id", h.getInterview)
	e.POST("/interviews/:id/start", h.startInterview)
	e.POST("/interviews/:id/done-speaking", h.doneSpeaking)
	e.POST("/interviews/:id/skip", h.skip)
	e.POST("/interviews/:id/abort", h.abort)
	e.GET("/interviews/:id/result", h.getResult)
	e.GET("/interviews/:id/ws", h.websocketSession)
	e.POST("/interviews/:id/offer", h.webrtcOffer)
}

type createInterviewRequest struct {
	CandidateID   string `json:"candidate_id"`
	Role          string `json:"role"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
}

type questionView struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Text           string   `json:"text"`
	Keywords       []string `json:"keywords,omitempty"`
	TimeBudgetSecs int      `json:"time_budget_secs"`
}

type sessionView struct {
	ID                string         `json:"id"`
	CandidateID       string         `json:"candidate_id"`
	Role              string         `json:"role"`
	Difficulty        string         `json:"difficulty"`
	Status            string         `json:"status"`
	CurrentIndex      int            `json:"current_index"`
	QuestionsAnswered int            `json:"questions_answered"`
	TotalQuestions    int            `json:"total_questions"`
	Questions         []questionView `json:"questions,omitempty"`
}

func sessionToView(sess *domain.Session, qs []domain.Question) sessionView {
	v := sessionView{
		ID:                sess.ID.String(),
		CandidateID:       sess.CandidateID,
		Role:              sess.Role,
		Difficulty:        sess.Difficulty,
		Status:            string(sess.Status),
		CurrentIndex:      sess.CurrentIndex,
		QuestionsAnswered: sess.QuestionsAnswered,
		TotalQuestions:    len(sess.QuestionIDs),
	}
	for _, q := range qs {
		v.Questions = append(v.Questions, questionView{
			ID:             q.ID.String(),
			Type:           string(q.Type),
			Text:           q.Text,
			Keywords:       q.Keywords,
			TimeBudgetSecs: int(q.TimeBudget.Seconds()),
		})
	}
	return v
}

// createInterview persists a pending session with its full question list.
// Nothing runs until a transport attaches or /start is called.
func (h *Handlers) createInterview(c echo.Context) error {
	var req createInterviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.Role == "" {
		return c.JSON(http.StatusBadRequest, errBody("role is required"))
	}
	if req.Difficulty == "" {
		req.Difficulty = "mid"
	}
	if req.QuestionCount <= 0 {
		req.QuestionCount = h.DefaultQuestionCount
	}
	ctx := c.Request().Context()

	qs, err := h.Questions.Fetch(ctx, req.Role, req.Difficulty, req.QuestionCount)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuestions) {
			return c.JSON(http.StatusServiceUnavailable, errBody("no questions available"))
		}
		log.Printf("api: fetch questions: %v", err)
		return c.JSON(http.StatusInternalServerError, errBody("failed to prepare questions"))
	}

	sess := &domain.Session{
		ID:          uuid.New(),
		CandidateID: req.CandidateID,
		Role:        req.Role,
		Difficulty:  req.Difficulty,
		Status:      domain.StatusPending,
		StartedAt:   time.Now().UTC(),
	}
	for _, q := range qs {
		sess.QuestionIDs = append(sess.QuestionIDs, q.ID)
	}
	if err := h.Store.CreateSession(ctx, sess); err != nil {
		log.Printf("api: create session: %v", err)
		return c.JSON(http.StatusInternalServerError, errBody("failed to create session"))
	}

	return c.JSON(http.StatusCreated, sessionToView(sess, qs))
}

func (h *Handlers) getInterview(c echo.Context) error {
	sess, ok := h.loadSession(c)
	if !ok {
		return nil
	}
	qs, err := h.loadQuestions(c.Request().Context(), sess)
	if err != nil {
		log.Printf("api: load questions for %s: %v", sess.ID, err)
	}
	return c.JSON(http.StatusOK, sessionToView(sess, qs))
}

// startInterview launches the session's run loop. Idempotent: starting a
// session that is already live succeeds.
func (h *Handlers) startInterview(c echo.Context) error {
	sess, ok := h.loadSession(c)
	if !ok {
		return nil
	}
	if _, err := h.ensureLive(c.Request().Context(), sess); err != nil {
		if errors.Is(err, domain.ErrSessionFinished) {
			return c.JSON(http.StatusConflict, errBody("session already finished"))
		}
		log.Printf("api: start session %s: %v", sess.ID, err)
		return c.JSON(http.StatusInternalServerError, errBody("failed to start session"))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handlers) doneSpeaking(c echo.Context) error { return h.signal(c, h.Manager.DoneSpeaking) }
func (h *Handlers) skip(c echo.Context) error         { return h.signal(c, h.Manager.Skip) }
func (h *Handlers) abort(c echo.Context) error        { return h.signal(c, h.Manager.Abort) }

func (h *Handlers) signal(c echo.Context, send func(uuid.UUID) bool) error {
	id, ok := parseID(c)
	if !ok {
		return nil
	}
	if !send(id) {
		return c.JSON(http.StatusNotFound, errBody("session is not live"))
	}
	return c.NoContent(http.StatusAccepted)
}

type resultView struct {
	SessionID      string   `json:"session_id"`
	OverallScore   float64  `json:"overall_score"`
	Technical      float64  `json:"technical_score"`
	Communication  float64  `json:"communication_score"`
	ProblemSolving float64  `json:"problem_solving_score"`
	Confidence     float64  `json:"confidence_score"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	Summary        string   `json:"summary"`
	Placeholder    bool     `json:"placeholder"`
}

func (h *Handlers) getResult(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return nil
	}
	r, err := h.Store.GetResult(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			return c.JSON(http.StatusNotFound, errBody("result not ready"))
		}
		log.Printf("api: get result %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, errBody("failed to load result"))
	}
	return c.JSON(http.StatusOK, resultView{
		SessionID:      r.SessionID.String(),
		OverallScore:   r.Overall,
		Technical:      r.Technical,
		Communication:  r.Communication,
		ProblemSolving: r.ProblemSolving,
		Confidence:     r.Confidence,
		Strengths:      r.Strengths,
		Improvements:   r.Improvements,
		Summary:        r.Summary,
		Placeholder:    r.Placeholder,
	})
}

type wsControl struct {
	Type string `json:"type"`
}

type wsEvent struct {
	State    string `json:"state"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Question string `json:"question,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// websocketSession is the realtime transport: binary frames carry candidate
// PCM16LE audio in, text frames carry control commands in and state events
// out. Connecting starts a pending session.
func (h *Handlers) websocketSession(c echo.Context) error {
	sess, ok := h.loadSession(c)
	if !ok {
		return nil
	}
	orch, err := h.ensureLive(c.Request().Context(), sess)
	if err != nil {
		if errors.Is(err, domain.ErrSessionFinished) {
			return c.JSON(http.StatusConflict, errBody("session already finished"))
		}
		return c.JSON(http.StatusInternalServerError, errBody("failed to start session"))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	events, cancel := orch.Subscribe()
	defer cancel()

	// event pump: orchestrator state changes out to the client
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case ev := <-events:
				msg := wsEvent{
					State: string(ev.State), Index: ev.Index, Total: ev.Total,
					Question: ev.Question, Detail: ev.Detail,
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-orch.Done():
				final := wsEvent{State: string(orch.State()), Total: len(orch.Questions)}
				_ = conn.WriteJSON(final)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"),
					time.Now().Add(time.Second))
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			h.Manager.FeedAudio(sess.ID, data)
		case websocket.TextMessage:
			h.dispatchControl(sess.ID, data)
		}
	}
	<-writeDone
	return nil
}

func (h *Handlers) dispatchControl(id uuid.UUID, raw []byte) {
	var ctrl wsControl
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		return
	}
	switch ctrl.Type {
	case "done_speaking":
		h.Manager.DoneSpeaking(id)
	case "skip":
		h.Manager.Skip(id)
	case "abort":
		h.Manager.Abort(id)
	}
}

// webrtcOffer attaches a browser peer: the candidate's opus track feeds the
// session device and the TTS output streams back over the answer track. The
// data channel carries the same control commands as the websocket.
func (h *Handlers) webrtcOffer(c echo.Context) error {
	if h.RTC == nil {
		return c.JSON(http.StatusNotImplemented, errBody("webrtc transport not configured"))
	}
	sess, ok := h.loadSession(c)
	if !ok {
		return nil
	}
	if _, err := h.ensureLive(c.Request().Context(), sess); err != nil {
		if errors.Is(err, domain.ErrSessionFinished) {
			return c.JSON(http.StatusConflict, errBody("session already finished"))
		}
		return c.JSON(http.StatusInternalServerError, errBody("failed to start session"))
	}
	device, ok := h.Manager.Device(sess.ID)
	if !ok {
		return c.JSON(http.StatusNotFound, errBody("session is not live"))
	}

	var offer capture.SessionDescription
	if err := c.Bind(&offer); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid offer"))
	}

	id := sess.ID
	answer, peer, err := h.RTC.HandleOffer(offer, device,
		func(cmd string) { h.dispatchControl(id, []byte(`{"type":"`+cmd+`"}`)) },
		func() { h.Manager.Abort(id) })
	if err != nil {
		log.Printf("api: webrtc offer for %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, errBody("failed to establish peer"))
	}

	if setter, ok := h.Speaker.(SinkSetter); ok && peer.Sink != nil {
		setter.SetSink(peer.Sink)
	}
	return c.JSON(http.StatusOK, answer)
}

// ensureLive starts the orchestrator for a pending session and returns the
// live one either way.
func (h *Handlers) ensureLive(ctx context.Context, sess *domain.Session) (*interview.Orchestrator, error) {
	if orch, ok := h.Manager.Get(sess.ID); ok {
		return orch, nil
	}
	if sess.Finished() {
		return nil, domain.ErrSessionFinished
	}
	qs, err := h.loadQuestions(ctx, sess)
	if err != nil {
		return nil, err
	}
	orch, err := h.Manager.Start(context.WithoutCancel(ctx), sess, qs)
	if err != nil {
		if errors.Is(err, domain.ErrSessionFinished) {
			// lost the race with another transport, reuse the winner
			if live, ok := h.Manager.Get(sess.ID); ok {
				return live, nil
			}
		}
		return nil, err
	}
	return orch, nil
}

func (h *Handlers) loadQuestions(ctx context.Context, sess *domain.Session) ([]domain.Question, error) {
	qs := make([]domain.Question, 0, len(sess.QuestionIDs))
	for _, id := range sess.QuestionIDs {
		q, err := h.Store.GetQuestion(ctx, id)
		if err != nil {
			return nil, err
		}
		qs = append(qs, *q)
	}
	return qs, nil
}

// loadSession resolves the :id parameter. On failure it writes the error
// response itself and reports ok=false.
func (h *Handlers) loadSession(c echo.Context) (*domain.Session, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	sess, err := h.Store.GetSession(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			_ = c.JSON(http.StatusNotFound, errBody("session not found"))
			return nil, false
		}
		log.Printf("api: load session %s: %v", id, err)
		_ = c.JSON(http.StatusInternalServerError, errBody("failed to load session"))
		return nil, false
	}
	return sess, true
}

func parseID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, errBody("invalid session id"))
		return uuid.UUID{}, false
	}
	return id, true
}

func errBody(msg string) map[string]string { return map[string]string{"error": msg} }
