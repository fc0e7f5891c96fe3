package phone

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/interview-coach/internal/domain"
	"github.com/chadiek/interview-coach/internal/middleware"
)

// phoneStore is the storage slice the phone flow needs. Unlike the realtime
// path there is no resident orchestrator: all turn state lives in the
// database and in webhook query parameters.
type phoneStore interface {
	CreateSession(ctx context.Context, sess *domain.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*domain.Question, error)
	SaveAnswer(ctx context.Context, a domain.Answer) error
	UpdateSessionProgress(ctx context.Context, id uuid.UUID, currentIndex int) error
	SetSessionStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) error
	CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error)
}

type questionSource interface {
	Fetch(ctx context.Context, role, difficulty string, count int) ([]domain.Question, error)
}

type transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type evaluator interface {
	Evaluate(ctx context.Context, sessionID uuid.UUID) (*domain.EvaluationResult, error)
}

type archiver interface {
	ArchiveAnswer(ctx context.Context, sessionID, questionID uuid.UUID, wav []byte) error
}

// Service runs interviews over inbound Twilio calls. Twilio records each
// answer itself; the webhook downloads the recording, transcribes it, and
// stores the answer exactly like the realtime path does.
type Service struct {
	AccountSID string
	AuthToken  string
	// PublicBaseURL overrides forwarded-header detection for callback URLs.
	PublicBaseURL string
	// Role and Difficulty shape the session; inbound calls carry no setup.
	Role          string
	Difficulty    string
	QuestionCount int

	Store       phoneStore
	Questions   questionSource
	Transcriber transcriber
	Evaluator   evaluator
	Archiver    archiver

	// HTTPClient downloads recordings from Twilio. Swapped in tests.
	HTTPClient *http.Client

	// calls maps a live call SID to its session so the status callback can
	// find sessions stranded by a hang-up.
	mu    sync.Mutex
	calls map[string]uuid.UUID
}

// Register mounts the webhooks. The voice and status URLs are the ones
// configured on the Twilio phone number.
func (s *Service) Register(e *echo.Echo) {
	e.POST("/twilio/voice", s.handleVoice)
	e.POST("/twilio/turn", s.handleTurn)
	e.POST("/twilio/status", s.handleStatus)
}

func (s *Service) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// handleVoice answers an inbound call: it creates a session with persisted
// questions and speaks the greeting before the first turn.
func (s *Service) handleVoice(c echo.Context) error {
	params, ok := c.Get(middleware.TwilioParamsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "missing Twilio parameters")
	}
	ctx := c.Request().Context()

	qs, err := s.Questions.Fetch(ctx, s.Role, s.Difficulty, s.QuestionCount)
	if err != nil {
		log.Printf("phone: fetch questions: %v", err)
		return s.sayAndHangup(c, "Sorry, no interview is available right now. Please call back later.")
	}

	sess := &domain.Session{
		ID:          uuid.New(),
		CandidateID: params["From"],
		Role:        s.Role,
		Difficulty:  s.Difficulty,
		Status:      domain.StatusActive,
		StartedAt:   time.Now().UTC(),
	}
	for _, q := range qs {
		sess.QuestionIDs = append(sess.QuestionIDs, q.ID)
	}
	if err := s.Store.CreateSession(ctx, sess); err != nil {
		log.Printf("phone: create session: %v", err)
		return s.sayAndHangup(c, "Sorry, something went wrong on our side. Please call back later.")
	}
	s.trackCall(params["CallSid"], sess.ID)
	log.Printf("phone: session %s started for caller %s", sess.ID, params["From"])

	greeting := fmt.Sprintf("Welcome to your mock interview for the %s role. I will ask %d questions. "+
		"After each one, answer at the beep and press any key when you are done.", s.Role, len(qs))
	say := &twiml.VoiceSay{Message: greeting}
	redirect := &twiml.VoiceRedirect{Url: s.turnURL(c, sess.ID, 0), Method: "POST"}
	return s.respond(c, say, redirect)
}

// handleTurn persists the previous turn's recording (when there is one) and
// asks the next question, or closes the call after the last answer.
func (s *Service) handleTurn(c echo.Context) error {
	params, ok := c.Get(middleware.TwilioParamsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "missing Twilio parameters")
	}
	ctx := c.Request().Context()

	sessionID, err := uuid.Parse(c.QueryParam("session"))
	if err != nil {
		return c.String(http.StatusBadRequest, "bad session id")
	}
	index, err := parseIndex(c.QueryParam("index"))
	if err != nil {
		return c.String(http.StatusBadRequest, "bad index")
	}

	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("phone: load session %s: %v", sessionID, err)
		return s.sayAndHangup(c, "Sorry, I lost track of this interview. Goodbye.")
	}
	if sess.Finished() {
		return s.sayAndHangup(c, "This interview has already ended. Goodbye.")
	}

	// index > 0 means question index-1 was just recorded
	if index > 0 && index-1 < len(sess.QuestionIDs) {
		s.persistTurn(sess, index-1, params["RecordingUrl"], params["RecordingDuration"])
		if err := s.Store.UpdateSessionProgress(ctx, sess.ID, index); err != nil {
			log.Printf("phone: session %s: persist progress: %v", sess.ID, err)
		}
	}

	if index >= len(sess.QuestionIDs) {
		s.takeCall(params["CallSid"])
		return s.closeCall(c, sess)
	}

	q, err := s.Store.GetQuestion(ctx, sess.QuestionIDs[index])
	if err != nil {
		log.Printf("phone: session %s: load question %d: %v", sess.ID, index, err)
		return s.sayAndHangup(c, "Sorry, something went wrong on our side. Goodbye.")
	}

	next := s.turnURL(c, sess.ID, index+1)
	say := &twiml.VoiceSay{Message: fmt.Sprintf("Question %d. %s", index+1, q.Text)}
	record := &twiml.VoiceRecord{
		Action:      next,
		Method:      "POST",
		MaxLength:   "90",
		Timeout:     "10",
		FinishOnKey: "1234567890*#",
		PlayBeep:    "true",
		Trim:        "do-not-trim",
	}
	// Record falls through when nothing was said; move on with no answer
	redirect := &twiml.VoiceRedirect{Url: next, Method: "POST"}
	return s.respond(c, say, record, redirect)
}

// persistTurn stores one answer. Download or transcription failures degrade
// to the no-answer sentinel, never to a missing row. Runs inline so the row
// exists before the next webhook can observe the session.
func (s *Service) persistTurn(sess *domain.Session, index int, recordingURL, durationSecs string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	questionID := sess.QuestionIDs[index]
	text := domain.NoAnswerSentinel
	var dur time.Duration

	if recordingURL != "" {
		wav, err := s.downloadRecording(ctx, recordingURL)
		if err != nil {
			log.Printf("phone: session %s: download recording: %v", sess.ID, err)
		} else {
			if s.Archiver != nil {
				if err := s.Archiver.ArchiveAnswer(ctx, sess.ID, questionID, wav); err != nil {
					log.Printf("phone: session %s: archive recording: %v", sess.ID, err)
				}
			}
			got, err := s.Transcriber.Transcribe(ctx, wav)
			if err != nil {
				log.Printf("phone: session %s: transcribe: %v", sess.ID, err)
			} else if strings.TrimSpace(got) != "" {
				text = got
			}
		}
		if secs, err := parseIndex(durationSecs); err == nil {
			dur = time.Duration(secs) * time.Second
		}
	}

	a := domain.Answer{
		SessionID:  sess.ID,
		QuestionID: questionID,
		Position:   index,
		Text:       text,
		Duration:   dur,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Store.SaveAnswer(ctx, a); err != nil {
		log.Printf("phone: session %s: save answer: %v", sess.ID, err)
	}
}

func (s *Service) closeCall(c echo.Context, sess *domain.Session) error {
	ctx := c.Request().Context()
	if err := s.Store.SetSessionStatus(ctx, sess.ID, domain.StatusCompleted); err != nil {
		log.Printf("phone: session %s: set status: %v", sess.ID, err)
	}
	s.evaluateCollected(sess.ID)
	return s.sayAndHangup(c, "That was the last question. Thank you, your evaluation will be ready shortly. Goodbye.")
}

// handleStatus reacts to call lifecycle callbacks. A caller who hangs up
// mid-interview leaves the session active; mark it aborted and grade whatever
// was collected.
func (s *Service) handleStatus(c echo.Context) error {
	params, ok := c.Get(middleware.TwilioParamsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "missing Twilio parameters")
	}
	if !terminalCallStatus(params["CallStatus"]) {
		return c.NoContent(http.StatusNoContent)
	}

	sessionID, ok := s.takeCall(params["CallSid"])
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	ctx := c.Request().Context()
	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("phone: status callback: load session %s: %v", sessionID, err)
		return c.NoContent(http.StatusNoContent)
	}
	if sess.Finished() {
		return c.NoContent(http.StatusNoContent)
	}

	log.Printf("phone: session %s: call ended with status %s, aborting", sess.ID, params["CallStatus"])
	if err := s.Store.SetSessionStatus(ctx, sess.ID, domain.StatusAborted); err != nil {
		log.Printf("phone: session %s: set status: %v", sess.ID, err)
	}
	s.evaluateCollected(sess.ID)
	return c.NoContent(http.StatusNoContent)
}

// evaluateCollected grades the session in the background when at least one
// answer exists.
func (s *Service) evaluateCollected(sessionID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		answered, err := s.Store.CountAnswers(ctx, sessionID)
		if err != nil {
			log.Printf("phone: session %s: count answers: %v", sessionID, err)
			return
		}
		if answered == 0 {
			return
		}
		if _, err := s.Evaluator.Evaluate(ctx, sessionID); err != nil {
			log.Printf("phone: session %s: evaluate: %v", sessionID, err)
		}
	}()
}

func (s *Service) trackCall(callSid string, sessionID uuid.UUID) {
	if callSid == "" {
		return
	}
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]uuid.UUID{}
	}
	s.calls[callSid] = sessionID
	s.mu.Unlock()
}

func (s *Service) takeCall(callSid string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.calls[callSid]
	if ok {
		delete(s.calls, callSid)
	}
	return id, ok
}

func terminalCallStatus(status string) bool {
	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	}
	return false
}

// downloadRecording fetches the WAV media behind a recording URL with basic
// auth, the same way the recording REST API is consumed.
func (s *Service) downloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.AccountSID, s.AuthToken)

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download recording: status %d: %s", resp.StatusCode, preview)
	}
	return io.ReadAll(resp.Body)
}

func (s *Service) respond(c echo.Context, elements ...twiml.Element) error {
	doc, err := twiml.Voice(elements)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, doc)
}

func (s *Service) sayAndHangup(c echo.Context, message string) error {
	return s.respond(c, &twiml.VoiceSay{Message: message}, &twiml.VoiceHangup{})
}

// turnURL builds the absolute callback for the next turn. Twilio requires a
// full public URL here.
func (s *Service) turnURL(c echo.Context, sessionID uuid.UUID, index int) string {
	base := s.PublicBaseURL
	if base == "" {
		proto := c.Request().Header.Get("X-Forwarded-Proto")
		host := c.Request().Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			base = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if base == "" {
		host := c.Request().Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		base = fmt.Sprintf("%s://%s", proto, host)
	}
	return fmt.Sprintf("%s/twilio/turn?session=%s&index=%d", strings.TrimSuffix(base, "/"), sessionID, index)
}

func parseIndex(raw string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative index %d", n)
	}
	return n, nil
}
