package interview

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/interview-coach/internal/capture"
	"github.com/chadiek/interview-coach/internal/domain"
)

// Deps are the shared collaborators every session gets. The manager fills in
// the per-session recorder itself.
type Deps struct {
	Speaker       Speaker
	Transcriber   Transcriber
	Sessions      SessionStore
	Answers       AnswerStore
	Evaluator     Evaluator
	Archiver      Archiver
	ListenTimeout time.Duration
}

type liveSession struct {
	orch   *Orchestrator
	device *capture.Device
	cancel context.CancelFunc
}

// Manager owns the live sessions. Each session gets its own audio device and
// its own orchestrator goroutine; the manager only routes lookups, audio
// frames, and control signals to them.
type Manager struct {
	deps Deps

	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, live: map[uuid.UUID]*liveSession{}}
}

// Start launches the run loop for a session. The passed context scopes the
// whole process; each session still gets its own cancel so Shutdown and
// per-session aborts stay independent.
func (m *Manager) Start(ctx context.Context, sess *domain.Session, qs []domain.Question) (*Orchestrator, error) {
	orch := NewOrchestrator(sess, qs)
	orch.Speaker = m.deps.Speaker
	orch.Transcriber = m.deps.Transcriber
	orch.Sessions = m.deps.Sessions
	orch.Answers = m.deps.Answers
	orch.Evaluator = m.deps.Evaluator
	orch.Archiver = m.deps.Archiver
	orch.ListenTimeout = m.deps.ListenTimeout

	device := capture.NewDevice()
	orch.Recorder = device

	runCtx, cancel := context.WithCancel(ctx)
	ls := &liveSession{orch: orch, device: device, cancel: cancel}

	m.mu.Lock()
	if _, exists := m.live[sess.ID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, domain.ErrSessionFinished
	}
	m.live[sess.ID] = ls
	m.mu.Unlock()

	go func() {
		defer cancel()
		if err := orch.Run(runCtx); err != nil {
			log.Printf("session %s: run: %v", sess.ID, err)
		}
		m.mu.Lock()
		delete(m.live, sess.ID)
		m.mu.Unlock()
	}()
	return orch, nil
}

// Get returns the live orchestrator for a session, if any.
func (m *Manager) Get(id uuid.UUID) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.live[id]
	if !ok {
		return nil, false
	}
	return ls.orch, true
}

// FeedAudio delivers a PCM16LE frame from a transport to the session's
// device. Frames for unknown or idle sessions are dropped.
func (m *Manager) FeedAudio(id uuid.UUID, pcm []byte) {
	m.mu.Lock()
	ls, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		ls.device.Feed(pcm)
	}
}

// Device exposes the session's audio device so a WebRTC transport can wire
// its decoded track straight in.
func (m *Manager) Device(id uuid.UUID) (*capture.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.live[id]
	if !ok {
		return nil, false
	}
	return ls.device, true
}

// DoneSpeaking forwards the control signal. Returns false if the session is
// not live.
func (m *Manager) DoneSpeaking(id uuid.UUID) bool {
	orch, ok := m.Get(id)
	if ok {
		orch.DoneSpeaking()
	}
	return ok
}

func (m *Manager) Skip(id uuid.UUID) bool {
	orch, ok := m.Get(id)
	if ok {
		orch.Skip()
	}
	return ok
}

func (m *Manager) Abort(id uuid.UUID) bool {
	orch, ok := m.Get(id)
	if ok {
		orch.Abort()
	}
	return ok
}

// Shutdown aborts every live session and waits for their run loops to store
// terminal status and evaluation, up to the context deadline.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	var waiting []*liveSession
	for _, ls := range m.live {
		ls.orch.Abort()
		waiting = append(waiting, ls)
	}
	m.mu.Unlock()

	for _, ls := range waiting {
		select {
		case <-ls.orch.Done():
		case <-ctx.Done():
			ls.cancel()
			return
		}
	}
}
