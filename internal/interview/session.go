package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/interview-coach/internal/capture"
	"github.com/chadiek/interview-coach/internal/domain"
)

const (
	greetingTemplate = "Welcome to your mock interview for the %s role. I will ask %d questions. " +
		"Take your time, and say you are done when you finish each answer. Let's begin."
	closingLine     = "That was the last question. Thank you, your evaluation will be ready shortly."
	captureDownLine = "I am having trouble hearing you, so we will move on to the next question."
)

// Orchestrator drives one interview session through its turns: ask, listen,
// transcribe, persist, advance, and finally evaluate. Everything inside a
// session is sequential; concurrency exists only across sessions.
type Orchestrator struct {
	Session   *domain.Session
	Questions []domain.Question

	Speaker     Speaker
	Recorder    Recorder
	Transcriber Transcriber
	Sessions    SessionStore
	Answers     AnswerStore
	Evaluator   Evaluator
	Archiver    Archiver

	// ListenTimeout is the hard per-question ceiling. Zero means
	// DefaultListenTimeout.
	ListenTimeout time.Duration

	doneCh  chan struct{}
	skipCh  chan struct{}
	abortCh chan struct{}

	mu      sync.Mutex
	state   State
	subs    map[chan Event]struct{}
	aborted bool
	runDone chan struct{}
}

func NewOrchestrator(sess *domain.Session, qs []domain.Question) *Orchestrator {
	return &Orchestrator{
		Session:   sess,
		Questions: qs,
		doneCh:    make(chan struct{}, 1),
		skipCh:    make(chan struct{}, 1),
		abortCh:   make(chan struct{}),
		subs:      map[chan Event]struct{}{},
		runDone:   make(chan struct{}),
		state:     StateSetup,
	}
}

// DoneSpeaking signals that the candidate finished the current answer.
// Harmless outside the listening phase.
func (o *Orchestrator) DoneSpeaking() {
	select {
	case o.doneCh <- struct{}{}:
	default:
	}
}

// Skip abandons the current question without an answer.
func (o *Orchestrator) Skip() {
	select {
	case o.skipCh <- struct{}{}:
	default:
	}
}

// Abort ends the session early. Questions answered so far are still
// evaluated. Safe to call more than once.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	if !o.aborted {
		o.aborted = true
		close(o.abortCh)
	}
	o.mu.Unlock()
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done is closed when Run has finished, including evaluation.
func (o *Orchestrator) Done() <-chan struct{} { return o.runDone }

// Subscribe registers an event listener. The returned cancel must be called
// when the listener goes away. Slow listeners miss events rather than stall
// the session.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()
	cancel := func() {
		o.mu.Lock()
		delete(o.subs, ch)
		o.mu.Unlock()
	}
	return ch, cancel
}

func (o *Orchestrator) publish(st State, index int, question, detail string) {
	o.mu.Lock()
	o.state = st
	ev := Event{State: st, Index: index, Total: len(o.Questions), Question: question, Detail: detail}
	for ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	o.mu.Unlock()
}

// Run executes the session to completion. It returns after the evaluation
// result is stored (or after abort with zero answers, which stores nothing).
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.runDone)

	sess := o.Session
	if len(o.Questions) == 0 {
		return domain.ErrNoQuestions
	}
	if sess.Finished() {
		return domain.ErrSessionFinished
	}

	if err := o.Sessions.SetSessionStatus(ctx, sess.ID, domain.StatusActive); err != nil {
		return fmt.Errorf("activate session %s: %w", sess.ID, err)
	}
	sess.Status = domain.StatusActive

	o.publish(StateGreeting, sess.CurrentIndex, "", "")
	o.say(ctx, fmt.Sprintf(greetingTemplate, sess.Role, len(o.Questions)))

	interrupted := false
	for i := sess.CurrentIndex; i < len(o.Questions); i++ {
		q := o.Questions[i]

		o.publish(StateAsking, i, q.Text, "")
		o.say(ctx, q.Text)

		text, dur, stop := o.listen(ctx, i, q)
		if stop {
			interrupted = true
		} else {
			o.persistAnswer(ctx, i, q, text, dur)
			o.publish(StateAdvancing, i, q.Text, "")
			if err := o.Sessions.UpdateSessionProgress(ctx, sess.ID, i+1); err != nil {
				log.Printf("session %s: persist progress: %v", sess.ID, err)
			}
			sess.CurrentIndex = i + 1
		}
		// an abort that lands while transcribing or persisting lets the
		// current turn complete but must not start another question
		if interrupted || o.stopRequested(ctx) {
			interrupted = true
			break
		}
	}

	return o.finish(ctx, interrupted || ctx.Err() != nil)
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	select {
	case <-o.abortCh:
		return true
	default:
	}
	return ctx.Err() != nil
}

// listen records the candidate's answer for one question and returns the
// transcript text (possibly the no-answer sentinel), the spoken duration, and
// whether the session should stop (abort or context cancellation).
func (o *Orchestrator) listen(ctx context.Context, index int, q domain.Question) (string, time.Duration, bool) {
	sess := o.Session

	// drain stale signals so a button pressed during the question's TTS
	// does not instantly end the next answer
	select {
	case <-o.doneCh:
	default:
	}
	select {
	case <-o.skipCh:
	default:
	}

	o.publish(StateListening, index, q.Text, "")

	rec, err := o.Recorder.Start(ctx)
	if err != nil {
		log.Printf("session %s: start capture: %v", sess.ID, err)
		o.publish(StateListening, index, q.Text, domain.ErrCaptureFailed.Error())
		o.say(ctx, captureDownLine)
		return domain.NoAnswerSentinel, 0, false
	}

	timeout := o.ListenTimeout
	if timeout <= 0 {
		timeout = DefaultListenTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		skipped bool
		stop    bool
	)
	select {
	case <-o.doneCh:
	case <-timer.C:
		log.Printf("session %s: question %d hit the %s listening ceiling", sess.ID, index, timeout)
	case <-o.skipCh:
		skipped = true
	case <-o.abortCh:
		stop = true
	case <-ctx.Done():
		stop = true
	}

	utt, stopErr := rec.Stop()
	if stopErr != nil {
		log.Printf("session %s: stop capture: %v", sess.ID, stopErr)
	}
	if stop {
		return "", 0, true
	}
	if skipped || len(utt.PCM) == 0 {
		return domain.NoAnswerSentinel, 0, false
	}

	wav := capture.EncodeWAV(utt.PCM, capture.SampleRate)
	o.archive(ctx, q, wav)

	o.publish(StateTranscribing, index, q.Text, "")
	text, err := o.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		if errors.Is(err, domain.ErrTranscribeCeiling) {
			log.Printf("session %s: transcription gave up on question %d", sess.ID, index)
		} else {
			log.Printf("session %s: transcribe question %d: %v", sess.ID, index, err)
		}
		return domain.NoAnswerSentinel, utt.Duration, false
	}
	if strings.TrimSpace(text) == "" {
		return domain.NoAnswerSentinel, utt.Duration, false
	}
	return text, utt.Duration, false
}

// persistAnswer stores one answer. Every issued question gets exactly one
// row, sentinel or not; the store keeps the answered counter in step.
func (o *Orchestrator) persistAnswer(ctx context.Context, index int, q domain.Question, text string, dur time.Duration) {
	o.publish(StatePersisting, index, q.Text, "")
	a := domain.Answer{
		SessionID:  o.Session.ID,
		QuestionID: q.ID,
		Position:   index,
		Text:       text,
		Duration:   dur,
		CreatedAt:  time.Now().UTC(),
	}
	err := o.Answers.SaveAnswer(ctx, a)
	if err != nil {
		// one retry, storage blips are common enough
		time.Sleep(200 * time.Millisecond)
		err = o.Answers.SaveAnswer(ctx, a)
	}
	if err != nil {
		log.Printf("session %s: save answer for question %s: %v", o.Session.ID, q.ID, err)
	}
}

func (o *Orchestrator) archive(ctx context.Context, q domain.Question, wav []byte) {
	if o.Archiver == nil {
		return
	}
	if err := o.Archiver.ArchiveAnswer(ctx, o.Session.ID, q.ID, wav); err != nil {
		log.Printf("session %s: archive audio for question %s: %v", o.Session.ID, q.ID, err)
	}
}

// finish moves the session to its terminal status and runs evaluation when
// at least one answer exists.
func (o *Orchestrator) finish(ctx context.Context, aborted bool) error {
	sess := o.Session

	// status writes must land even when the run context is gone
	storeCtx := ctx
	if storeCtx.Err() != nil {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	status := domain.StatusCompleted
	terminal := StateDone
	if aborted {
		status = domain.StatusAborted
		terminal = StateAborted
	}
	if err := o.Sessions.SetSessionStatus(storeCtx, sess.ID, status); err != nil {
		log.Printf("session %s: set status %s: %v", sess.ID, status, err)
	}
	sess.Status = status

	if !aborted {
		o.say(ctx, closingLine)
	}

	answered, err := o.Answers.CountAnswers(storeCtx, sess.ID)
	if err != nil {
		log.Printf("session %s: count answers: %v", sess.ID, err)
	}
	if answered == 0 {
		// nothing to grade, no result row
		o.publish(terminal, sess.CurrentIndex, "", "no answers")
		return nil
	}

	o.publish(StateEvaluating, sess.CurrentIndex, "", "")
	if _, err := o.Evaluator.Evaluate(storeCtx, sess.ID); err != nil {
		log.Printf("session %s: evaluate: %v", sess.ID, err)
	}
	o.publish(terminal, sess.CurrentIndex, "", "")
	return nil
}

func (o *Orchestrator) say(ctx context.Context, text string) {
	if o.Speaker == nil {
		return
	}
	if err := o.Speaker.Speak(ctx, text); err != nil {
		log.Printf("session %s: speak: %v", o.Session.ID, err)
	}
}
