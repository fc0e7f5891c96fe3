package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type collectSink struct {
	mu      sync.Mutex
	pcm     []byte
	flushed bool
}

func (s *collectSink) WritePCM(p []byte) {
	s.mu.Lock()
	s.pcm = append(s.pcm, p...)
	s.mu.Unlock()
}

func (s *collectSink) FlushTail() {
	s.mu.Lock()
	s.flushed = true
	s.mu.Unlock()
}

type fakeSpeaker struct {
	err   error
	calls int
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.calls++
	return f.err
}

func TestFallback_TriesNextOnFailure(t *testing.T) {
	bad := &fakeSpeaker{err: errors.New("down")}
	good := &fakeSpeaker{}
	f := &Fallback{Speakers: []Speaker{bad, good}}
	if err := f.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("expected success via fallback, got %v", err)
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("expected both speakers tried, got %d/%d", bad.calls, good.calls)
	}
}

func TestFallback_ReturnsLastError(t *testing.T) {
	bad1 := &fakeSpeaker{err: errors.New("one")}
	bad2 := &fakeSpeaker{err: errors.New("two")}
	f := &Fallback{Speakers: []Speaker{bad1, bad2}}
	err := f.Speak(context.Background(), "hello")
	if err == nil || err.Error() != "two" {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestElevenLabs_StreamsIntoSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte{1, 0, 2, 0, 3, 0})
	}))
	defer srv.Close()

	sink := &collectSink{}
	sp := NewElevenLabsSpeaker("key", "voice", sink)
	sp.BaseURL = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sp.Speak(ctx, "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.pcm) != 6 {
		t.Fatalf("expected 6 pcm bytes, got %d", len(sink.pcm))
	}
	if !sink.flushed {
		t.Fatalf("expected tail flush after stream end")
	}
}

func TestElevenLabs_MissingCredentials(t *testing.T) {
	sp := NewElevenLabsSpeaker("", "", nil)
	if err := sp.Speak(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestElevenLabs_EmptyTextIsNoop(t *testing.T) {
	sp := NewElevenLabsSpeaker("key", "voice", nil)
	if err := sp.Speak(context.Background(), ""); err != nil {
		t.Fatalf("expected nil for empty text, got %v", err)
	}
}

func TestDeepgram_MissingKey(t *testing.T) {
	sp := NewDeepgramSpeaker("", "", nil)
	if err := sp.Speak(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error without api key")
	}
}
