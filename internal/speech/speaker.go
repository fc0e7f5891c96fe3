package speech

import (
	"context"
	"log"
)

// AudioSink consumes 48kHz PCM16LE mono audio and delivers it to the
// candidate (WebRTC track, websocket, ...). Implementations buffer and pace
// internally.
type AudioSink interface {
	WritePCM(pcm []byte)
	FlushTail()
}

// Speaker synthesizes text and plays it through a sink. Speak returns once
// playback audio has been fully streamed or the context is cancelled; a
// failure is an error, never a hang.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Fallback tries each speaker in order until one succeeds. A session
// continues without speech when all of them fail.
type Fallback struct {
	Speakers []Speaker
}

// SetSink rebinds every speaker that supports it to a new output, typically
// when a transport attaches mid-session.
func (f *Fallback) SetSink(sink AudioSink) {
	for _, s := range f.Speakers {
		if rs, ok := s.(interface{ SetSink(AudioSink) }); ok {
			rs.SetSink(sink)
		}
	}
}

func (f *Fallback) Speak(ctx context.Context, text string) error {
	var lastErr error
	for _, s := range f.Speakers {
		if err := s.Speak(ctx, text); err != nil {
			lastErr = err
			log.Printf("speech: speaker failed, trying next: %v", err)
			continue
		}
		return nil
	}
	return lastErr
}

type nopSink struct{}

func (nopSink) WritePCM([]byte) {}
func (nopSink) FlushTail()      {}

// NopSink discards audio. Used when a session has no attached transport yet.
var NopSink AudioSink = nopSink{}
