package capture

import (
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// OpusTrackSink encodes 48kHz PCM16LE mono to Opus and writes 20ms frames
// paced to a WebRTC track. It serves as the playback sink for synthesized
// question audio.
type OpusTrackSink struct {
	enc          *opus.Encoder
	track        *webrtc.TrackLocalStaticSample
	frameSamples int

	mu      sync.Mutex
	pcmBuf  []int16
	frames  chan []byte
	stopCh  chan struct{}
	stopped bool
}

// NewOpusTrackSink constructs a sink emitting 20ms frames at 48kHz mono.
func NewOpusTrackSink(track *webrtc.TrackLocalStaticSample) (*OpusTrackSink, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	s := &OpusTrackSink{
		enc:          enc,
		track:        track,
		frameSamples: 960,
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go s.pace()
	return s, nil
}

// WritePCM buffers PCM 48kHz mono bytes and emits encoded frames.
func (s *OpusTrackSink) WritePCM(pcmBytes []byte) {
	if len(pcmBytes) < 2 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	need := len(pcmBytes) / 2
	start := len(s.pcmBuf)
	if cap(s.pcmBuf)-start < need {
		tmp := make([]int16, start, start+need+2048)
		copy(tmp, s.pcmBuf)
		s.pcmBuf = tmp
	}
	s.pcmBuf = s.pcmBuf[:start+need]
	for i := 0; i < need; i++ {
		s.pcmBuf[start+i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	opusBuf := make([]byte, 4000)
	for len(s.pcmBuf) >= s.frameSamples {
		frame := s.pcmBuf[:s.frameSamples]
		n, _ := s.enc.Encode(frame, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			s.push(pkt)
		}
		copy(s.pcmBuf, s.pcmBuf[s.frameSamples:])
		s.pcmBuf = s.pcmBuf[:len(s.pcmBuf)-s.frameSamples]
	}
}

// FlushTail pads the remaining PCM to a full frame and appends a short
// silence tail so the end of an utterance is not clipped.
func (s *OpusTrackSink) FlushTail() {
	opusBuf := make([]byte, 4000)
	s.mu.Lock()
	if len(s.pcmBuf) > 0 {
		pad := make([]int16, s.frameSamples)
		copy(pad, s.pcmBuf)
		n, _ := s.enc.Encode(pad, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			s.push(pkt)
		}
		s.pcmBuf = s.pcmBuf[:0]
	}
	silence := make([]int16, s.frameSamples)
	for i := 0; i < 10; i++ {
		n, _ := s.enc.Encode(silence, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			s.push(pkt)
		}
	}
	s.mu.Unlock()
}

// Close stops the pacer goroutine.
func (s *OpusTrackSink) Close() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
}

func (s *OpusTrackSink) pace() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-s.frames:
				_ = s.track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond})
			default:
			}
		}
	}
}

func (s *OpusTrackSink) push(pkt []byte) {
	select {
	case <-s.stopCh:
	case s.frames <- pkt:
	}
}
