package capture

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/chadiek/interview-coach/internal/domain"
)

// SampleRate is the capture sample rate: PCM16LE mono at 16 kHz.
const SampleRate = 16000

// Utterance is one captured answer.
type Utterance struct {
	PCM      []byte
	Duration time.Duration
}

// Capture is a live recording for a single question.
type Capture interface {
	// Stop ends the recording and returns everything captured so far.
	// Safe to call more than once; later calls return the same utterance.
	Stop() (Utterance, error)
	// Amplitude reports recent input level in [0,1]. Best effort, for UI.
	Amplitude() float64
}

// Recorder hands out captures over the session's audio input device. The
// device is exclusively owned: starting a second capture while one is live
// returns domain.ErrRecorderBusy.
type Recorder interface {
	Start(ctx context.Context) (Capture, error)
}

// Device is an in-process microphone fed PCM frames by a transport
// (websocket binary frames or a decoded WebRTC track). It implements
// Recorder and routes frames to the active capture only.
type Device struct {
	mu     sync.Mutex
	active *deviceCapture
}

func NewDevice() *Device { return &Device{} }

// Feed delivers a PCM16LE frame from the transport. Frames arriving while
// no capture is active are dropped.
func (d *Device) Feed(pcm []byte) {
	d.mu.Lock()
	c := d.active
	d.mu.Unlock()
	if c != nil {
		c.append(pcm)
	}
}

// Start begins a new capture. The capture is released on Stop or when the
// context is cancelled, whichever comes first.
func (d *Device) Start(ctx context.Context) (Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return nil, domain.ErrRecorderBusy
	}
	c := &deviceCapture{dev: d, startedAt: time.Now()}
	d.active = c
	go func() {
		<-ctx.Done()
		_, _ = c.Stop()
	}()
	return c, nil
}

func (d *Device) release(c *deviceCapture) {
	d.mu.Lock()
	if d.active == c {
		d.active = nil
	}
	d.mu.Unlock()
}

// Recording reports whether a capture is currently live.
func (d *Device) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

type deviceCapture struct {
	dev       *Device
	startedAt time.Time

	mu      sync.Mutex
	pcm     []byte
	lastRMS float64
	stopped bool
	result  Utterance
}

func (c *deviceCapture) append(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	rms := frameRMS(pcm)
	c.mu.Lock()
	if !c.stopped {
		c.pcm = append(c.pcm, pcm...)
		c.lastRMS = rms
	}
	c.mu.Unlock()
}

func (c *deviceCapture) Stop() (Utterance, error) {
	c.mu.Lock()
	if c.stopped {
		res := c.result
		c.mu.Unlock()
		return res, nil
	}
	c.stopped = true
	samples := len(c.pcm) / 2
	c.result = Utterance{
		PCM:      c.pcm,
		Duration: time.Duration(samples) * time.Second / SampleRate,
	}
	res := c.result
	c.mu.Unlock()
	c.dev.release(c)
	return res, nil
}

func (c *deviceCapture) Amplitude() float64 {
	c.mu.Lock()
	rms := c.lastRMS
	c.mu.Unlock()
	// Full-scale int16 RMS maps to 1.0.
	amp := rms / 32768.0
	if amp > 1 {
		amp = 1
	}
	return amp
}

// frameRMS computes the RMS level of a PCM16LE frame, scanning sparsely on
// large frames to keep CPU down.
func frameRMS(pcm []byte) float64 {
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(count))
}
