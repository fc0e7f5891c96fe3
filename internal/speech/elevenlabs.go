package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ElevenLabsSpeaker streams PCM_48000 audio from the ElevenLabs HTTP
// streaming endpoint into a sink. Used as the fallback voice.
type ElevenLabsSpeaker struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	VoiceID    string
	// Rate is an optional speaking-speed multiplier (best effort).
	Rate float64

	sink AudioSink
}

func NewElevenLabsSpeaker(apiKey, voiceID string, sink AudioSink) *ElevenLabsSpeaker {
	if sink == nil {
		sink = NopSink
	}
	return &ElevenLabsSpeaker{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    "https://api.elevenlabs.io",
		APIKey:     apiKey,
		VoiceID:    voiceID,
		sink:       sink,
	}
}

// SetSink swaps the playback sink.
func (e *ElevenLabsSpeaker) SetSink(sink AudioSink) {
	if sink == nil {
		sink = NopSink
	}
	e.sink = sink
}

func (e *ElevenLabsSpeaker) Speak(ctx context.Context, text string) error {
	if e.APIKey == "" || e.VoiceID == "" {
		return fmt.Errorf("elevenlabs: api key or voice id missing")
	}
	if text == "" {
		return nil
	}

	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return err
	}
	u.Path = "/v1/text-to-speech/" + e.VoiceID + "/stream"
	q := u.Query()
	q.Set("model_id", "eleven_flash_v2_5")
	q.Set("output_format", "pcm_48000")
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	voiceSettings := map[string]any{
		"stability":         0.4,
		"similarity_boost":  0.7,
		"style":             0.0,
		"use_speaker_boost": true,
	}
	if e.Rate > 0 {
		voiceSettings["speed"] = e.Rate
	}
	body := map[string]any{
		"model_id":       "eleven_flash_v2_5",
		"text":           text,
		"voice_settings": voiceSettings,
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			e.sink.WritePCM(out)
		}
		if rerr != nil {
			if rerr == io.EOF {
				e.sink.FlushTail()
				return nil
			}
			return fmt.Errorf("elevenlabs http read error: %w", rerr)
		}
	}
}
