package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chadiek/interview-coach/internal/domain"
)

// Status is the terminal-or-pending state of a transcription job.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const defaultBaseURL = "https://api.assemblyai.com"

// AssemblyAIClient talks to AssemblyAI's asynchronous transcription API:
// upload the audio, create a transcript job, then poll until it settles.
type AssemblyAIClient struct {
	HTTPClient *http.Client
	BaseURL    string
	apiKey     string

	// PollInterval and PollCeiling bound the Transcribe loop. Past the
	// ceiling the job is treated as failed, never polled forever.
	PollInterval time.Duration
	PollCeiling  time.Duration
}

// NewAssemblyAIClient creates a transcription client with default bounds.
func NewAssemblyAIClient(apiKey string) *AssemblyAIClient {
	return &AssemblyAIClient{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		BaseURL:      defaultBaseURL,
		apiKey:       apiKey,
		PollInterval: 2500 * time.Millisecond,
		PollCeiling:  60 * time.Second,
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Submit uploads the recorded utterance and creates a transcript job,
// returning the job id.
func (c *AssemblyAIClient) Submit(ctx context.Context, audio []byte) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("assemblyai api key missing")
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("assemblyai: empty audio payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	var up uploadResponse
	if err := c.do(req, &up); err != nil {
		return "", fmt.Errorf("assemblyai upload: %w", err)
	}
	if up.UploadURL == "" {
		return "", fmt.Errorf("assemblyai upload: empty upload_url")
	}

	body, _ := json.Marshal(transcriptRequest{AudioURL: up.UploadURL})
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var tr transcriptResponse
	if err := c.do(req, &tr); err != nil {
		return "", fmt.Errorf("assemblyai create transcript: %w", err)
	}
	if tr.ID == "" {
		return "", fmt.Errorf("assemblyai create transcript: empty id")
	}
	return tr.ID, nil
}

// Poll reports the current state of a transcript job. The text is only
// meaningful when the status is StatusDone.
func (c *AssemblyAIClient) Poll(ctx context.Context, jobID string) (Status, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return StatusFailed, "", err
	}
	req.Header.Set("Authorization", c.apiKey)

	var tr transcriptResponse
	if err := c.do(req, &tr); err != nil {
		return StatusFailed, "", fmt.Errorf("assemblyai poll: %w", err)
	}
	switch tr.Status {
	case "completed":
		return StatusDone, strings.TrimSpace(tr.Text), nil
	case "error":
		return StatusFailed, "", fmt.Errorf("assemblyai job failed: %s", tr.Error)
	default: // queued, processing
		return StatusPending, "", nil
	}
}

// Transcribe submits the audio and polls with a fixed inter-poll delay until
// the job settles or the overall ceiling expires. Past the ceiling it
// returns domain.ErrTranscribeCeiling rather than polling forever.
func (c *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	jobID, err := c.Submit(ctx, audio)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.PollCeiling)
	for {
		status, text, err := c.Poll(ctx, jobID)
		if err != nil {
			return "", err
		}
		if status == StatusDone {
			return text, nil
		}
		if time.Now().After(deadline) {
			log.Printf("assemblyai: job %s still pending past ceiling %s", jobID, c.PollCeiling)
			return "", domain.ErrTranscribeCeiling
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

func (c *AssemblyAIClient) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
