package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ytdigest/internal/config"
	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

// Client talks to an asynchronous speech-to-text service: publish the audio,
// poll the job until it finishes, then fetch the segment list.
type Client struct {
	endpoint     string
	apiKey       string
	pollInterval time.Duration
	timeout      time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ ports.SpeechToText = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.STTConfig, log *slog.Logger) *Client {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		pollInterval: pollInterval,
		timeout:      timeout,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       log,
	}
}

type publishResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Language string `json:"language,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type statusResponse struct {
	Status     string  `json:"status"` // queued, processing, done, failed
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Segments   []struct {
		StartMs int64  `json:"start_ms"`
		EndMs   int64  `json:"end_ms"`
		Text    string `json:"text"`
	} `json:"segments"`
}

// lowConfidenceThreshold flags transcripts for downstream quality gating.
const lowConfidenceThreshold = 0.6

// Transcribe uploads the audio file and polls until the job completes.
func (c *Client) Transcribe(ctx context.Context, audioPath, languageHint string) ([]domain.Segment, string, bool, error) {
	if c.endpoint == "" {
		return nil, "", false, fmt.Errorf("stt client misconfigured: %w", domain.ErrServiceUnavailable)
	}

	deadline, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jobID, err := c.publish(deadline, audioPath, languageHint)
	if err != nil {
		return nil, "", false, err
	}

	status, err := c.poll(deadline, jobID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, "", false, fmt.Errorf("job %s: %w", jobID, domain.ErrTranscriptionTimeout)
		}
		return nil, "", false, err
	}

	segments := make([]domain.Segment, 0, len(status.Segments))
	for _, seg := range status.Segments {
		segments = append(segments, domain.Segment{
			Start: time.Duration(seg.StartMs) * time.Millisecond,
			End:   time.Duration(seg.EndMs) * time.Millisecond,
			Text:  seg.Text,
		})
	}

	lowConfidence := status.Confidence > 0 && status.Confidence < lowConfidenceThreshold
	if lowConfidence && c.logger != nil {
		c.logger.Warn("low confidence transcription", "job_id", jobID, "confidence", status.Confidence)
	}

	language := status.Language
	if language == "" {
		language = languageHint
	}
	return segments, language, lowConfidence, nil
}

func (c *Client) publish(ctx context.Context, audioPath, languageHint string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if languageHint != "" {
		_ = w.WriteField("language", languageHint)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	var published publishResponse
	if err := c.doJSON(ctx, req, &published); err != nil {
		return "", err
	}

	switch published.Status {
	case "unsupported_language":
		return "", fmt.Errorf("language %q: %w", languageHint, domain.ErrUnsupportedLanguage)
	case "failed":
		return "", fmt.Errorf("publish rejected: %s", published.Reason)
	}
	if published.JobID == "" {
		return "", fmt.Errorf("publish response missing job id")
	}
	return published.JobID, nil
}

func (c *Client) poll(ctx context.Context, jobID string) (*statusResponse, error) {
	statusURL := fmt.Sprintf("%s/status?%s", c.endpoint, url.Values{"job_id": {jobID}}.Encode())

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build status request: %w", err)
		}
		c.authorize(req)

		var status statusResponse
		if err := c.doJSON(ctx, req, &status); err != nil {
			return nil, err
		}

		if c.logger != nil {
			c.logger.Debug("polling transcription", "job_id", jobID, "status", status.Status)
		}

		switch status.Status {
		case "done":
			return &status, nil
		case "failed":
			if status.Reason == "unsupported_language" {
				return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrUnsupportedLanguage)
			}
			return nil, fmt.Errorf("transcription job %s failed: %s", jobID, status.Reason)
		case "queued", "processing":
			// keep polling
		default:
			return nil, fmt.Errorf("unknown job status %q", status.Status)
		}
	}
}

// doJSON performs a request with exponential-backoff retries on transient
// HTTP failures and decodes the JSON response.
func (c *Client) doJSON(ctx context.Context, req *http.Request, target any) error {
	var bodyCopy []byte
	if req.Body != nil && req.GetBody == nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("buffer request body: %w", err)
		}
		bodyCopy = raw
	}

	operation := func() error {
		attempt := req.Clone(ctx)
		if bodyCopy != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		}

		resp, err := c.httpClient.Do(attempt)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("stt: %w", domain.ErrRateLimited)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("stt %s: %w", resp.Status, domain.ErrServiceUnavailable)
		case resp.StatusCode >= http.StatusBadRequest:
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("stt %s: %s", resp.Status, bytes.TrimSpace(payload)))
		}

		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return backoff.Permanent(fmt.Errorf("decode stt response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
