package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"ytdigest/internal/config"
	"ytdigest/internal/domain"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.STTConfig{
		Endpoint:     srv.URL,
		APIKey:       "test-key",
		PollInterval: 10 * time.Millisecond,
		Timeout:      2 * time.Second,
	}, nil)
}

func TestTranscribePublishAndPoll(t *testing.T) {
	t.Parallel()

	var polls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("missing authorization header")
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if r.FormValue("language") != "en" {
				t.Errorf("language hint = %q", r.FormValue("language"))
			}
			if _, _, err := r.FormFile("audio"); err != nil {
				t.Errorf("audio part: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1", "status": "queued"})
		case "/status":
			if r.URL.Query().Get("job_id") != "job-1" {
				t.Errorf("job_id = %q", r.URL.Query().Get("job_id"))
			}
			if atomic.AddInt32(&polls, 1) < 3 {
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":     "done",
				"language":   "en",
				"confidence": 0.92,
				"segments": []map[string]any{
					{"start_ms": 0, "end_ms": 4000, "text": "hello world"},
					{"start_ms": 4000, "end_ms": 9000, "text": "from the transcript"},
				},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	c := testClient(t, handler)
	segments, language, lowConf, err := c.Transcribe(context.Background(), writeAudio(t), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if language != "en" {
		t.Fatalf("language = %q", language)
	}
	if lowConf {
		t.Fatalf("confidence 0.92 must not be flagged low")
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "hello world" || segments[0].End != 4*time.Second {
		t.Fatalf("unexpected segment: %+v", segments[0])
	}
	if atomic.LoadInt32(&polls) < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls)
	}
}

func TestTranscribeLowConfidence(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-2", "status": "queued"})
		case "/status":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":     "done",
				"language":   "en",
				"confidence": 0.3,
				"segments":   []map[string]any{{"start_ms": 0, "end_ms": 1000, "text": "mumble"}},
			})
		}
	})

	c := testClient(t, handler)
	_, _, lowConf, err := c.Transcribe(context.Background(), writeAudio(t), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !lowConf {
		t.Fatalf("confidence 0.3 must be flagged low")
	}
}

func TestTranscribeUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "unsupported_language",
		})
	})

	c := testClient(t, handler)
	_, _, _, err := c.Transcribe(context.Background(), writeAudio(t), "tlh")
	if !errors.Is(err, domain.ErrUnsupportedLanguage) {
		t.Fatalf("got %v, want ErrUnsupportedLanguage", err)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-3", "status": "queued"})
		case "/status":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
		}
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.STTConfig{
		Endpoint:     srv.URL,
		PollInterval: 10 * time.Millisecond,
		Timeout:      100 * time.Millisecond,
	}, nil)

	_, _, _, err := c.Transcribe(context.Background(), writeAudio(t), "en")
	if !errors.Is(err, domain.ErrTranscriptionTimeout) {
		t.Fatalf("got %v, want ErrTranscriptionTimeout", err)
	}
}

func TestTranscribeJobFailed(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-4", "status": "queued"})
		case "/status":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed", "reason": "decode error"})
		}
	})

	c := testClient(t, handler)
	_, _, _, err := c.Transcribe(context.Background(), writeAudio(t), "en")
	if err == nil {
		t.Fatalf("failed job must surface an error")
	}
	if errors.Is(err, domain.ErrTranscriptionTimeout) {
		t.Fatalf("job failure is not a timeout: %v", err)
	}
}
