package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ytdigest/internal/config"
	"ytdigest/internal/domain"
)

func testLLM(t *testing.T, handler http.Handler) *ChatGPTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewChatGPTClient(config.LLMConfig{
		Endpoint: srv.URL,
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
	})
}

func TestComplete(t *testing.T) {
	t.Parallel()

	c := testLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing authorization header")
		}

		var payload struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", payload.Model)
		}
		if payload.Temperature != 0.7 || payload.MaxTokens != 1024 {
			t.Errorf("params not forwarded: %v/%d", payload.Temperature, payload.MaxTokens)
		}
		if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", payload.Messages)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "# Title\n\nBody."}},
			},
		})
	}))

	got, err := c.Complete(context.Background(), "system prompt", "user prompt",
		domain.GenerationParams{Temperature: 0.7, MaxTokens: 1024})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "# Title\n\nBody." {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrServiceUnavailable},
	}
	for _, tc := range cases {
		c := testLLM(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := c.Complete(context.Background(), "s", "u", domain.GenerationParams{})
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestCompleteMisconfigured(t *testing.T) {
	t.Parallel()

	c := NewChatGPTClient(config.LLMConfig{})
	_, err := c.Complete(context.Background(), "s", "u", domain.GenerationParams{})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"```markdown\n# T\n```": "# T",
		"```\n# T\n```":         "# T",
		"# T":                   "# T",
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Fatalf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
