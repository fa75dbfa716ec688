package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient returns a client whose sleeps are recorded instead of
// performed.
func newTestClient(url, apiKey string, timeout time.Duration) (*Client, *[]time.Duration) {
	c := New(Options{
		Endpoint:    url,
		Model:       "test-model",
		APIKey:      apiKey,
		Temperature: 0.2,
		MaxTokens:   64,
		Timeout:     timeout,
		Logger:      quietLogger(),
	})
	delays := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	c.jitter = func() float64 { return 0 }
	return c, delays
}

func chatBody(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + jsonString(content) + `}}],` +
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerate_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer test-key")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if req.Model != "test-model" || req.MaxTokens != 64 || req.Temperature != 0.2 {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello" {
			t.Errorf("Messages = %+v", req.Messages)
		}
		io.WriteString(w, chatBody("review text"))
	}))
	defer server.Close()

	c, delays := newTestClient(server.URL, "test-key", time.Second)
	resp, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text != "review text" {
		t.Errorf("Text = %q, want %q", resp.Text, "review text")
	}
	if resp.Usage == nil || *resp.Usage.TotalTokens != 15 || *resp.Usage.PromptTokens != 10 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.Usage.ReasoningTokens != nil {
		t.Errorf("ReasoningTokens = %v, want nil", *resp.Usage.ReasoningTokens)
	}
	if len(*delays) != 0 {
		t.Errorf("delays = %v, want none", *delays)
	}
}

func TestGenerate_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		io.WriteString(w, chatBody("ok"))
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL, "", time.Second)
	if _, err := c.Generate(context.Background(), "x"); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
}

func TestGenerate_RateLimitThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":"rate limited"}`)
			return
		}
		io.WriteString(w, chatBody("after retry"))
	}))
	defer server.Close()

	c, delays := newTestClient(server.URL, "k", time.Second)
	c.jitter = func() float64 { return 0.5 }

	resp, err := c.Generate(context.Background(), "x")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text != "after retry" {
		t.Errorf("Text = %q, want %q", resp.Text, "after retry")
	}
	if len(*delays) != 1 {
		t.Fatalf("delays = %v, want exactly one", *delays)
	}
	if d := (*delays)[0]; d < time.Second {
		t.Errorf("delay = %v, want >= 1s", d)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestGenerate_FatalStatuses(t *testing.T) {
	tests := []struct {
		code     int
		wantMsg  string
		wantAuth bool
	}{
		{http.StatusBadRequest, "LLM request failed: 400", false},
		{http.StatusUnauthorized, "LLM request failed: 401", true},
		{http.StatusForbidden, "LLM request failed: 403", true},
		{http.StatusNotFound, "unexpected LLM status 404", false},
		{http.StatusConflict, "unexpected LLM status 409", false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.code)
				io.WriteString(w, `{"error":"nope"}`)
			}))
			defer server.Close()

			c, delays := newTestClient(server.URL, "k", time.Second)
			_, err := c.Generate(context.Background(), "x")
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			if se.Code != tt.code {
				t.Errorf("Code = %d, want %d", se.Code, tt.code)
			}
			if !strings.HasPrefix(err.Error(), tt.wantMsg) || !strings.Contains(err.Error(), "nope") {
				t.Errorf("error = %q, want prefix %q and body", err.Error(), tt.wantMsg)
			}
			if IsAuthError(err) != tt.wantAuth {
				t.Errorf("IsAuthError = %v, want %v", IsAuthError(err), tt.wantAuth)
			}
			if attempts.Load() != 1 || len(*delays) != 0 {
				t.Errorf("attempts = %d, delays = %v, want one attempt and no delay", attempts.Load(), *delays)
			}
		})
	}
}

func TestGenerate_ErrorBodyRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"bad key sk-or-v1-0123456789abcdef0123456789abcdef0123"}`)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL, "k", time.Second)
	_, err := c.Generate(context.Background(), "x")
	if err == nil {
		t.Fatal("Generate error = nil")
	}
	if strings.Contains(err.Error(), "0123456789abcdef0123") {
		t.Errorf("error leaks key: %q", err.Error())
	}
}

func TestGenerate_ServerErrorExhausts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, delays := newTestClient(server.URL, "k", time.Second)
	_, err := c.Generate(context.Background(), "x")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if err.Error() != "LLM request failed after retries" {
		t.Errorf("error = %q, want the bare exhaustion message", err.Error())
	}
	if attempts.Load() != 6 {
		t.Errorf("attempts = %d, want 6", attempts.Load())
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestGenerate_TimeoutGivesUpAfterThree(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c, delays := newTestClient(server.URL, "k", 50*time.Millisecond)
	_, err := c.Generate(context.Background(), "x")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if !isTimeout(err) {
		t.Errorf("error = %v, want wrapped timeout", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	if len(*delays) != 2 {
		t.Errorf("delays = %v, want 2", *delays)
	}
}

func TestGenerate_TransportErrorWrapsLastError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, delays := newTestClient(url, "k", time.Second)
	_, err := c.Generate(context.Background(), "x")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if !strings.HasPrefix(err.Error(), "LLM request failed after retries: ") {
		t.Errorf("error = %q, want wrapped transport error", err.Error())
	}
	if len(*delays) != 5 {
		t.Errorf("delays = %d, want 5", len(*delays))
	}
	if (*delays)[4] != 16*time.Second {
		t.Errorf("last delay = %v, want 16s", (*delays)[4])
	}
}

func TestGenerate_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestClient(server.URL, "k", time.Second)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := c.Generate(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestGenerate_ResponseShape(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"top-level text", `{"text":"plain"}`, "plain", false},
		{"message string", `{"choices":[{"message":{"content":"msg"}}]}`, "msg", false},
		{"content parts", `{"choices":[{"message":{"content":[{"type":"text","text":"a"},{"type":"image"},"b"]}}]}`, "ab", false},
		{"legacy choice text", `{"choices":[{"text":"legacy"}]}`, "legacy", false},
		{"null content falls back", `{"choices":[{"message":{"content":null},"text":"fallback"}]}`, "fallback", false},
		{"empty choices", `{"choices":[]}`, "", true},
		{"no text anywhere", `{"id":"x"}`, "", true},
		{"not json", `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c, _ := newTestClient(server.URL, "k", time.Second)
			resp, err := c.Generate(context.Background(), "x")
			if tt.wantErr {
				if !errors.Is(err, ErrResponseShape) {
					t.Errorf("error = %v, want ErrResponseShape", err)
				}
				if attempts.Load() != 1 {
					t.Errorf("attempts = %d, want 1", attempts.Load())
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate error: %v", err)
			}
			if resp.Text != tt.want {
				t.Errorf("Text = %q, want %q", resp.Text, tt.want)
			}
		})
	}
}

func TestParseUsage(t *testing.T) {
	u := parseUsage(json.RawMessage(`{"prompt_tokens":3,"total_tokens":"bogus","completion_tokens_details":{"reasoning_tokens":7}}`))
	if u == nil {
		t.Fatal("parseUsage = nil")
	}
	if u.PromptTokens == nil || *u.PromptTokens != 3 {
		t.Errorf("PromptTokens = %v, want 3", u.PromptTokens)
	}
	if u.TotalTokens != nil {
		t.Errorf("TotalTokens = %v, want nil", *u.TotalTokens)
	}
	if u.CompletionTokens != nil {
		t.Errorf("CompletionTokens = %v, want nil", *u.CompletionTokens)
	}
	if u.ReasoningTokens == nil || *u.ReasoningTokens != 7 {
		t.Errorf("ReasoningTokens = %v, want 7", u.ReasoningTokens)
	}

	if parseUsage(nil) != nil || parseUsage(json.RawMessage(`null`)) != nil || parseUsage(json.RawMessage(`{}`)) != nil {
		t.Error("parseUsage of missing usage should be nil")
	}
}

func TestTotalsAdd(t *testing.T) {
	three, five := 3, 5
	var tot Totals
	tot.Add(&Usage{PromptTokens: &three, TotalTokens: &five})
	tot.Add(nil)
	tot.Add(&Usage{PromptTokens: &five})
	if tot.PromptTokens != 8 || tot.TotalTokens != 5 || tot.CompletionTokens != 0 {
		t.Errorf("Totals = %+v", tot)
	}
}
