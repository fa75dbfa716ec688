package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/dshills/wordbatch/internal/redact"
)

// maxErrorBody bounds how much of an error response is surfaced.
const maxErrorBody = 2048

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Response, error)
}

// Options configures a Client.
type Options struct {
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	// Timeout bounds each HTTP attempt, not the whole call.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to a chat completions endpoint.
type Client struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	http        *http.Client
	logger      *slog.Logger
	policy      policy

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

var _ Generator = (*Client)(nil)

// New creates a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		apiKey:      opts.APIKey,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		http:        hc,
		logger:      logger,
		policy:      defaultPolicy,
		sleep:       sleepContext,
		jitter:      rand.Float64,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate sends prompt as a single user turn, retrying per the package
// policy.
func (c *Client) Generate(ctx context.Context, prompt string) (Response, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	var (
		st      = stateAttempt
		attempt int
		backoff = c.policy.InitialBackoff
		resp    Response
		kind    outcome
		callErr error
		lastErr error // last transport-level failure
	)
	for {
		switch st {
		case stateAttempt:
			attempt++
			resp, kind, callErr = c.do(ctx, payload)
			if callErr != nil && ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			if kind == outcomeTimeout || kind == outcomeTransport {
				lastErr = callErr
			}
			st = c.policy.transition(kind, attempt)

		case stateBackoff:
			d := c.policy.sleepFor(backoff, c.jitter())
			c.logger.Warn("generation attempt failed, backing off",
				"attempt", attempt, "delay", d, "error", callErr)
			if err := c.sleep(ctx, d); err != nil {
				return Response{}, err
			}
			backoff = c.policy.nextBackoff(kind, backoff)
			st = stateAttempt

		case stateSuccess:
			return resp, nil

		case stateFatal:
			return Response{}, callErr

		case stateExhausted:
			c.logger.Error("generation gave up", "attempts", attempt, "error", callErr)
			return Response{}, exhausted(lastErr)
		}
	}
}

// do performs one HTTP attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, payload []byte) (Response, outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, outcomeRejected, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Response{}, outcomeTimeout, err
		}
		return Response{}, outcomeTransport, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(err) {
			return Response{}, outcomeTimeout, fmt.Errorf("reading response: %w", err)
		}
		return Response{}, outcomeTransport, fmt.Errorf("reading response: %w", err)
	}

	code := httpResp.StatusCode
	switch {
	case code == http.StatusOK:
		resp, err := parseResponse(body)
		if err != nil {
			return Response{}, outcomeRejected, err
		}
		return resp, outcomeOK, nil
	case code == http.StatusTooManyRequests || code >= 500:
		return Response{}, outcomeThrottled, &StatusError{Code: code, Body: scrub(body)}
	default:
		return Response{}, outcomeRejected, &StatusError{Code: code, Body: scrub(body)}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func scrub(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return redact.Secrets(string(body))
}
