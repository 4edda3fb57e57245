// Package oracle asks an OpenAI-compatible chat-completions endpoint for a
// trading decision and turns the reply into a validated domain.Decision.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/retry"
)

const rateLimitKey = "ratelimit:oracle"

// Config holds the endpoint and request parameters.
type Config struct {
	URL               string
	APIKey            string
	Model             string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	Retry             retry.Policy
	RequestsPerMinute int
	Limits            Limits
}

// Stats counts oracle calls since start.
type Stats struct {
	TotalCalls  int64   `json:"total_calls"`
	FailedCalls int64   `json:"failed_calls"`
	SuccessRate float64 `json:"success_rate"`
}

// Client implements domain.DecisionOracle.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter domain.RateLimiter
	logger  *slog.Logger

	total  atomic.Int64
	failed atomic.Int64
}

var _ domain.DecisionOracle = (*Client)(nil)

// New creates a Client. limiter may be nil to disable shared rate limiting.
func New(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "oracle")),
	}
}

// Decide queries the model for symbol. The returned Decision is always
// usable: on any failure it is a HOLD carrying the failure as its reason, and
// the error is returned alongside for logging.
func (c *Client) Decide(ctx context.Context, symbol, prompt string, day int) (domain.Decision, error) {
	c.total.Add(1)

	reply, err := c.query(ctx, prompt)
	if err != nil {
		c.failed.Add(1)
		c.logger.Warn("oracle query failed",
			slog.String("symbol", symbol),
			slog.Int("day", day),
			slog.String("error", err.Error()),
		)
		return domain.HoldDecision(symbol, "Error: "+err.Error()), err
	}

	d, err := ParseDecision(symbol, reply, c.cfg.Limits)
	if err != nil {
		c.logger.Warn("oracle reply rejected",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
			slog.String("reply", truncate(reply, 200)),
		)
		return domain.HoldDecision(symbol, "Invalid LLM response - validation failed"), err
	}
	return d, nil
}

// Stats returns call counters.
func (c *Client) Stats() Stats {
	s := Stats{TotalCalls: c.total.Load(), FailedCalls: c.failed.Load()}
	if s.TotalCalls > 0 {
		s.SuccessRate = float64(s.TotalCalls-s.FailedCalls) / float64(s.TotalCalls) * 100
	}
	return s
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// statusError is a non-200 reply from the endpoint.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("oracle: status %d: %s", e.Code, truncate(e.Body, 200))
}

func (c *Client) query(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil && c.cfg.RequestsPerMinute > 0 {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.cfg.RequestsPerMinute, time.Minute); err != nil {
			return "", fmt.Errorf("oracle: rate limit: %w", err)
		}
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}

	policy := c.cfg.Retry
	policy.Retryable = retryable

	var content string
	attempt := 0
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		out, err := c.post(ctx, payload)
		if err != nil {
			c.logger.Debug("oracle attempt failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return err
		}
		content = out
		return nil
	})
	return content, err
}

func (c *Client) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &statusError{Code: resp.StatusCode, Body: string(body)}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// retryable retries everything except caller cancellation and client-side
// request errors other than 408 and 429.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		return se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
