package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const senderTimeout = 10 * time.Second

// DeliveryError is a non-2xx provider response. RetryAfter is set when the
// provider asked for a back-off with 429.
type DeliveryError struct {
	Provider   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// postJSON posts payload to endpoint. Transport errors are unwrapped from
// *url.Error so a bot token embedded in the URL never reaches the logs.
// Errors are left for the Notifier to prefix with the sender name.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.New("build request: invalid endpoint")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	derr := &DeliveryError{
		Provider: provider,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(snippet)),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		derr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
	}
	return derr
}

// retryAfter parses a Retry-After header given in (possibly fractional)
// seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
