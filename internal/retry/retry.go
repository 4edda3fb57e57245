// Package retry runs calls with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Policy bounds the retry loop. Attempts counts the first call.
type Policy struct {
	Attempts int
	Base     time.Duration
	Factor   float64
	Max      time.Duration
	// Retryable decides whether an error is worth another attempt. Nil means
	// domain.IsTransient.
	Retryable func(error) bool
}

// Delay returns the pause before attempt n (0-based retry index).
func (p Policy) Delay(n int) time.Duration {
	d := float64(p.Base)
	f := p.Factor
	if f < 1 {
		f = 1
	}
	for i := 0; i < n; i++ {
		d *= f
	}
	out := time.Duration(d)
	if p.Max > 0 && out > p.Max {
		out = p.Max
	}
	return out
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = domain.IsTransient
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(p.Delay(i - 1)):
			}
		}
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
