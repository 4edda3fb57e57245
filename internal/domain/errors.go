package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrContextDone       = errors.New("context cancelled")
	ErrLockHeld          = errors.New("lock already held")
	ErrPositionNotFound  = errors.New("position not found")
	ErrStopLoosened      = errors.New("stop would loosen")
	ErrQuantityIncrease  = errors.New("remaining quantity must decrease")
	ErrPyramidSide       = errors.New("pyramid side differs from first position")
	ErrSymbolCapReached  = errors.New("per-symbol position cap reached")
	ErrDuplicateEntry    = errors.New("duplicate entry suppressed")
	ErrNoPriceAvailable  = errors.New("no price available")
	ErrBelowMinTradeable = errors.New("quantity below minimum tradable unit")
)

// ValidationError reports a decision or config field that fails a schema or
// range check. Callers recover by substituting a safe HOLD.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ExchangeTransientError wraps a network or rate-limit failure that is worth
// retrying.
type ExchangeTransientError struct {
	Op  string
	Err error
}

func (e *ExchangeTransientError) Error() string {
	return fmt.Sprintf("exchange transient: %s: %v", e.Op, e.Err)
}

func (e *ExchangeTransientError) Unwrap() error { return e.Err }

// ExchangeRejectError is a venue-side rejection (precision, min notional,
// margin). It is never retried.
type ExchangeRejectError struct {
	Op     string
	Code   int64
	Reason string
}

func (e *ExchangeRejectError) Error() string {
	return fmt.Sprintf("exchange rejected %s (code %d): %s", e.Op, e.Code, e.Reason)
}

// RiskRejection is a deliberate veto from RiskGate.
type RiskRejection struct {
	Check  string
	Reason string
}

func (e *RiskRejection) Error() string {
	return fmt.Sprintf("risk rejected [%s]: %s", e.Check, e.Reason)
}

// CircuitBreakerHalt blocks new entries. Terminal halts require an explicit
// reset; the others carry the time trading may resume.
type CircuitBreakerHalt struct {
	Level    BreakerLevel
	Reason   string
	ResumeAt *time.Time
	Terminal bool
}

func (e *CircuitBreakerHalt) Error() string {
	if e.Terminal {
		return fmt.Sprintf("circuit breaker %s (terminal): %s", e.Level, e.Reason)
	}
	if e.ResumeAt != nil {
		return fmt.Sprintf("circuit breaker %s: %s (resume after %s)",
			e.Level, e.Reason, e.ResumeAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("circuit breaker %s: %s", e.Level, e.Reason)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *ExchangeTransientError
	return errors.As(err, &t)
}

// IsReject reports whether err is a venue rejection.
func IsReject(err error) bool {
	var r *ExchangeRejectError
	return errors.As(err, &r)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// AsRiskRejection extracts a RiskRejection from err.
func AsRiskRejection(err error) (*RiskRejection, bool) {
	var r *RiskRejection
	ok := errors.As(err, &r)
	return r, ok
}

// AsHalt extracts a CircuitBreakerHalt from err.
func AsHalt(err error) (*CircuitBreakerHalt, bool) {
	var h *CircuitBreakerHalt
	ok := errors.As(err, &h)
	return h, ok
}
