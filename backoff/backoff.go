// Package backoff provides retry policies and delay strategies for step
// execution and sub-job polling. All strategies are stateless and safe
// for concurrent use. No strategy applies jitter.
package backoff

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
// It paces sub-job status polling.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	f := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && f > float64(e.Max) {
		return e.Max
	}
	if f > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

// ──────────────────────────────────────────────────
// RetryPolicy
// ──────────────────────────────────────────────────

// ErrInvalidPolicy is returned by RetryPolicy.Validate.
var ErrInvalidPolicy = errors.New("backoff: invalid retry policy")

// RetryPolicy bounds how often a step is attempted and how long it waits
// between attempts. MaxAttempts counts every invocation, including the
// first.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay"`
}

// NewRetryPolicy creates a validated retry policy.
func NewRetryPolicy(maxAttempts int, base, maxDelay time.Duration) (RetryPolicy, error) {
	p := RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: maxDelay}
	return p, p.Validate()
}

// Validate checks MaxAttempts >= 1, BaseDelay >= 0 and MaxDelay >= BaseDelay.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, p.MaxAttempts)
	case p.BaseDelay < 0:
		return fmt.Errorf("%w: negative base delay %v", ErrInvalidPolicy, p.BaseDelay)
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: max delay %v < base delay %v", ErrInvalidPolicy, p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Delay returns min(BaseDelay * 2^(attempt-1), MaxDelay), where attempt is
// the number of the attempt that just failed.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return (&Exponential{Initial: p.BaseDelay, Max: p.MaxDelay}).Delay(attempt)
}

// Once is a policy that never retries.
func Once() RetryPolicy { return RetryPolicy{MaxAttempts: 1} }

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultPolicy returns the policy used for I/O steps when none is
// configured: 3 attempts, 1s base, 30s cap.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}
