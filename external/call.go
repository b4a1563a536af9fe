package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/vectorflow/backoff"
	"github.com/xraph/vectorflow/workflow"
)

// Defaults applied by Call when no option overrides them.
const (
	DefaultTimeout      = 5 * time.Minute
	DefaultPollInterval = 2 * time.Second
)

// Option configures a Call.
type Option func(*callConfig)

type callConfig struct {
	timeout      time.Duration
	pollInterval time.Duration
	pollRetry    backoff.RetryPolicy
	createRetry  backoff.RetryPolicy
	instanceID   string
	now          func() time.Time
}

// WithTimeout bounds how long the sub-job may stay non-terminal,
// measured from its creation.
func WithTimeout(d time.Duration) Option {
	return func(c *callConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets the durable wait between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *callConfig) {
		if d >= 0 {
			c.pollInterval = d
		}
	}
}

// WithPollRetry sets the retry policy of each status poll.
func WithPollRetry(p backoff.RetryPolicy) Option {
	return func(c *callConfig) { c.pollRetry = p }
}

// WithCreateRetry sets the retry policy of the create step.
func WithCreateRetry(p backoff.RetryPolicy) Option {
	return func(c *callConfig) { c.createRetry = p }
}

// WithInstanceID names the sub-job explicitly. By default it is derived
// from the run ID and the label, which keeps creation idempotent across
// resumes.
func WithInstanceID(id string) Option {
	return func(c *callConfig) { c.instanceID = id }
}

// WithClock replaces time.Now for deadline decisions.
func WithClock(now func() time.Time) Option {
	return func(c *callConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// created is the checkpoint of the create step.
type created struct {
	HandleID  string    `msgpack:"handle_id"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// polled is the checkpoint of one poll step. Expired is decided when the
// poll runs, so replaying the run reaches the same verdict.
type polled struct {
	Status  Status `msgpack:"status"`
	Output  []byte `msgpack:"output,omitempty"`
	Error   string `msgpack:"error,omitempty"`
	Expired bool   `msgpack:"expired"`
}

// Call creates a sub-job on engine with params, waits for it to finish,
// and decodes its output into R. A complete sub-job with empty or null
// output yields a nil *R.
//
// The steps it records on w are "<label>:create", "<label>:poll:<n>",
// and the durable sleeps "<label>:wait:<n>" between polls. An errored or
// terminated sub-job yields a *FailureError; a sub-job still running
// once the deadline has passed yields a *TimeoutError. Cancelling the
// run stops the wait but not the sub-job.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Call[P, R any](w *workflow.Workflow, engine Engine, params P, label string, opts ...Option) (*R, error) {
	cfg := callConfig{
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		pollRetry:    backoff.DefaultPolicy(),
		createRetry:  backoff.DefaultPolicy(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.instanceID == "" {
		cfg.instanceID = w.RunID() + "-" + slug(label)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("external %s: marshal params: %w", label, err)
	}

	c, err := workflow.Step(w, label+":create", func(ctx context.Context) (created, error) {
		h, createErr := engine.Create(ctx, cfg.instanceID, raw)
		if createErr != nil {
			return created{}, createErr
		}
		return created{HandleID: h.ID(), CreatedAt: cfg.now().UTC()}, nil
	}, workflow.WithRetry(cfg.createRetry))
	if err != nil {
		return nil, err
	}

	logger := w.Logger().With(slog.String("label", label), slog.String("sub_job", c.Data.HandleID))
	logger.Debug("sub-job created")

	deadline := c.Data.CreatedAt.Add(cfg.timeout)
	for n := 1; ; n++ {
		p, err := workflow.Step(w, fmt.Sprintf("%s:poll:%d", label, n), func(ctx context.Context) (polled, error) {
			h, getErr := engine.Get(ctx, c.Data.HandleID)
			if getErr != nil {
				return polled{}, getErr
			}
			snap, statusErr := h.Status(ctx)
			if statusErr != nil {
				return polled{}, statusErr
			}
			return polled{
				Status:  snap.Status,
				Output:  snap.Output,
				Error:   snap.Error,
				Expired: cfg.now().After(deadline),
			}, nil
		}, workflow.WithRetry(cfg.pollRetry))
		if err != nil {
			return nil, err
		}

		switch p.Data.Status {
		case StatusComplete:
			logger.Debug("sub-job complete", slog.Int("polls", n))
			return decode[R](label, p.Data.Output)
		case StatusErrored, StatusFailed, StatusTerminated:
			return nil, &FailureError{Label: label, Status: p.Data.Status, Reason: p.Data.Error}
		}
		if p.Data.Expired {
			logger.Warn("sub-job did not finish before deadline",
				slog.String("status", string(p.Data.Status)),
				slog.Duration("timeout", cfg.timeout),
			)
			return nil, &TimeoutError{Label: label, Timeout: cfg.timeout}
		}

		if err := w.Sleep(fmt.Sprintf("%s:wait:%d", label, n), cfg.pollInterval); err != nil {
			return nil, err
		}
	}
}

func decode[R any](label string, output []byte) (*R, error) {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	out := new(R)
	if err := json.Unmarshal(output, out); err != nil {
		return nil, fmt.Errorf("external %s: decode output: %w", label, err)
	}
	return out, nil
}

// slug lowercases s and replaces every run of characters outside
// [a-z0-9] with a single dash.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
