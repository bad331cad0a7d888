// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package retry runs a unit of work again when it fails with an error the
// caller classifies as transient, backing off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Defaults for Policy fields left at zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
)

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retries exhausted")

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// Policy bounds how often and how slowly a unit of work is retried.
type Policy struct {
	// MaxAttempts counts the first attempt. One disables retrying.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles afterwards.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means DefaultMaxDelay.
	MaxDelay time.Duration
	// JitterPercent randomises each wait by up to this percentage.
	JitterPercent uint64
	// OnRetry, when set, is called before each wait with the attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

func (p Policy) backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	b = goretry.WithCappedDuration(p.MaxDelay, b)
	if p.JitterPercent > 0 {
		b = goretry.WithJitterPercent(p.JitterPercent, b)
	}
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b) //nolint:gosec // MaxAttempts >= 1 after withDefaults
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last transient error.
func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrExhausted) true.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Do calls fn until it succeeds, fails with an error isTransient rejects, the
// policy runs out of attempts, or ctx is done. Non-transient errors are
// returned unchanged after a single attempt. Running out of attempts returns
// an *ExhaustedError wrapping the last error.
func Do(ctx context.Context, p Policy, isTransient Classifier, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	attempts := 0
	var lastTransient error

	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient == nil || !isTransient(err) {
			return err
		}
		lastTransient = err
		if attempts < p.MaxAttempts && p.OnRetry != nil {
			p.OnRetry(attempts, err)
		}
		return goretry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if lastTransient != nil && errors.Is(err, lastTransient) && attempts >= p.MaxAttempts {
		return &ExhaustedError{Attempts: attempts, Err: lastTransient}
	}
	return err
}
