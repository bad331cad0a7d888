// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package store

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turnia/turnia/internal/retry"
)

// TxRunner runs a unit of work atomically.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RetryingTransactor retries a whole unit of work when it fails with a
// transient error. Only the outermost call retries; a call made inside an
// existing transaction joins it, since a failed statement aborts the whole
// transaction anyway.
type RetryingTransactor struct {
	inner   TxRunner
	policy  retry.Policy
	retries prometheus.Counter
	logger  *slog.Logger
}

// NewRetryingTransactor wraps inner. reg may be nil to skip metrics.
func NewRetryingTransactor(inner TxRunner, policy retry.Policy, reg prometheus.Registerer, logger *slog.Logger) *RetryingTransactor {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &RetryingTransactor{inner: inner, policy: policy, logger: logger}
	if reg != nil {
		rt.retries = promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "turnia_store_tx_retries_total",
			Help: "Transactions retried after a serialization failure or deadlock",
		})
	}
	return rt
}

// InTransaction implements TxRunner. Exhausting the policy returns a
// *retry.ExhaustedError.
func (r *RetryingTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return r.inner.InTransaction(ctx, fn)
	}

	policy := r.policy
	policy.OnRetry = func(attempt int, err error) {
		if r.retries != nil {
			r.retries.Inc()
		}
		r.logger.DebugContext(ctx, "retrying transaction", "attempt", attempt, "error", err)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err)
		}
	}
	return retry.Do(ctx, policy, IsTransient, func(ctx context.Context) error {
		return r.inner.InTransaction(ctx, fn)
	})
}
