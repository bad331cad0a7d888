// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/turnia/turnia/pkg/errutil"
)

// SweeperConfig defines how long expired rows are kept and how often the
// sweeper runs.
type SweeperConfig struct {
	Interval       time.Duration // how often to sweep
	Retention      time.Duration // keep expired tokens this long
	AuditRetention time.Duration // keep security events this long; zero keeps them forever
}

// DefaultSweeperConfig returns hourly sweeps with one day of token retention
// and 90 days of audit history.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:       time.Hour,
		Retention:      24 * time.Hour,
		AuditRetention: 90 * 24 * time.Hour,
	}
}

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	RefreshTokens int64
	ResetTokens   int64
	AuditEvents   int64
}

// Sweeper periodically deletes expired refresh and reset tokens and, when
// given a pruner, old security events.
type Sweeper struct {
	cfg     SweeperConfig
	refresh *RefreshLedger
	reset   *ResetLedger
	audit   AuditPruner
	logger  *slog.Logger
	clock   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. audit may be nil.
func NewSweeper(cfg SweeperConfig, refresh *RefreshLedger, reset *ResetLedger, audit AuditPruner, logger *slog.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Retention < 0 {
		cfg.Retention = def.Retention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:     cfg,
		refresh: refresh,
		reset:   reset,
		audit:   audit,
		logger:  logger,
		clock:   time.Now,
	}
}

// RunOnce executes a single sweep. Every step is attempted even if earlier
// ones fail; errors are combined.
func (w *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	now := w.clock().UTC()
	cutoff := now.Add(-w.cfg.Retention)
	var res SweepResult
	var errs []error

	n, err := w.refresh.DeleteExpired(ctx, cutoff)
	if err != nil {
		errutil.LogErrorContext(ctx, w.logger, slog.LevelError, "delete expired refresh tokens failed", err)
		errs = append(errs, err)
	}
	res.RefreshTokens = n

	n, err = w.reset.DeleteExpired(ctx, cutoff)
	if err != nil {
		errutil.LogErrorContext(ctx, w.logger, slog.LevelError, "delete expired reset tokens failed", err)
		errs = append(errs, err)
	}
	res.ResetTokens = n

	if w.audit != nil && w.cfg.AuditRetention > 0 {
		n, err = w.audit.DeleteBefore(ctx, now.Add(-w.cfg.AuditRetention))
		if err != nil {
			errutil.LogErrorContext(ctx, w.logger, slog.LevelError, "prune security events failed", err)
			errs = append(errs, err)
		}
		res.AuditEvents = n
	}

	if res.RefreshTokens+res.ResetTokens+res.AuditEvents > 0 {
		w.logger.InfoContext(ctx, "swept expired rows",
			"refresh_tokens", res.RefreshTokens,
			"reset_tokens", res.ResetTokens,
			"audit_events", res.AuditEvents)
	}
	return res, errors.Join(errs...)
}

// Start begins periodic sweeping.
func (w *Sweeper) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Sweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
