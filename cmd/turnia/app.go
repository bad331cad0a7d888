// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turnia/turnia/internal/auth"
	"github.com/turnia/turnia/internal/auth/postgres"
	"github.com/turnia/turnia/internal/config"
	"github.com/turnia/turnia/internal/notify"
	"github.com/turnia/turnia/internal/store"
	"github.com/turnia/turnia/internal/token"
)

// app is the assembled auth core over one database.
type app struct {
	service *auth.Service
	sweeper *auth.Sweeper
	audit   *postgres.AuditRepository
}

// buildApp wires repositories, ledgers and the session service. reg may be
// nil, in which case no metrics are registered.
func buildApp(cfg *config.Config, db Database, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	iso, err := store.ParseIsolation(cfg.Database.Isolation)
	if err != nil {
		return nil, err
	}
	tx := store.NewRetryingTransactor(store.NewTransactor(db, iso), cfg.RetryPolicy(), reg, logger)

	codec, err := token.NewCodec(cfg.TokenConfig())
	if err != nil {
		return nil, err
	}

	users := postgres.NewUserRepository(db)
	audit := postgres.NewAuditRepository(db)

	refresh, err := auth.NewRefreshLedger(postgres.NewRefreshTokenRepository(db), codec, tx, cfg.Auth.RefreshTTL)
	if err != nil {
		return nil, err
	}
	reset, err := auth.NewResetLedger(postgres.NewResetTokenRepository(db), tx, cfg.Auth.ResetTTL)
	if err != nil {
		return nil, err
	}
	policy, err := auth.NewRegistrationPolicy(cfg.Auth.Registration.AllowedEmailDomains)
	if err != nil {
		return nil, err
	}

	var metrics *auth.Metrics
	if reg != nil {
		metrics = auth.NewMetrics(reg)
	}

	svc, err := auth.NewService(auth.ServiceDeps{
		Users:    users,
		Refresh:  refresh,
		Reset:    reset,
		Hasher:   auth.NewArgon2idHasher(cfg.Argon2Params()),
		Codec:    codec,
		Tx:       tx,
		Notifier: notify.NewLogNotifier(logger),
		Audit:    audit,
		Metrics:  metrics,
		Logger:   logger,
	}, auth.ServiceOptions{
		Lockout:             cfg.LockoutPolicy(),
		Registration:        policy,
		StrictSessions:      cfg.Auth.StrictSessions,
		ForgotPasswordFloor: cfg.Auth.ForgotPasswordFloor,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		service: svc,
		sweeper: auth.NewSweeper(cfg.SweeperConfig(), refresh, reset, audit, logger),
		audit:   audit,
	}, nil
}
