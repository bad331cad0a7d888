// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnia/turnia/internal/token"
	"github.com/turnia/turnia/pkg/errutil"
)

// ChangePassword replaces the password of an authenticated user after checking
// the current one, then revokes every refresh token of the user.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, in ChangePasswordInput) (err error) {
	ctx, end := s.begin(ctx, "change_password")
	defer func() { end(err) }()

	if err := in.Validate(); err != nil {
		s.metrics.password("change", "invalid")
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.password("change", "invalid")
			return invalidCredentials()
		}
		return s.fail(ctx, "change_password", err)
	}

	valid, err := s.hasher.Verify(in.CurrentPassword, user.PasswordHash)
	if err != nil {
		return s.fail(ctx, "change_password",
			oops.Code("AUTH_STORED_HASH_INVALID").With("user_id", userID.String()).Wrap(err))
	}
	if !valid {
		s.metrics.password("change", "invalid")
		s.record(ctx, EventLoginFailed, &userID, "", map[string]any{"reason": "change_password"})
		return invalidCredentials()
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return s.fail(ctx, "change_password", err)
	}

	var revoked int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = s.replacePassword(ctx, userID, hash, ReasonPasswordChange)
		return err
	})
	if err != nil {
		s.metrics.password("change", "error")
		return s.fail(ctx, "change_password", err)
	}

	s.metrics.password("change", "success")
	s.record(ctx, EventPasswordChanged, &userID, "", map[string]any{"revoked": revoked})
	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String(), "revoked_sessions", revoked)
	return nil
}

// ForgotPassword issues a reset token for a registered email and hands it to
// the notifier in the background. Registered and unknown emails return the
// same acknowledgment after at least ForgotPasswordFloor.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, end := s.begin(ctx, "forgot_password")
	defer func() { end(err) }()

	start := time.Now()
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	defer s.pad(ctx, start)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.password("forgot", "error")
			return s.fail(ctx, "forgot_password", err)
		}
		// Same secret generation as the known path; the value is discarded.
		if _, _, err := token.NewResetSecret(); err != nil {
			errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "failed to generate reset secret", err)
		}
		s.metrics.password("forgot", "unknown")
		s.record(ctx, EventPasswordResetRequested, nil, IdentifierDigest(email), nil)
		return nil
	}

	var raw string
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.reset.Issue(ctx, user.ID)
		return err
	})
	if err != nil {
		// The caller still gets the acknowledgment; reporting the failure
		// would reveal that the email is registered.
		s.metrics.password("forgot", "error")
		errutil.LogErrorContext(ctx, s.logger, slog.LevelError, "failed to issue reset token", err,
			"user_id", user.ID.String())
		return nil
	}

	s.metrics.password("forgot", "issued")
	s.record(ctx, EventPasswordResetRequested, &user.ID, "", nil)
	s.notify(ctx, user, raw)
	return nil
}

// notify delivers the reset token on a context detached from the request.
func (s *Service) notify(ctx context.Context, user *User, raw string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.SendPasswordReset(nctx, user.Email, raw); err != nil {
			s.metrics.notification("failure")
			errutil.LogErrorContext(nctx, s.logger, slog.LevelWarn, "password reset notification failed", err,
				"user_id", user.ID.String())
			return
		}
		s.metrics.notification("success")
	}()
}

// pad sleeps until ForgotPasswordFloor has elapsed since start.
func (s *Service) pad(ctx context.Context, start time.Time) {
	remaining := s.opts.ForgotPasswordFloor - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// ResetPassword redeems a reset token and sets a new password. Token
// consumption, the hash update and session revocation commit together.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	ctx, end := s.begin(ctx, "reset_password")
	defer func() { end(err) }()

	if err := in.Validate(); err != nil {
		s.metrics.password("reset", "invalid")
		return err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return s.fail(ctx, "reset_password", err)
	}

	var userID ulid.ULID
	var revoked int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		userID, err = s.reset.Consume(ctx, in.Token)
		if err != nil {
			return err
		}
		revoked, err = s.replacePassword(ctx, userID, hash, ReasonPasswordReset)
		return err
	})
	if err != nil {
		if isResetRejection(err) {
			s.metrics.password("reset", "invalid")
			return oops.Code("AUTH_RESET_TOKEN_INVALID").
				With("reason", errutil.Code(err)).
				Public("invalid or expired reset token").
				Wrap(ErrAuthFailure)
		}
		s.metrics.password("reset", "error")
		return s.fail(ctx, "reset_password", err)
	}

	s.metrics.password("reset", "success")
	s.record(ctx, EventPasswordReset, &userID, "", map[string]any{"revoked": revoked})
	s.logger.InfoContext(ctx, "password reset", "user_id", userID.String(), "revoked_sessions", revoked)
	return nil
}

// replacePassword must run inside a transaction.
func (s *Service) replacePassword(ctx context.Context, userID ulid.ULID, hash string, reason RevokeReason) (int64, error) {
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return 0, err
	}
	n, err := s.refresh.RevokeAll(ctx, userID, reason)
	if err != nil {
		return 0, err
	}
	if err := s.users.ClearFailedAttempts(ctx, userID); err != nil {
		return 0, err
	}
	return n, nil
}

func isResetRejection(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenAlreadyUsed) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrNotFound)
}
