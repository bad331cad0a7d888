// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnia/turnia/internal/token"
)

// DefaultResetTokenTTL is how long a reset token stays redeemable.
const DefaultResetTokenTTL = time.Hour

// ResetToken is a single-use password reset token.
type ResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsExpired reports whether the token expired at now.
func (r *ResetToken) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsUsed reports whether the token was consumed.
func (r *ResetToken) IsUsed() bool {
	return r.UsedAt != nil
}

// ResetTokenRepository persists reset tokens.
type ResetTokenRepository interface {
	// Upsert stores t as the user's only unused token, replacing any previous
	// unused token of the same user atomically.
	Upsert(ctx context.Context, t *ResetToken) error

	// GetByHash returns the token with the given hash or ErrNotFound.
	GetByHash(ctx context.Context, hash string) (*ResetToken, error)

	// MarkUsed sets used_at only if the token is unused and unexpired at now.
	// Returns ErrTokenAlreadyUsed when no row qualified.
	MarkUsed(ctx context.Context, id ulid.ULID, now time.Time) error

	// DeleteExpired removes tokens that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ResetLedger issues and consumes password reset tokens.
type ResetLedger struct {
	repo  ResetTokenRepository
	tx    Transactor
	ttl   time.Duration
	clock func() time.Time
}

// NewResetLedger creates a ResetLedger. ttl <= 0 uses DefaultResetTokenTTL.
func NewResetLedger(repo ResetTokenRepository, tx Transactor, ttl time.Duration) (*ResetLedger, error) {
	if repo == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &ResetLedger{repo: repo, tx: tx, ttl: ttl, clock: time.Now}, nil
}

// Issue creates a reset token for the user, invalidating any previous unused
// one, and returns the raw value.
func (l *ResetLedger) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	raw, hash, err := token.NewResetSecret()
	if err != nil {
		return "", err
	}
	now := l.clock().UTC()
	rec := &ResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.repo.Upsert(ctx, rec); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return raw, nil
}

// Consume redeems raw and returns the owning user. It succeeds at most once per
// token, even under concurrent redemption.
func (l *ResetLedger) Consume(ctx context.Context, raw string) (ulid.ULID, error) {
	hash := token.HashReset(raw)
	var userID ulid.ULID

	err := l.tx.InTransaction(ctx, func(ctx context.Context) error {
		rec, err := l.repo.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code("RESET_REJECTED").With("reason", ErrTokenNotFound.Error()).Wrap(ErrTokenNotFound)
			}
			return oops.Code("RESET_LOOKUP_FAILED").Wrap(err)
		}
		if !token.EqualHash(rec.TokenHash, hash) {
			return oops.Code("RESET_REJECTED").With("reason", ErrTokenNotFound.Error()).Wrap(ErrTokenNotFound)
		}

		now := l.clock().UTC()
		switch {
		case rec.IsUsed():
			return rejectReset(ErrTokenAlreadyUsed, rec)
		case rec.IsExpired(now):
			return rejectReset(ErrTokenExpired, rec)
		}

		if err := l.repo.MarkUsed(ctx, rec.ID, now); err != nil {
			if errors.Is(err, ErrTokenAlreadyUsed) {
				return rejectReset(ErrTokenAlreadyUsed, rec)
			}
			return oops.Code("RESET_CONSUME_FAILED").With("token_id", rec.ID.String()).Wrap(err)
		}
		userID = rec.UserID
		return nil
	})
	if err != nil {
		return ulid.ULID{}, err
	}
	return userID, nil
}

func rejectReset(reason error, rec *ResetToken) error {
	return oops.Code("RESET_REJECTED").
		With("reason", reason.Error()).
		With("token_id", rec.ID.String()).
		With("user_id", rec.UserID.String()).
		Wrap(reason)
}

// DeleteExpired removes tokens that expired before the cutoff.
func (l *ResetLedger) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := l.repo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, oops.Code("RESET_CLEANUP_FAILED").Wrap(err)
	}
	return n, nil
}
