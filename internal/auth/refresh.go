// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnia/turnia/internal/token"
)

// RefreshState is the lifecycle state of a refresh token.
type RefreshState string

// Refresh token states. Only active is non-terminal.
const (
	RefreshActive  RefreshState = "active"
	RefreshRotated RefreshState = "rotated"
	RefreshRevoked RefreshState = "revoked"
	RefreshExpired RefreshState = "expired"
)

// RevokeReason records why a refresh token stopped being active.
type RevokeReason string

// Revoke reasons.
const (
	ReasonRotated        RevokeReason = "rotated"
	ReasonLogout         RevokeReason = "logout"
	ReasonPasswordChange RevokeReason = "password_change"
	ReasonPasswordReset  RevokeReason = "password_reset"
	ReasonReuseDetected  RevokeReason = "reuse_detected"
	ReasonAdmin          RevokeReason = "admin"
)

// RefreshToken is one issued refresh token. FamilyID is shared by every token
// rotated from the same login.
type RefreshToken struct {
	ID            ulid.ULID
	UserID        ulid.ULID
	FamilyID      ulid.ULID
	TokenHash     string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason *RevokeReason
	ReplacedByID  *ulid.ULID
}

// State derives the token's state at now. Rotation and revocation win over
// expiry so a reused token is reported as such even after it expired.
func (t *RefreshToken) State(now time.Time) RefreshState {
	switch {
	case t.ReplacedByID != nil:
		return RefreshRotated
	case t.RevokedAt != nil:
		return RefreshRevoked
	case !now.Before(t.ExpiresAt):
		return RefreshExpired
	default:
		return RefreshActive
	}
}

// RefreshTokenRepository persists refresh tokens.
type RefreshTokenRepository interface {
	// Create inserts a new active token.
	Create(ctx context.Context, t *RefreshToken) error

	// GetByHash returns the token with the given hash or ErrNotFound.
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// MarkRotated revokes id and links it to successorID, only if id is still
	// active at now. Returns ErrTokenAlreadyUsed when no row qualified.
	MarkRotated(ctx context.Context, id, successorID ulid.ULID, now time.Time) error

	// RevokeFamily revokes every active token of the lineage.
	RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time, reason RevokeReason) (int64, error)

	// RevokeAllForUser revokes every active token of the user.
	RevokeAllForUser(ctx context.Context, userID ulid.ULID, now time.Time, reason RevokeReason) (int64, error)

	// CountActive counts the user's active tokens at now.
	CountActive(ctx context.Context, userID ulid.ULID, now time.Time) (int, error)

	// FamilyActive reports whether the lineage still has an active token.
	FamilyActive(ctx context.Context, familyID ulid.ULID, now time.Time) (bool, error)

	// DeleteExpired removes tokens that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// RotationError reports why a presented refresh token could not be rotated.
// Token is nil when the token was not found.
type RotationError struct {
	Reason error
	Token  *RefreshToken
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("refresh rotation rejected: %v", e.Reason)
}

// Unwrap returns the ledger outcome (ErrTokenNotFound, ErrTokenAlreadyUsed,
// ErrTokenRevoked or ErrTokenExpired).
func (e *RotationError) Unwrap() error { return e.Reason }

// IsReuse reports whether the rejection signals a replayed token.
func (e *RotationError) IsReuse() bool {
	return errors.Is(e.Reason, ErrTokenAlreadyUsed) || errors.Is(e.Reason, ErrTokenRevoked)
}

// Rotation is the result of a successful rotation.
type Rotation struct {
	Previous *RefreshToken
	Next     *RefreshToken
	RawToken string
}

// RefreshLedger issues, rotates and revokes refresh tokens.
type RefreshLedger struct {
	repo  RefreshTokenRepository
	codec *token.Codec
	tx    Transactor
	ttl   time.Duration
	clock func() time.Time
}

// NewRefreshLedger creates a RefreshLedger. ttl <= 0 uses token.DefaultRefreshTTL.
func NewRefreshLedger(repo RefreshTokenRepository, codec *token.Codec, tx Transactor, ttl time.Duration) (*RefreshLedger, error) {
	if repo == nil {
		return nil, oops.Errorf("refresh token repository is required")
	}
	if codec == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if ttl <= 0 {
		ttl = token.DefaultRefreshTTL
	}
	return &RefreshLedger{repo: repo, codec: codec, tx: tx, ttl: ttl, clock: time.Now}, nil
}

// TTL returns the refresh token lifetime.
func (l *RefreshLedger) TTL() time.Duration {
	return l.ttl
}

// Issue creates a new active token in the lineage and returns its raw value.
// The raw value is not stored anywhere.
func (l *RefreshLedger) Issue(ctx context.Context, userID, familyID ulid.ULID) (string, *RefreshToken, error) {
	raw, hash, err := l.codec.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	now := l.clock().UTC()
	rec := &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		return "", nil, oops.Code("REFRESH_ISSUE_FAILED").
			With("user_id", userID.String()).
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return raw, rec, nil
}

// Rotate redeems raw exactly once and issues its successor in one unit of
// work. A rejected token yields a *RotationError; a concurrent rotation of the
// same token loses with ErrTokenAlreadyUsed.
func (l *RefreshLedger) Rotate(ctx context.Context, raw string) (*Rotation, error) {
	hash := l.codec.HashRefresh(raw)
	var rot *Rotation

	err := l.tx.InTransaction(ctx, func(ctx context.Context) error {
		rot = nil
		current, err := l.repo.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return reject(ErrTokenNotFound, nil)
			}
			return oops.Code("REFRESH_LOOKUP_FAILED").Wrap(err)
		}
		if !token.EqualHash(current.TokenHash, hash) {
			return reject(ErrTokenNotFound, nil)
		}

		now := l.clock().UTC()
		switch current.State(now) {
		case RefreshRotated:
			return reject(ErrTokenAlreadyUsed, current)
		case RefreshRevoked:
			return reject(ErrTokenRevoked, current)
		case RefreshExpired:
			return reject(ErrTokenExpired, current)
		}

		nextRaw, next, err := l.Issue(ctx, current.UserID, current.FamilyID)
		if err != nil {
			return err
		}
		if err := l.repo.MarkRotated(ctx, current.ID, next.ID, now); err != nil {
			if errors.Is(err, ErrTokenAlreadyUsed) {
				return reject(ErrTokenAlreadyUsed, current)
			}
			return oops.Code("REFRESH_ROTATE_FAILED").With("token_id", current.ID.String()).Wrap(err)
		}
		rot = &Rotation{Previous: current, Next: next, RawToken: nextRaw}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rot, nil
}

func reject(reason error, rec *RefreshToken) error {
	b := oops.Code("REFRESH_REJECTED").With("reason", reason.Error())
	if rec != nil {
		b = b.With("token_id", rec.ID.String()).
			With("family_id", rec.FamilyID.String()).
			With("user_id", rec.UserID.String())
	}
	return b.Wrap(&RotationError{Reason: reason, Token: rec})
}

// RevokeLineage revokes every active token of the lineage.
func (l *RefreshLedger) RevokeLineage(ctx context.Context, familyID ulid.ULID, reason RevokeReason) (int64, error) {
	n, err := l.repo.RevokeFamily(ctx, familyID, l.clock().UTC(), reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("family_id", familyID.String()).
			With("reason", string(reason)).
			Wrap(err)
	}
	return n, nil
}

// RevokeAll revokes every active token of the user.
func (l *RefreshLedger) RevokeAll(ctx context.Context, userID ulid.ULID, reason RevokeReason) (int64, error) {
	n, err := l.repo.RevokeAllForUser(ctx, userID, l.clock().UTC(), reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("user_id", userID.String()).
			With("reason", string(reason)).
			Wrap(err)
	}
	return n, nil
}

// LineageActive reports whether the lineage still has an active token.
func (l *RefreshLedger) LineageActive(ctx context.Context, familyID ulid.ULID) (bool, error) {
	ok, err := l.repo.FamilyActive(ctx, familyID, l.clock().UTC())
	if err != nil {
		return false, oops.Code("REFRESH_LOOKUP_FAILED").With("family_id", familyID.String()).Wrap(err)
	}
	return ok, nil
}

// Lookup returns the token matching raw, whatever its state.
func (l *RefreshLedger) Lookup(ctx context.Context, raw string) (*RefreshToken, error) {
	hash := l.codec.HashRefresh(raw)
	rec, err := l.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("REFRESH_REJECTED").Wrap(ErrTokenNotFound)
		}
		return nil, oops.Code("REFRESH_LOOKUP_FAILED").Wrap(err)
	}
	if !token.EqualHash(rec.TokenHash, hash) {
		return nil, oops.Code("REFRESH_REJECTED").Wrap(ErrTokenNotFound)
	}
	return rec, nil
}

// ActiveCount counts the user's active tokens.
func (l *RefreshLedger) ActiveCount(ctx context.Context, userID ulid.ULID) (int, error) {
	n, err := l.repo.CountActive(ctx, userID, l.clock().UTC())
	if err != nil {
		return 0, oops.Code("REFRESH_LOOKUP_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return n, nil
}

// DeleteExpired removes tokens that expired before the cutoff.
func (l *RefreshLedger) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := l.repo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, oops.Code("REFRESH_CLEANUP_FAILED").Wrap(err)
	}
	return n, nil
}
