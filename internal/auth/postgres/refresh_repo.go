// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnia/turnia/internal/auth"
	"github.com/turnia/turnia/internal/store"
)

const refreshColumns = `id, user_id, family_id, token_hash, issued_at, expires_at,
	revoked_at, revoked_reason, replaced_by_id`

// RefreshTokenRepository implements auth.RefreshTokenRepository.
type RefreshTokenRepository struct {
	db store.Querier
}

// NewRefreshTokenRepository creates a RefreshTokenRepository.
func NewRefreshTokenRepository(db store.Querier) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create inserts an active token.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *auth.RefreshToken) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID.String(), t.UserID.String(), t.FamilyID.String(), t.TokenHash, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("family_id", t.FamilyID.String()).
			Wrap(err)
	}
	return nil
}

// GetByHash returns the token with hash. FOR UPDATE serializes concurrent
// rotations of the same token when called inside a transaction.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	sql := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	if _, inTx := store.TxFromContext(ctx); inTx {
		sql += ` FOR UPDATE`
	}
	t, err := scanRefresh(store.Conn(ctx, r.db).QueryRow(ctx, sql, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_QUERY_FAILED").With("operation", "get refresh token").Wrap(err)
	}
	return t, nil
}

// MarkRotated succeeds only for a token still active at now.
func (r *RefreshTokenRepository) MarkRotated(ctx context.Context, id, successorID ulid.ULID, now time.Time) error {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $3, revoked_reason = $4, replaced_by_id = $2
		WHERE id = $1 AND revoked_at IS NULL AND replaced_by_id IS NULL AND expires_at > $3
	`, id.String(), successorID.String(), now, string(auth.ReasonRotated))
	if err != nil {
		return oops.Code("REFRESH_UPDATE_FAILED").With("operation", "mark rotated").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("REFRESH_ALREADY_USED").With("id", id.String()).Wrap(auth.ErrTokenAlreadyUsed)
	}
	return nil
}

// RevokeFamily revokes the lineage's active tokens.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time, reason auth.RevokeReason) (int64, error) {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3
		WHERE family_id = $1 AND revoked_at IS NULL
	`, familyID.String(), now, string(reason))
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke family").
			With("family_id", familyID.String()).
			With("reason", string(reason)).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// RevokeAllForUser revokes every active token of the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID, now time.Time, reason auth.RevokeReason) (int64, error) {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID.String(), now, string(reason))
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke user").
			With("user_id", userID.String()).
			With("reason", string(reason)).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// CountActive counts unrevoked, unexpired tokens.
func (r *RefreshTokenRepository) CountActive(ctx context.Context, userID ulid.ULID, now time.Time) (int, error) {
	var n int
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT count(*) FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`, userID.String(), now).Scan(&n)
	if err != nil {
		return 0, oops.Code("REFRESH_QUERY_FAILED").With("operation", "count active").With("user_id", userID.String()).Wrap(err)
	}
	return n, nil
}

// FamilyActive reports whether the lineage has an unrevoked, unexpired token.
func (r *RefreshTokenRepository) FamilyActive(ctx context.Context, familyID ulid.ULID, now time.Time) (bool, error) {
	var ok bool
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE family_id = $1 AND revoked_at IS NULL AND expires_at > $2
		)
	`, familyID.String(), now).Scan(&ok)
	if err != nil {
		return false, oops.Code("REFRESH_QUERY_FAILED").With("operation", "family active").With("family_id", familyID.String()).Wrap(err)
	}
	return ok, nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanRefresh(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		t                    auth.RefreshToken
		id, userID, familyID string
		reason, replacedBy   *string
	)
	if err := row.Scan(&id, &userID, &familyID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt,
		&t.RevokedAt, &reason, &replacedBy); err != nil {
		return nil, err
	}

	var err error
	if t.ID, err = parseULID(id); err != nil {
		return nil, err
	}
	if t.UserID, err = parseULID(userID); err != nil {
		return nil, err
	}
	if t.FamilyID, err = parseULID(familyID); err != nil {
		return nil, err
	}
	if t.ReplacedByID, err = parseOptionalULID(replacedBy); err != nil {
		return nil, err
	}
	if reason != nil {
		rr := auth.RevokeReason(*reason)
		t.RevokedReason = &rr
	}
	return &t, nil
}
