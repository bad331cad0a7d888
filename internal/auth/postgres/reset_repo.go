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

// ResetTokenRepository implements auth.ResetTokenRepository.
type ResetTokenRepository struct {
	db store.Querier
}

// NewResetTokenRepository creates a ResetTokenRepository.
func NewResetTokenRepository(db store.Querier) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Upsert replaces the user's unused token in one statement. The conflict
// target is the partial unique index reset_tokens_live_user_idx.
func (r *ResetTokenRepository) Upsert(ctx context.Context, t *auth.ResetToken) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO reset_tokens (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) WHERE used_at IS NULL
		DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`, t.ID.String(), t.UserID.String(), t.TokenHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return oops.Code("RESET_UPSERT_FAILED").
			With("operation", "upsert reset token").
			With("user_id", t.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByHash returns the token with hash.
func (r *ResetTokenRepository) GetByHash(ctx context.Context, hash string) (*auth.ResetToken, error) {
	var (
		t          auth.ResetToken
		id, userID string
	)
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, used_at
		FROM reset_tokens WHERE token_hash = $1
	`, hash).Scan(&id, &userID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_QUERY_FAILED").With("operation", "get reset token").Wrap(err)
	}
	if t.ID, err = parseULID(id); err != nil {
		return nil, err
	}
	if t.UserID, err = parseULID(userID); err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkUsed consumes the token if it is still unused and unexpired at now.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id ulid.ULID, now time.Time) error {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `
		UPDATE reset_tokens SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND expires_at > $2
	`, id.String(), now)
	if err != nil {
		return oops.Code("RESET_UPDATE_FAILED").With("operation", "mark used").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("RESET_ALREADY_USED").With("id", id.String()).Wrap(auth.ErrTokenAlreadyUsed)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_FAILED").With("operation", "delete expired").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
