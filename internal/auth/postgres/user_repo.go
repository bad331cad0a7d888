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

// Constraint names from the users migration.
const (
	constraintUsername = "users_username_key"
	constraintEmail    = "users_email_key"
)

const userColumns = `id, name, last_name, username, email, phone, business_code,
	password_hash, role, failed_attempts, locked_until, created_at, updated_at`

// UserRepository implements auth.UserRepository.
type UserRepository struct {
	db store.Querier
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db store.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user. Unique violations map to ErrDuplicateUsername or
// ErrDuplicateEmail by constraint name.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := store.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		user.ID.String(),
		user.Name,
		user.LastName,
		user.Username,
		user.Email,
		user.Phone,
		user.BusinessCode,
		user.PasswordHash,
		string(user.Role),
		user.FailedAttempts,
		user.LockedUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	if constraint, ok := store.UniqueViolation(err); ok {
		switch constraint {
		case constraintUsername:
			return oops.Code("USER_DUPLICATE").With("field", "username").Wrap(auth.ErrDuplicateUsername)
		case constraintEmail:
			return oops.Code("USER_DUPLICATE").With("field", "email").Wrap(auth.ErrDuplicateEmail)
		}
	}
	return oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
}

// GetByID returns the user with id.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return r.scanOne(row, "get user by id", "id", id.String())
}

// GetByUsernameOrEmail prefers a username match when both could apply.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*auth.User, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE username = $1 OR email = $1
		ORDER BY (username = $1) DESC
		LIMIT 1
	`, identifier)
	return r.scanOne(row, "get user by identifier")
}

// GetByEmail matches the canonical email exactly.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return r.scanOne(row, "get user by email")
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id.String(), hash)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "update password hash").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// IncrementFailedAttempts bumps the counter in a single statement so
// concurrent failures are all counted.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var n int
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		UPDATE users SET failed_attempts = failed_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts
	`, id.String()).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_UPDATE_FAILED").With("operation", "increment failed attempts").With("id", id.String()).Wrap(err)
	}
	return n, nil
}

// LockUntil sets the lockout deadline.
func (r *UserRepository) LockUntil(ctx context.Context, id ulid.ULID, until time.Time) error {
	return r.exec(ctx, "lock user", id,
		`UPDATE users SET locked_until = $2, updated_at = now() WHERE id = $1`, until)
}

// ClearFailedAttempts resets the counter and lifts any lockout.
func (r *UserRepository) ClearFailedAttempts(ctx context.Context, id ulid.ULID) error {
	return r.exec(ctx, "clear failed attempts", id,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1`)
}

func (r *UserRepository) exec(ctx context.Context, op string, id ulid.ULID, sql string, args ...any) error {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", op).With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanOne scans a single user. Only IDs go into error context, never emails.
func (r *UserRepository) scanOne(row pgx.Row, op string, ctxKV ...any) (*auth.User, error) {
	var (
		u    auth.User
		id   string
		role string
	)
	err := row.Scan(
		&id,
		&u.Name,
		&u.LastName,
		&u.Username,
		&u.Email,
		&u.Phone,
		&u.BusinessCode,
		&u.PasswordHash,
		&role,
		&u.FailedAttempts,
		&u.LockedUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With(ctxKV...).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", op).With(ctxKV...).Wrap(err)
	}
	if u.ID, err = parseULID(id); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
