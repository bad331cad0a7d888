// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the coarse account type. Authorization decisions on roles happen
// outside this package.
type Role string

// Known roles.
const (
	RoleClient        Role = "client"
	RoleBusinessOwner Role = "business_owner"
	RoleEmployee      Role = "employee"
	RoleAdmin         Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleBusinessOwner, RoleEmployee, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is a registered account.
type User struct {
	ID             ulid.ULID
	Name           string
	LastName       string
	Username       string
	Email          string
	Phone          *string
	BusinessCode   *string
	PasswordHash   string
	Role           Role
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewUser builds a User from validated registration input and a password hash.
func NewUser(in RegisterInput, passwordHash string, now time.Time) (*User, error) {
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	role := in.Role
	if role == "" {
		role = RoleClient
	}
	if !role.Valid() {
		return nil, validationError("AUTH_INVALID_ROLE", "unknown role")
	}
	return &User{
		ID:           ulid.Make(),
		Name:         in.Name,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		BusinessCode: in.BusinessCode,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsLocked reports whether the account is locked at now.
func (u *User) IsLocked(now time.Time) bool {
	return IsLockedOut(u.LockedUntil, now)
}

// Sanitized returns a copy without the password hash.
func (u *User) Sanitized() *User {
	cp := *u
	cp.PasswordHash = ""
	return &cp
}

// UserRepository persists users. Uniqueness of username and email is enforced
// by the store: Create fails with ErrDuplicateUsername or ErrDuplicateEmail.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, user *User) error

	// GetByID returns the user or ErrNotFound.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsernameOrEmail matches identifier against the username exactly or
	// against the canonical email.
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*User, error)

	// GetByEmail returns the user with the canonical email or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePasswordHash replaces the hash; ErrNotFound when no row matched.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error

	// IncrementFailedAttempts atomically bumps the failure counter and returns
	// the new value.
	IncrementFailedAttempts(ctx context.Context, id ulid.ULID) (int, error)

	// LockUntil sets the lockout deadline.
	LockUntil(ctx context.Context, id ulid.ULID, until time.Time) error

	// ClearFailedAttempts resets the counter and any lockout.
	ClearFailedAttempts(ctx context.Context, id ulid.ULID) error
}
