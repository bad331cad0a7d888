// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Field constraints.
const (
	MinUsernameLength = 4
	MaxUsernameLength = 32
	MinNameLength     = 2
	MaxNameLength     = 100
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxEmailLength    = 254
)

// usernameRegex allows letters, digits, dot, underscore and hyphen. No '@', so
// a login identifier is never both a username and an email.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// RegisterInput is the registration request.
type RegisterInput struct {
	Name            string
	LastName        string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            Role
	Phone           *string
	BusinessCode    *string
}

// Normalize trims names and canonicalizes the email. Passwords are untouched.
func (in *RegisterInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = trimOptional(in.Phone)
	in.BusinessCode = trimOptional(in.BusinessCode)
}

// Validate checks a normalized RegisterInput.
func (in *RegisterInput) Validate() error {
	if err := validateName(in.Name, "AUTH_INVALID_NAME", "name"); err != nil {
		return err
	}
	if err := validateName(in.LastName, "AUTH_INVALID_LAST_NAME", "last name"); err != nil {
		return err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if in.Role != "" && !in.Role.Valid() {
		return validationError("AUTH_INVALID_ROLE", "unknown role")
	}
	return ValidateNewPassword(in.Password, in.ConfirmPassword)
}

// ChangePasswordInput is the authenticated password-change request.
type ChangePasswordInput struct {
	CurrentPassword    string
	NewPassword        string
	ConfirmNewPassword string
}

// Validate checks the request shape and the new password rules.
func (in *ChangePasswordInput) Validate() error {
	if in.CurrentPassword == "" {
		return validationError("AUTH_PASSWORD_REQUIRED", "current password is required")
	}
	return ValidateNewPassword(in.NewPassword, in.ConfirmNewPassword)
}

// ResetPasswordInput is the reset-token redemption request.
type ResetPasswordInput struct {
	Token              string
	NewPassword        string
	ConfirmNewPassword string
}

// Validate checks the request shape and the new password rules.
func (in *ResetPasswordInput) Validate() error {
	in.Token = strings.TrimSpace(in.Token)
	if in.Token == "" {
		return validationError("AUTH_TOKEN_REQUIRED", "token is required")
	}
	return ValidateNewPassword(in.NewPassword, in.ConfirmNewPassword)
}

// ValidateUsername enforces length, allowed characters and no whitespace.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return validationError("AUTH_INVALID_USERNAME", "username must be between 4 and 32 characters")
	}
	if !usernameRegex.MatchString(username) {
		return validationError("AUTH_INVALID_USERNAME", "username may contain only letters, digits, '.', '_' and '-'")
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail requires a bare address (no display name) of sane length.
func ValidateEmail(email string) error {
	if email == "" || len(email) > MaxEmailLength {
		return validationError("AUTH_INVALID_EMAIL", "invalid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return validationError("AUTH_INVALID_EMAIL", "invalid email address")
	}
	return nil
}

// ValidateNewPassword checks confirmation first, then strength: at least one
// upper-case letter, one lower-case letter, one digit and one symbol.
func ValidateNewPassword(password, confirm string) error {
	if password != confirm {
		return validationError("AUTH_PASSWORD_MISMATCH", "passwords do not match")
	}
	return ValidatePasswordStrength(password)
}

// ValidatePasswordStrength applies the password rules without confirmation.
func ValidatePasswordStrength(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return validationError("AUTH_PASSWORD_TOO_SHORT", "password must be at least 8 characters")
	}
	if n > MaxPasswordLength {
		return validationError("AUTH_PASSWORD_TOO_LONG", "password must be at most 128 characters")
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return validationError("AUTH_PASSWORD_WEAK",
			"password must contain an upper-case letter, a lower-case letter, a digit and a symbol")
	}
	return nil
}

// ParseUserID parses a user ID supplied by a caller.
func ParseUserID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, validationError("AUTH_INVALID_USER_ID", "invalid user id")
	}
	return id, nil
}

func validateName(v, code, field string) error {
	n := utf8.RuneCountInString(v)
	if n < MinNameLength || n > MaxNameLength {
		return validationError(code, field+" must be between 2 and 100 characters")
	}
	return nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
