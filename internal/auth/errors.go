// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Storage-level outcomes reported by repositories.
var (
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")
)

// Ledger outcomes for refresh and reset tokens.
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenExpired     = errors.New("token expired")
)

// Kind classifies every error the Service returns.
type Kind string

// Error kinds.
const (
	KindValidation       Kind = "validation"
	KindAuth             Kind = "auth"
	KindConflict         Kind = "conflict"
	KindTransientStorage Kind = "transient_storage"
	KindPermanentStorage Kind = "permanent_storage"
)

// Sentinels for each Kind. Service errors wrap exactly one of them.
var (
	ErrValidation       = errors.New("validation failure")
	ErrAuthFailure      = errors.New("authentication failure")
	ErrConflict         = errors.New("conflict")
	ErrTransientStorage = errors.New("transient storage failure")
	ErrPermanentStorage = errors.New("permanent storage failure")
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindValidation, ErrValidation},
	{KindAuth, ErrAuthFailure},
	{KindConflict, ErrConflict},
	{KindTransientStorage, ErrTransientStorage},
	{KindPermanentStorage, ErrPermanentStorage},
}

// KindOf reports the kind of err. Errors outside the taxonomy are treated as
// permanent storage failures. KindOf(nil) returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindPermanentStorage
}

// Generic messages shown to callers. Auth and conflict messages never say
// which field or credential was wrong.
const (
	msgInvalidRequest     = "invalid request"
	msgInvalidCredentials = "invalid credentials"
	msgIdentifierInUse    = "identifier already in use"
	msgTryAgainLater      = "service temporarily unavailable, try again later"
)

// PublicMessage returns the message safe to show to the caller for err.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case "":
		return ""
	case KindValidation:
		return oops.GetPublic(err, msgInvalidRequest)
	case KindAuth:
		return oops.GetPublic(err, msgInvalidCredentials)
	case KindConflict:
		return msgIdentifierInUse
	default:
		return msgTryAgainLater
	}
}

func validationError(code, public string) error {
	return oops.Code(code).Public(public).Wrap(ErrValidation)
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Public(msgInvalidCredentials).Wrap(ErrAuthFailure)
}

func identifierInUse() error {
	return oops.Code("AUTH_IDENTIFIER_IN_USE").Public(msgIdentifierInUse).Wrap(ErrConflict)
}
