// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a security-relevant event.
type EventType string

// Security events.
const (
	EventRegistered             EventType = "registered"
	EventLoginSucceeded         EventType = "login_succeeded"
	EventLoginFailed            EventType = "login_failed"
	EventAccountLocked          EventType = "account_locked"
	EventRefreshRotated         EventType = "refresh_rotated"
	EventRefreshReuseDetected   EventType = "refresh_reuse_detected"
	EventLogout                 EventType = "logout"
	EventPasswordChanged        EventType = "password_changed"
	EventPasswordResetRequested EventType = "password_reset_requested"
	EventPasswordReset          EventType = "password_reset"
	EventSessionsRevoked        EventType = "sessions_revoked"
)

// SecurityEvent is one audit trail entry. Identifier holds a digest of the
// identifier presented by an unknown caller, never the raw value.
type SecurityEvent struct {
	ID         ulid.ULID
	Type       EventType
	UserID     *ulid.ULID
	Identifier string
	Detail     map[string]any
	CreatedAt  time.Time
}

// AuditRecorder stores security events.
type AuditRecorder interface {
	Record(ctx context.Context, ev SecurityEvent) error
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, SecurityEvent) error { return nil }

// IdentifierDigest returns the SHA-256 hex digest of a normalized identifier.
func IdentifierDigest(identifier string) string {
	h := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(h[:])
}

// AuditPruner deletes security events older than a cutoff.
type AuditPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
