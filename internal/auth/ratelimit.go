// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"time"
)

// Lockout defaults: seven consecutive failures lock the account for 15 minutes.
const (
	DefaultLockoutThreshold = 7
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutPolicy decides when repeated login failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the 7 failures / 15 minutes policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// Enabled reports whether lockout applies at all.
func (p LockoutPolicy) Enabled() bool {
	return p.Threshold > 0 && p.Duration > 0
}

// LockoutAfter returns the lockout deadline for the given failure count, or
// nil when the count is under the threshold.
func (p LockoutPolicy) LockoutAfter(failures int, now time.Time) *time.Time {
	if !p.Enabled() || failures < p.Threshold {
		return nil
	}
	until := now.Add(p.Duration)
	return &until
}

// IsLockedOut returns true if lockedUntil is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}
