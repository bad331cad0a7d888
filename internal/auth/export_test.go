// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import "time"

// SetClock overrides the service clock for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SetClock overrides the ledger clock for tests.
func (l *RefreshLedger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// SetClock overrides the ledger clock for tests.
func (l *ResetLedger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// SetClock overrides the sweeper clock for tests.
func (w *Sweeper) SetClock(clock func() time.Time) {
	w.clock = clock
}
