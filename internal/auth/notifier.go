// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import "context"

// ResetNotifier delivers password reset tokens to users. Delivery runs in the
// background; its failure never changes the outcome of ForgotPassword.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, rawToken string) error
}
