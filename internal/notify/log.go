// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package notify delivers password reset notifications.
package notify

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/samber/oops"
)

// LogNotifier records reset deliveries in the log. It stands in for a mail
// transport: the raw token is never written, only the masked recipient and
// the token length.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset logs that a reset token would be delivered to email.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, rawToken string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_CANCELLED").Wrap(err)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return oops.Code("NOTIFY_BAD_RECIPIENT").Wrap(err)
	}
	if rawToken == "" {
		return oops.Code("NOTIFY_EMPTY_TOKEN").Errorf("reset token is empty")
	}
	n.logger.InfoContext(ctx, "password reset notification queued",
		"recipient", MaskEmail(email),
		"token_length", len(rawToken))
	return nil
}

// MaskEmail keeps the first character of the local part and the domain:
// alice@example.com becomes a***@example.com.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
