// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedNotifier() (*LogNotifier, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewLogNotifier(logger), &buf
}

func TestLogNotifier_NeverLogsToken(t *testing.T) {
	n, buf := newBufferedNotifier()
	const raw = "9f1c2a7b0d4e4d7f8a6b5c3e2f1a0b9c"

	require.NoError(t, n.SendPasswordReset(context.Background(), "alice@example.com", raw))

	out := buf.String()
	assert.NotContains(t, out, raw)
	assert.NotContains(t, out, "alice@example.com")
	assert.Contains(t, out, `"recipient":"a***@example.com"`)
	assert.Contains(t, out, `"token_length":32`)
}

func TestLogNotifier_Rejects(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		email    string
		token    string
		wantCode string
	}{
		{"cancelled context", cancelled, "a@example.com", "tok", "NOTIFY_CANCELLED"},
		{"bad recipient", context.Background(), "not-an-email", "tok", "NOTIFY_BAD_RECIPIENT"},
		{"empty token", context.Background(), "a@example.com", "", "NOTIFY_EMPTY_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, buf := newBufferedNotifier()
			err := n.SendPasswordReset(tt.ctx, tt.email, tt.token)
			require.Error(t, err)
			oopsErr, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, oopsErr.Code())
			assert.Empty(t, buf.String())
		})
	}
}

func TestNewLogNotifier_NilLogger(t *testing.T) {
	assert.NotNil(t, NewLogNotifier(nil).logger)
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"alice@example.com": "a***@example.com",
		"b@x.io":            "b***@x.io",
		"@example.com":      "***",
		"no-at-sign":        "***",
	}
	for in, want := range tests {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}
