// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnia/turnia/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, SchemaID, doc["$id"])

	props := doc["properties"].(map[string]any)
	for _, key := range []string{"env", "log", "database", "auth", "sweeper", "metrics"} {
		assert.Contains(t, props, key)
	}
	authProps := props["auth"].(map[string]any)["properties"].(map[string]any)
	ttl := authProps["access_ttl"].(map[string]any)
	assert.Equal(t, "string", ttl["type"], "durations are written as strings")
}

func TestValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "empty file", yaml: ""},
		{
			name: "full example",
			yaml: `
env: production
log: {level: info, format: text}
database:
  url: postgres://db/turnia
  max_conns: 20
  isolation: serializable
  retry: {max_attempts: 3, base_delay: 100ms, max_delay: 2s}
auth:
  access_ttl: 15m
  refresh_ttl: 168h
  argon2: {time: 1, memory_kib: 65536, threads: 4}
  registration:
    allowed_email_domains: ["*.example.com"]
sweeper: {interval: 1h, retention: 24h, audit_retention: 2160h}
metrics: {addr: "127.0.0.1:9100"}
`,
		},
		{name: "unknown key", yaml: "databse:\n  url: x\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad enum", yaml: "log:\n  format: xml\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad duration", yaml: "auth:\n  access_ttl: 15 minutes\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "short secret", yaml: "auth:\n  access_secret: tiny\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "not yaml", yaml: "log: [", wantErr: "CONFIG_YAML_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateYAML([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantErr)
		})
	}
}
