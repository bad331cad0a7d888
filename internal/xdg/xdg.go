// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package xdg resolves XDG Base Directory paths for turnia.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "turnia"

// ConfigDir returns the turnia config directory.
// XDG_CONFIG_HOME wins; otherwise ~/.config is used.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
