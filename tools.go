// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

//go:build tools

// Package main pins tool dependencies to go.mod.
package main

import (
	// ginkgo CLI for test/integration suites
	_ "github.com/onsi/ginkgo/v2/ginkgo"
)
