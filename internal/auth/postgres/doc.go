// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package postgres implements the auth repositories on PostgreSQL. Every
// method runs on the transaction carried by its context when there is one,
// so the auth package decides transaction boundaries.
package postgres
