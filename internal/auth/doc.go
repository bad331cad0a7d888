// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package auth implements credential and session lifecycle management.
//
// A login starts a lineage of refresh tokens. Each refresh rotates the
// presented token exactly once; presenting a rotated or revoked token again
// revokes the whole lineage. Password changes and resets revoke every
// lineage of the user. Access tokens are short-lived JWTs bound to a
// lineage through their session claim.
//
// Service methods return errors from a closed taxonomy; use KindOf to
// classify them and PublicMessage for the text shown to callers.
// Persistence lives behind the repository interfaces and Transactor, with a
// PostgreSQL implementation in the postgres subpackage.
package auth
