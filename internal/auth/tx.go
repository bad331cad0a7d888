// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import "context"

// Transactor runs fn as one atomic unit of work. Repositories called with the
// context passed to fn participate in the same transaction. A call made with
// a context that already carries a transaction joins it.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
