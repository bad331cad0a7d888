// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// Querier is implemented by *pgxpool.Pool and pgx.Tx, so repository code runs
// the same inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a Querier that can begin transactions.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type txKey struct{}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db Querier) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// ParseIsolation maps a config value to a pgx isolation level. Empty means
// read committed.
func ParseIsolation(level string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(level), " ", "_")) {
	case "", "read_committed":
		return pgx.ReadCommitted, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", oops.Code("DB_ISOLATION_INVALID").With("level", level).
			Errorf("isolation must be read_committed, repeatable_read or serializable")
	}
}

// Transactor runs units of work in a pgx transaction stored in the context.
// A context that already carries a transaction joins it.
type Transactor struct {
	pool Pool
	opts pgx.TxOptions
}

// NewTransactor creates a Transactor that begins transactions at iso.
func NewTransactor(pool Pool, iso pgx.TxIsoLevel) *Transactor {
	return &Transactor{pool: pool, opts: pgx.TxOptions{IsoLevel: iso}}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled back.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.pool.BeginTx(ctx, t.opts)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("isolation", string(t.opts.IsoLevel)).Wrap(err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
