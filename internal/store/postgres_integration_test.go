// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

//go:build integration

package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/turnia/turnia/internal/retry"
	"github.com/turnia/turnia/internal/store"
)

var _ = Describe("Transactions", func() {
	ctx := context.Background()

	BeforeEach(func() {
		_, err := db.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS tx_counter (id INT PRIMARY KEY, n INT NOT NULL)`)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.Pool.Exec(ctx, `INSERT INTO tx_counter (id, n) VALUES (1, 0)
			ON CONFLICT (id) DO UPDATE SET n = 0`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("passes the health check", func() {
		Expect(store.HealthCheck(ctx, db.Pool)).To(Succeed())
		Expect(store.Stats(db.Pool).MaxConns).To(BeNumerically("==", 16))
	})

	It("rolls back when the unit of work fails", func() {
		tr := store.NewTransactor(db.Pool, pgx.ReadCommitted)
		err := tr.InTransaction(ctx, func(ctx context.Context) error {
			_, err := store.Conn(ctx, db.Pool).Exec(ctx, `UPDATE tx_counter SET n = 99 WHERE id = 1`)
			Expect(err).NotTo(HaveOccurred())
			return context.Canceled
		})
		Expect(err).To(MatchError(context.Canceled))

		var n int
		Expect(db.Pool.QueryRow(ctx, `SELECT n FROM tx_counter WHERE id = 1`).Scan(&n)).To(Succeed())
		Expect(n).To(Equal(0))
	})

	It("retries serialization failures until every increment lands", func() {
		policy := retry.Policy{MaxAttempts: 20, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond, JitterPercent: 50}
		tr := store.NewRetryingTransactor(store.NewTransactor(db.Pool, pgx.Serializable), policy, nil, nil)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- tr.InTransaction(ctx, func(ctx context.Context) error {
					q := store.Conn(ctx, db.Pool)
					var n int
					if err := q.QueryRow(ctx, `SELECT n FROM tx_counter WHERE id = 1`).Scan(&n); err != nil {
						return err
					}
					_, err := q.Exec(ctx, `UPDATE tx_counter SET n = $1 WHERE id = 1`, n+1)
					return err
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}

		var n int
		Expect(db.Pool.QueryRow(ctx, `SELECT n FROM tx_counter WHERE id = 1`).Scan(&n)).To(Succeed())
		Expect(n).To(Equal(workers))
	})
})
