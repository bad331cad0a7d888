// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

//go:build integration

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/turnia/turnia/internal/auth"
)

var isolationLevels = []TableEntry{
	Entry("read committed", pgx.ReadCommitted),
	Entry("serializable", pgx.Serializable),
}

var _ = Describe("Registration", func() {
	DescribeTable("admits exactly one of many concurrent registrations of a username",
		func(iso pgx.TxIsoLevel) {
			h := newHarness(iso)
			errs := race(8, func(i int) error {
				_, err := h.svc.Register(context.Background(), auth.RegisterInput{
					Name:            "Race",
					LastName:        "Runner",
					Username:        "contested",
					Email:           fmt.Sprintf("runner%d@example.com", i),
					Password:        password,
					ConfirmPassword: password,
				})
				return err
			})

			Expect(successes(errs)).To(Equal(1))
			for _, err := range errs {
				if err != nil {
					Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue(), "unexpected error: %v", err)
				}
			}
		},
		isolationLevels,
	)

	It("does not reveal which identifier collided", func() {
		h := newHarness(pgx.ReadCommitted)
		h.register("taken")

		_, byUsername := h.svc.Register(context.Background(), auth.RegisterInput{
			Name: "Other", LastName: "User", Username: "taken", Email: "fresh@example.com",
			Password: password, ConfirmPassword: password,
		})
		_, byEmail := h.svc.Register(context.Background(), auth.RegisterInput{
			Name: "Other", LastName: "User", Username: "fresh", Email: "taken@example.com",
			Password: password, ConfirmPassword: password,
		})

		Expect(errors.Is(byUsername, auth.ErrConflict)).To(BeTrue())
		Expect(errors.Is(byEmail, auth.ErrConflict)).To(BeTrue())
		Expect(byUsername.Error()).To(Equal(byEmail.Error()))
	})
})

var _ = Describe("Refresh rotation", func() {
	DescribeTable("lets exactly one concurrent refresh win and treats the rest as reuse",
		func(iso pgx.TxIsoLevel) {
			h := newHarness(iso)
			user := h.register("rotator")
			pair := h.login("rotator")

			results := make([]*auth.TokenPair, 6)
			errs := race(6, func(i int) error {
				var err error
				results[i], err = h.svc.Refresh(context.Background(), pair.RefreshToken)
				return err
			})

			Expect(successes(errs)).To(Equal(1))
			for _, err := range errs {
				if err != nil {
					Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue(), "unexpected error: %v", err)
				}
			}

			// The losers presented a rotated token, which revokes the lineage,
			// including the winner's successor.
			Expect(h.activeTokens(user.ID)).To(BeZero())
			for _, next := range results {
				if next != nil {
					_, err := h.svc.Refresh(context.Background(), next.RefreshToken)
					Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue())
				}
			}
		},
		isolationLevels,
	)

	It("revokes the lineage when a rotated token is replayed", func() {
		h := newHarness(pgx.ReadCommitted)
		user := h.register("replayer")
		first := h.login("replayer")
		other := h.login("replayer")

		second, err := h.svc.Refresh(context.Background(), first.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.SessionID).To(Equal(first.SessionID), "rotation stays in the lineage")

		_, err = h.svc.Refresh(context.Background(), first.RefreshToken)
		Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue())

		_, err = h.svc.Refresh(context.Background(), second.RefreshToken)
		Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue(), "successor is revoked with its lineage")

		Expect(h.activeTokens(user.ID)).To(Equal(1), "an unrelated session survives")
		_, err = h.svc.Refresh(context.Background(), other.RefreshToken)
		Expect(err).NotTo(HaveOccurred())

		events, err := h.audit.ListForUser(context.Background(), user.ID, 10)
		Expect(err).NotTo(HaveOccurred())
		types := make([]auth.EventType, 0, len(events))
		for _, ev := range events {
			types = append(types, ev.Type)
		}
		Expect(types).To(ContainElement(auth.EventRefreshReuseDetected))
	})

	It("stores only the hash of a refresh token", func() {
		h := newHarness(pgx.ReadCommitted)
		h.register("hashed")
		pair := h.login("hashed")

		var stored int
		err := db.Pool.QueryRow(context.Background(),
			`SELECT count(*) FROM refresh_tokens WHERE token_hash = $1`, pair.RefreshToken).Scan(&stored)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(BeZero())
	})

	It("makes logout idempotent", func() {
		h := newHarness(pgx.ReadCommitted)
		user := h.register("leaver")
		pair := h.login("leaver")

		Expect(h.svc.Logout(context.Background(), pair.RefreshToken)).To(Succeed())
		Expect(h.svc.Logout(context.Background(), pair.RefreshToken)).To(Succeed())
		Expect(h.activeTokens(user.ID)).To(BeZero())
	})
})

var _ = Describe("Password changes", func() {
	It("leaves zero active sessions after a password change", func() {
		h := newHarness(pgx.ReadCommitted)
		user := h.register("changer")
		h.login("changer")
		h.login("changer")
		Expect(h.activeTokens(user.ID)).To(Equal(2))

		const next = "N3w$ecret!"
		Expect(h.svc.ChangePassword(context.Background(), user.ID, auth.ChangePasswordInput{
			CurrentPassword:    password,
			NewPassword:        next,
			ConfirmNewPassword: next,
		})).To(Succeed())

		Expect(h.activeTokens(user.ID)).To(BeZero())
		_, err := h.svc.Login(context.Background(), "changer", password)
		Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue())
		_, err = h.svc.Login(context.Background(), "changer", next)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Password reset", func() {
	forgot := func(h *harness, email string) string {
		Expect(h.svc.ForgotPassword(context.Background(), email)).To(Succeed())
		h.svc.Close()
		raw := h.notifier.token(email)
		Expect(raw).NotTo(BeEmpty())
		return raw
	}

	It("keeps at most one live reset token per user", func() {
		h := newHarness(pgx.ReadCommitted)
		user := h.register("forgetful")

		stale := forgot(h, "forgetful@example.com")
		fresh := forgot(h, "forgetful@example.com")
		Expect(fresh).NotTo(Equal(stale))

		var live int
		err := db.Pool.QueryRow(context.Background(),
			`SELECT count(*) FROM reset_tokens WHERE user_id = $1 AND used_at IS NULL`, user.ID.String()).Scan(&live)
		Expect(err).NotTo(HaveOccurred())
		Expect(live).To(Equal(1))

		const next = "Re$et1234"
		err = h.svc.ResetPassword(context.Background(), auth.ResetPasswordInput{
			Token: stale, NewPassword: next, ConfirmNewPassword: next,
		})
		Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue(), "superseded token is dead")
	})

	DescribeTable("lets exactly one concurrent redemption consume a token",
		func(iso pgx.TxIsoLevel) {
			h := newHarness(iso)
			user := h.register("resetter")
			h.login("resetter")
			raw := forgot(h, "resetter@example.com")

			errs := race(5, func(i int) error {
				pw := fmt.Sprintf("Re$et%04d", i)
				return h.svc.ResetPassword(context.Background(), auth.ResetPasswordInput{
					Token: raw, NewPassword: pw, ConfirmNewPassword: pw,
				})
			})

			Expect(successes(errs)).To(Equal(1))
			for _, err := range errs {
				if err != nil {
					Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue(), "unexpected error: %v", err)
				}
			}
			Expect(h.activeTokens(user.ID)).To(BeZero())
		},
		isolationLevels,
	)

	It("answers unknown and registered emails alike", func() {
		h := newHarness(pgx.ReadCommitted)
		h.register("known")

		known := h.svc.ForgotPassword(context.Background(), "known@example.com")
		unknown := h.svc.ForgotPassword(context.Background(), "nobody@example.com")
		h.svc.Close()

		Expect(known).To(BeNil())
		Expect(unknown).To(BeNil())
		Expect(h.notifier.token("nobody@example.com")).To(BeEmpty())

		var digests int
		err := db.Pool.QueryRow(context.Background(),
			`SELECT count(*) FROM auth_events WHERE user_id IS NULL AND identifier <> 'nobody@example.com'`).Scan(&digests)
		Expect(err).NotTo(HaveOccurred())
		Expect(digests).To(Equal(1), "unknown emails are audited by digest only")
	})

	It("rejects an expired reset token", func() {
		h := newHarness(pgx.ReadCommitted)
		user := h.register("late")
		raw := forgot(h, "late@example.com")

		_, err := db.Pool.Exec(context.Background(),
			`UPDATE reset_tokens SET expires_at = $2 WHERE user_id = $1`, user.ID.String(), time.Now().Add(-time.Minute))
		Expect(err).NotTo(HaveOccurred())

		const next = "Re$et1234"
		err = h.svc.ResetPassword(context.Background(), auth.ResetPasswordInput{
			Token: raw, NewPassword: next, ConfirmNewPassword: next,
		})
		Expect(errors.Is(err, auth.ErrAuthFailure)).To(BeTrue())
	})
})
