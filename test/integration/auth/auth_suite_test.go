// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

//go:build integration

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/turnia/turnia/internal/auth"
	"github.com/turnia/turnia/internal/auth/postgres"
	"github.com/turnia/turnia/internal/retry"
	"github.com/turnia/turnia/internal/store"
	"github.com/turnia/turnia/internal/store/pgtest"
	"github.com/turnia/turnia/internal/token"
)

func TestAuthIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Integration Suite")
}

var db *pgtest.Database

var _ = BeforeSuite(func() {
	var err error
	db, err = pgtest.Start(context.Background())
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if db != nil {
		db.Close(context.Background())
	}
})

var _ = BeforeEach(func() {
	Expect(db.Truncate(context.Background())).To(Succeed())
})

// captureNotifier keeps the last reset token sent to each email.
type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, rawToken string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[email] = rawToken
	return nil
}

func (n *captureNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

// harness is a Service wired to the container database.
type harness struct {
	svc      *auth.Service
	refresh  *auth.RefreshLedger
	audit    *postgres.AuditRepository
	notifier *captureNotifier
}

func newHarness(iso pgx.TxIsoLevel) *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := store.NewRetryingTransactor(store.NewTransactor(db.Pool, iso), retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
	}, nil, logger)

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("integration-access-secret-0123456789"),
		RefreshSecret: []byte("integration-refresh-secret-0123456789"),
	})
	Expect(err).NotTo(HaveOccurred())

	refresh, err := auth.NewRefreshLedger(postgres.NewRefreshTokenRepository(db.Pool), codec, tx, time.Hour)
	Expect(err).NotTo(HaveOccurred())
	reset, err := auth.NewResetLedger(postgres.NewResetTokenRepository(db.Pool), tx, time.Hour)
	Expect(err).NotTo(HaveOccurred())

	h := &harness{
		refresh:  refresh,
		audit:    postgres.NewAuditRepository(db.Pool),
		notifier: &captureNotifier{tokens: map[string]string{}},
	}
	h.svc, err = auth.NewService(auth.ServiceDeps{
		Users:    postgres.NewUserRepository(db.Pool),
		Refresh:  refresh,
		Reset:    reset,
		Hasher:   auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}),
		Codec:    codec,
		Tx:       tx,
		Notifier: h.notifier,
		Audit:    h.audit,
		Logger:   logger,
	}, auth.ServiceOptions{})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(h.svc.Close)
	return h
}

const password = "Sup3r$ecret"

func (h *harness) register(username string) *auth.User {
	user, err := h.svc.Register(context.Background(), auth.RegisterInput{
		Name:            "Test",
		LastName:        "User",
		Username:        username,
		Email:           username + "@example.com",
		Password:        password,
		ConfirmPassword: password,
	})
	Expect(err).NotTo(HaveOccurred())
	return user
}

func (h *harness) login(username string) *auth.TokenPair {
	pair, err := h.svc.Login(context.Background(), username, password)
	Expect(err).NotTo(HaveOccurred())
	return pair
}

func (h *harness) activeTokens(userID ulid.ULID) int {
	n, err := h.refresh.ActiveCount(context.Background(), userID)
	Expect(err).NotTo(HaveOccurred())
	return n
}

// race runs fn n times concurrently, released together.
func race(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer GinkgoRecover()
			<-start
			errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func successes(errs []error) int {
	n := 0
	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	return n
}
