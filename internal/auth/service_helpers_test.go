// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/turnia/turnia/internal/auth"
	"github.com/turnia/turnia/internal/token"
)

const (
	testPassword    = "Secure123!"
	testNewPassword = "Changed456?"
)

var (
	testAccessSecret  = []byte("access-secret-for-tests-0123456789abcdef")
	testRefreshSecret = []byte("refresh-secret-for-tests-0123456789abcdef")
)

// passTx runs the unit of work directly.
type passTx struct{}

func (passTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// errTx fails every unit of work without running it.
type errTx struct{ err error }

func (e errTx) InTransaction(context.Context, func(ctx context.Context) error) error {
	return e.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memUsers is an in-memory UserRepository with the store's uniqueness rules.
type memUsers struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[ulid.ULID]auth.User)}
}

func (m *memUsers) Create(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Username == u.Username {
			return auth.ErrDuplicateUsername
		}
		if existing.Email == u.Email {
			return auth.ErrDuplicateEmail
		}
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) GetByUsernameOrEmail(_ context.Context, identifier string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == identifier || u.Email == strings.ToLower(identifier) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) update(id ulid.ULID, fn func(u *auth.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(&u)
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	return m.update(id, func(u *auth.User) { u.PasswordHash = hash })
}

func (m *memUsers) IncrementFailedAttempts(_ context.Context, id ulid.ULID) (int, error) {
	var n int
	err := m.update(id, func(u *auth.User) {
		u.FailedAttempts++
		n = u.FailedAttempts
	})
	return n, err
}

func (m *memUsers) LockUntil(_ context.Context, id ulid.ULID, until time.Time) error {
	return m.update(id, func(u *auth.User) { u.LockedUntil = &until })
}

func (m *memUsers) ClearFailedAttempts(_ context.Context, id ulid.ULID) error {
	return m.update(id, func(u *auth.User) {
		u.FailedAttempts = 0
		u.LockedUntil = nil
	})
}

// memRefresh is an in-memory RefreshTokenRepository. MarkRotated is a
// conditional update like the SQL version.
type memRefresh struct {
	mu     sync.Mutex
	tokens map[ulid.ULID]auth.RefreshToken
}

func newMemRefresh() *memRefresh {
	return &memRefresh{tokens: make(map[ulid.ULID]auth.RefreshToken)}
}

func active(t auth.RefreshToken, now time.Time) bool {
	return t.State(now) == auth.RefreshActive
}

func (m *memRefresh) Create(_ context.Context, t *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = *t
	return nil
}

func (m *memRefresh) GetByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memRefresh) MarkRotated(_ context.Context, id, successorID ulid.ULID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || !active(t, now) {
		return auth.ErrTokenAlreadyUsed
	}
	reason := auth.ReasonRotated
	t.RevokedAt = &now
	t.RevokedReason = &reason
	t.ReplacedByID = &successorID
	m.tokens[id] = t
	return nil
}

func (m *memRefresh) revokeWhere(now time.Time, reason auth.RevokeReason, match func(auth.RefreshToken) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if !match(t) || !active(t, now) {
			continue
		}
		t.RevokedAt = &now
		t.RevokedReason = &reason
		m.tokens[id] = t
		n++
	}
	return n
}

func (m *memRefresh) RevokeFamily(_ context.Context, familyID ulid.ULID, now time.Time, reason auth.RevokeReason) (int64, error) {
	return m.revokeWhere(now, reason, func(t auth.RefreshToken) bool { return t.FamilyID == familyID }), nil
}

func (m *memRefresh) RevokeAllForUser(_ context.Context, userID ulid.ULID, now time.Time, reason auth.RevokeReason) (int64, error) {
	return m.revokeWhere(now, reason, func(t auth.RefreshToken) bool { return t.UserID == userID }), nil
}

func (m *memRefresh) CountActive(_ context.Context, userID ulid.ULID, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && active(t, now) {
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) FamilyActive(_ context.Context, familyID ulid.ULID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.FamilyID == familyID && active(t, now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRefresh) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

// memReset is an in-memory ResetTokenRepository keeping one unused token per
// user.
type memReset struct {
	mu     sync.Mutex
	tokens map[ulid.ULID]auth.ResetToken
}

func newMemReset() *memReset {
	return &memReset{tokens: make(map[ulid.ULID]auth.ResetToken)}
}

func (m *memReset) Upsert(_ context.Context, t *auth.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.tokens {
		if existing.UserID == t.UserID && existing.UsedAt == nil {
			delete(m.tokens, id)
		}
	}
	m.tokens[t.ID] = *t
	return nil
}

func (m *memReset) GetByHash(_ context.Context, hash string) (*auth.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memReset) MarkUsed(_ context.Context, id ulid.ULID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.UsedAt != nil || t.IsExpired(now) {
		return auth.ErrTokenAlreadyUsed
	}
	t.UsedAt = &now
	m.tokens[id] = t
	return nil
}

func (m *memReset) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memReset) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type memAudit struct {
	mu     sync.Mutex
	events []auth.SecurityEvent
}

func (m *memAudit) Record(_ context.Context, ev auth.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memAudit) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var n int64
	for _, ev := range m.events {
		if ev.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return n, nil
}

func (m *memAudit) types() []auth.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.EventType, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

type sentReset struct {
	Email string
	Token string
}

type memNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (m *memNotifier) SendPasswordReset(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentReset{Email: email, Token: rawToken})
	return nil
}

func (m *memNotifier) all() []sentReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentReset(nil), m.sent...)
}

// fixture wires a Service to in-memory stores and a controllable clock.
type fixture struct {
	clock    *testClock
	users    *memUsers
	refresh  *memRefresh
	reset    *memReset
	audit    *memAudit
	notifier *memNotifier
	codec    *token.Codec
	ledger   *auth.RefreshLedger
	resets   *auth.ResetLedger
	svc      *auth.Service
}

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "turnia-test",
		Audience:      "turnia-test",
	})
	require.NoError(t, err)
	return codec
}

func newFixture(t *testing.T, tune ...func(*auth.ServiceOptions)) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newTestClock(),
		users:    newMemUsers(),
		refresh:  newMemRefresh(),
		reset:    newMemReset(),
		audit:    &memAudit{},
		notifier: &memNotifier{},
	}
	f.codec = newTestCodec(t).WithClock(f.clock.Now)

	var err error
	f.ledger, err = auth.NewRefreshLedger(f.refresh, f.codec, passTx{}, 0)
	require.NoError(t, err)
	f.ledger.SetClock(f.clock.Now)

	f.resets, err = auth.NewResetLedger(f.reset, passTx{}, 0)
	require.NoError(t, err)
	f.resets.SetClock(f.clock.Now)

	opts := auth.ServiceOptions{
		Lockout:        auth.DefaultLockoutPolicy(),
		StrictSessions: true,
	}
	for _, fn := range tune {
		fn(&opts)
	}

	f.svc, err = auth.NewService(auth.ServiceDeps{
		Users:    f.users,
		Refresh:  f.ledger,
		Reset:    f.resets,
		Hasher:   auth.NewArgon2idHasher(cheapParams),
		Codec:    f.codec,
		Tx:       passTx{},
		Notifier: f.notifier,
		Audit:    f.audit,
	}, opts)
	require.NoError(t, err)
	f.svc.SetClock(f.clock.Now)
	t.Cleanup(f.svc.Close)
	return f
}

func registerInput(username, email string) auth.RegisterInput {
	return auth.RegisterInput{
		Name:            "Juan",
		LastName:        "Perez",
		Username:        username,
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	}
}

func (f *fixture) register(t *testing.T, username, email string) *auth.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), registerInput(username, email))
	require.NoError(t, err)
	return user
}

func (f *fixture) login(t *testing.T, identifier string) *auth.TokenPair {
	t.Helper()
	pair, err := f.svc.Login(context.Background(), identifier, testPassword)
	require.NoError(t, err)
	return pair
}
