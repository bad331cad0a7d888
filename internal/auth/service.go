// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turnia/turnia/internal/retry"
	"github.com/turnia/turnia/internal/token"
	"github.com/turnia/turnia/pkg/errutil"
)

var tracer = otel.Tracer("turnia/auth")

// DefaultNotifyTimeout bounds a background reset notification.
const DefaultNotifyTimeout = 30 * time.Second

// fallbackDummyHash is verified against when hashing a fresh dummy fails.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const fallbackDummyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ServiceDeps are the collaborators of a Service. Audit, Metrics and Logger
// are optional.
type ServiceDeps struct {
	Users    UserRepository
	Refresh  *RefreshLedger
	Reset    *ResetLedger
	Hasher   PasswordHasher
	Codec    *token.Codec
	Tx       Transactor
	Notifier ResetNotifier
	Audit    AuditRecorder
	Metrics  *Metrics
	Logger   *slog.Logger
}

// ServiceOptions tune Service policy.
type ServiceOptions struct {
	Lockout      LockoutPolicy
	Registration *RegistrationPolicy
	// StrictSessions makes Authenticate require an active refresh token in
	// the access token's lineage.
	StrictSessions bool
	// ForgotPasswordFloor is the minimum duration of ForgotPassword. Zero
	// disables padding.
	ForgotPasswordFloor time.Duration
	NotifyTimeout       time.Duration
}

// TokenPair is the result of Login and Refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	TokenType        string
	UserID           ulid.ULID
	SessionID        ulid.ULID
}

// Service runs the session lifecycle: registration, login, refresh rotation,
// logout and password changes. It is safe for concurrent use; exclusivity is
// left to the store.
type Service struct {
	users    UserRepository
	refresh  *RefreshLedger
	reset    *ResetLedger
	hasher   PasswordHasher
	codec    *token.Codec
	tx       Transactor
	notifier ResetNotifier
	audit    AuditRecorder
	metrics  *Metrics
	logger   *slog.Logger
	opts     ServiceOptions

	clock     func() time.Time
	dummyOnce sync.Once
	dummyHash string
	inflight  sync.WaitGroup
}

// NewService creates a Service.
func NewService(deps ServiceDeps, opts ServiceOptions) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	case deps.Refresh == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("refresh ledger is required")
	case deps.Reset == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("reset ledger is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	case deps.Codec == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	case deps.Tx == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("transactor is required")
	case deps.Notifier == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("reset notifier is required")
	}
	if deps.Audit == nil {
		deps.Audit = nopAudit{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	return &Service{
		users:    deps.Users,
		refresh:  deps.Refresh,
		reset:    deps.Reset,
		hasher:   deps.Hasher,
		codec:    deps.Codec,
		tx:       deps.Tx,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,
		clock:    time.Now,
	}, nil
}

// Close waits for background notifications to finish.
func (s *Service) Close() {
	s.inflight.Wait()
}

// Register creates a user. A duplicate username or email yields one generic
// ConflictFailure that does not say which field collided.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *User, err error) {
	ctx, end := s.begin(ctx, "register")
	defer func() { end(err) }()

	in.Normalize()
	if err := in.Validate(); err != nil {
		s.metrics.registration("invalid")
		return nil, err
	}
	if err := s.opts.Registration.Check(in.Email); err != nil {
		s.metrics.registration("invalid")
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}
	user, err := NewUser(in, hash, s.clock().UTC())
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrDuplicateEmail) {
			s.metrics.registration("conflict")
			return nil, identifierInUse()
		}
		s.metrics.registration("error")
		return nil, s.fail(ctx, "register", err)
	}

	s.metrics.registration("success")
	s.record(ctx, EventRegistered, &user.ID, "", map[string]any{"role": string(user.Role)})
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", string(user.Role))
	return user.Sanitized(), nil
}

// Login authenticates by username or email. Unknown users and wrong passwords
// fail identically, and unknown users still pay for one hash verification.
func (s *Service) Login(ctx context.Context, identifier, password string) (_ *TokenPair, err error) {
	ctx, end := s.begin(ctx, "login")
	defer func() { end(err) }()

	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		identifier = NormalizeEmail(identifier)
	}

	user, lookupErr := s.users.GetByUsernameOrEmail(ctx, identifier)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			s.metrics.login("error")
			return nil, s.fail(ctx, "login", lookupErr)
		}
		//nolint:errcheck // result is irrelevant, only the cost matters
		s.hasher.Verify(password, s.dummy())
		s.metrics.login("invalid")
		s.record(ctx, EventLoginFailed, nil, IdentifierDigest(identifier), nil)
		return nil, invalidCredentials()
	}

	valid, verifyErr := s.hasher.Verify(password, user.PasswordHash)
	if verifyErr != nil {
		s.metrics.login("error")
		return nil, s.fail(ctx, "login", oops.Code("AUTH_STORED_HASH_INVALID").With("user_id", user.ID.String()).Wrap(verifyErr))
	}

	// A locked account answers like a wrong password whatever was typed.
	now := s.clock().UTC()
	if user.IsLocked(now) {
		s.metrics.login("locked")
		s.record(ctx, EventLoginFailed, &user.ID, "", map[string]any{"reason": "locked"})
		s.logger.InfoContext(ctx, "login rejected for locked account",
			"user_id", user.ID.String(),
			"locked_until", user.LockedUntil.Format(time.RFC3339))
		return nil, invalidCredentials()
	}
	if !valid {
		s.recordLoginFailure(ctx, user, now)
		s.metrics.login("invalid")
		return nil, invalidCredentials()
	}

	var pair *TokenPair
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if user.FailedAttempts > 0 || user.LockedUntil != nil {
			if err := s.users.ClearFailedAttempts(ctx, user.ID); err != nil {
				return err
			}
		}
		if s.hasher.NeedsUpgrade(user.PasswordHash) {
			if err := s.upgradeHash(ctx, user, password); err != nil {
				return err
			}
		}
		var err error
		pair, err = s.issuePair(ctx, user, ulid.Make())
		return err
	})
	if err != nil {
		s.metrics.login("error")
		return nil, s.fail(ctx, "login", err)
	}

	s.metrics.login("success")
	s.record(ctx, EventLoginSucceeded, &user.ID, "", map[string]any{"session_id": pair.SessionID.String()})
	return pair, nil
}

// recordLoginFailure bumps the failure counter and locks the account once the
// policy threshold is reached. Storage errors are logged, the caller still
// sees invalid credentials.
func (s *Service) recordLoginFailure(ctx context.Context, user *User, now time.Time) {
	var lockedUntil *time.Time
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		lockedUntil = nil
		failures, err := s.users.IncrementFailedAttempts(ctx, user.ID)
		if err != nil {
			return err
		}
		if user.IsLocked(now) {
			return nil
		}
		until := s.opts.Lockout.LockoutAfter(failures, now)
		if until == nil {
			return nil
		}
		if err := s.users.LockUntil(ctx, user.ID, *until); err != nil {
			return err
		}
		lockedUntil = until
		return nil
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "failed to record login failure", err,
			"user_id", user.ID.String())
		return
	}
	s.record(ctx, EventLoginFailed, &user.ID, "", map[string]any{"reason": "password"})
	if lockedUntil != nil {
		s.record(ctx, EventAccountLocked, &user.ID, "", map[string]any{"until": lockedUntil.Format(time.RFC3339)})
		s.logger.WarnContext(ctx, "account locked after repeated login failures",
			"user_id", user.ID.String(), "locked_until", *lockedUntil)
	}
}

func (s *Service) upgradeHash(ctx context.Context, user *User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "password hash upgraded", "user_id", user.ID.String())
	return nil
}

// Refresh rotates a refresh token and mints a new access token in the same
// lineage. Presenting a rotated or revoked token revokes the whole lineage.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *TokenPair, err error) {
	ctx, end := s.begin(ctx, "refresh")
	defer func() { end(err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		s.metrics.refresh("invalid")
		return nil, invalidRefresh()
	}

	var pair *TokenPair
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		rot, err := s.refresh.Rotate(ctx, refreshToken)
		if err != nil {
			return err
		}
		user, err := s.users.GetByID(ctx, rot.Next.UserID)
		if err != nil {
			return err
		}
		pair, err = s.accessPair(user, rot.Next, rot.RawToken)
		return err
	})
	if err == nil {
		s.metrics.refresh("success")
		s.record(ctx, EventRefreshRotated, &pair.UserID, "", map[string]any{"session_id": pair.SessionID.String()})
		return pair, nil
	}

	var rerr *RotationError
	switch {
	case errors.As(err, &rerr) && rerr.IsReuse():
		s.metrics.refresh("reused")
		s.revokeReusedLineage(ctx, rerr.Token)
		return nil, oops.Code("AUTH_TOKEN_REUSED").
			With("family_id", rerr.Token.FamilyID.String()).
			Public(msgInvalidCredentials).
			Wrap(ErrAuthFailure)
	case errors.As(err, &rerr):
		s.metrics.refresh("invalid")
		return nil, invalidRefresh()
	case errors.Is(err, ErrNotFound):
		// user vanished between issue and rotation
		s.metrics.refresh("invalid")
		return nil, invalidRefresh()
	default:
		s.metrics.refresh("error")
		return nil, s.fail(ctx, "refresh", err)
	}
}

// revokeReusedLineage runs in its own unit of work, after the failed rotation
// rolled back, and survives caller cancellation.
func (s *Service) revokeReusedLineage(ctx context.Context, rec *RefreshToken) {
	ctx = context.WithoutCancel(ctx)
	var n int64
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.refresh.RevokeLineage(ctx, rec.FamilyID, ReasonReuseDetected)
		return err
	})
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelError, "failed to revoke reused refresh lineage", err,
			"user_id", rec.UserID.String(), "family_id", rec.FamilyID.String())
	}
	s.logger.WarnContext(ctx, "refresh token reuse detected",
		"user_id", rec.UserID.String(), "family_id", rec.FamilyID.String(), "revoked", n)
	s.record(ctx, EventRefreshReuseDetected, &rec.UserID, "", map[string]any{
		"family_id": rec.FamilyID.String(),
		"token_id":  rec.ID.String(),
		"revoked":   n,
	})
}

// Logout revokes the lineage of the presented refresh token. An unknown
// token is treated as already logged out.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, end := s.begin(ctx, "logout")
	defer func() { end(err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	var rec *RefreshToken
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.refresh.Lookup(ctx, refreshToken)
		if err != nil {
			return err
		}
		_, err = s.refresh.RevokeLineage(ctx, rec.FamilyID, ReasonLogout)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return s.fail(ctx, "logout", err)
	}
	s.record(ctx, EventLogout, &rec.UserID, "", map[string]any{"family_id": rec.FamilyID.String()})
	return nil
}

// LogoutAll revokes every active refresh token of the user and returns how
// many were revoked.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) (_ int64, err error) {
	ctx, end := s.begin(ctx, "logout_all")
	defer func() { end(err) }()

	var n int64
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.refresh.RevokeAll(ctx, userID, ReasonAdmin)
		return err
	})
	if err != nil {
		return 0, s.fail(ctx, "logout_all", err)
	}
	s.record(ctx, EventSessionsRevoked, &userID, "", map[string]any{"revoked": n, "reason": string(ReasonAdmin)})
	return n, nil
}

// Authenticate verifies an access token. With StrictSessions the token's
// lineage must still hold an active refresh token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (_ *token.AccessClaims, err error) {
	ctx, end := s.begin(ctx, "authenticate")
	defer func() { end(err) }()

	claims, err := s.codec.VerifyAccessToken(strings.TrimSpace(accessToken))
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", errutil.Code(err)).
			Public(msgInvalidCredentials).
			Wrap(ErrAuthFailure)
	}
	if !s.opts.StrictSessions {
		return claims, nil
	}
	lineage, err := claims.Lineage()
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Public(msgInvalidCredentials).Wrap(ErrAuthFailure)
	}
	active, err := s.refresh.LineageActive(ctx, lineage)
	if err != nil {
		return nil, s.fail(ctx, "authenticate", err)
	}
	if !active {
		return nil, oops.Code("AUTH_SESSION_REVOKED").
			With("session_id", lineage.String()).
			Public(msgInvalidCredentials).
			Wrap(ErrAuthFailure)
	}
	return claims, nil
}

func (s *Service) issuePair(ctx context.Context, user *User, familyID ulid.ULID) (*TokenPair, error) {
	raw, rec, err := s.refresh.Issue(ctx, user.ID, familyID)
	if err != nil {
		return nil, err
	}
	return s.accessPair(user, rec, raw)
}

func (s *Service) accessPair(user *User, rec *RefreshToken, rawRefresh string) (*TokenPair, error) {
	access, claims, err := s.codec.IssueAccessToken(user.ID, string(user.Role), rec.FamilyID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:     rawRefresh,
		RefreshExpiresAt: rec.ExpiresAt,
		TokenType:        "Bearer",
		UserID:           user.ID,
		SessionID:        rec.FamilyID,
	}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("turnia-dummy-password")
		if err != nil {
			errutil.LogError(s.logger, "failed to compute dummy hash", err)
			hash = fallbackDummyHash
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func invalidRefresh() error {
	return oops.Code("AUTH_REFRESH_INVALID").Public(msgInvalidCredentials).Wrap(ErrAuthFailure)
}

// fail reclassifies err into the error taxonomy. Errors already classified
// pass through; everything else is logged and replaced.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAuthFailure), errors.Is(err, ErrConflict),
		errors.Is(err, ErrTransientStorage), errors.Is(err, ErrPermanentStorage):
		return err
	case errors.Is(err, retry.ErrExhausted):
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "storage retries exhausted", err, "operation", op)
		return oops.Code("STORAGE_RETRY_EXHAUSTED").
			With("operation", op).
			Public(msgTryAgainLater).
			Wrap(ErrTransientStorage)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "storage call did not complete", err, "operation", op)
		return oops.Code("STORAGE_TIMEOUT").
			With("operation", op).
			Public(msgTryAgainLater).
			Wrap(ErrPermanentStorage)
	default:
		errutil.LogErrorContext(ctx, s.logger, slog.LevelError, "storage failure", err, "operation", op)
		return oops.Code("STORAGE_UNAVAILABLE").
			With("operation", op).
			Public(msgTryAgainLater).
			Wrap(ErrPermanentStorage)
	}
}

// begin starts a span and a latency measurement for op.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("auth.error_kind", string(KindOf(err))))
			span.RecordError(err)
			span.SetStatus(codes.Error, errutil.Code(err))
		}
		span.End()
		s.metrics.observe(op, start)
	}
}

// record writes a security event. Failures are logged and never change the
// outcome of the operation.
func (s *Service) record(ctx context.Context, typ EventType, userID *ulid.ULID, identifier string, detail map[string]any) {
	ev := SecurityEvent{
		ID:         ulid.Make(),
		Type:       typ,
		UserID:     userID,
		Identifier: identifier,
		Detail:     detail,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), ev); err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "failed to record security event", err,
			"event", string(typ))
	}
}
