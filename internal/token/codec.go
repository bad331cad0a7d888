// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

// Package token signs and verifies access tokens and produces the opaque
// refresh and reset secrets whose hashes are persisted.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SecretBytes is the entropy of refresh and reset secrets (64 hex chars).
const SecretBytes = 32

// MinKeyLength is the shortest accepted signing key, in bytes.
const MinKeyLength = 32

// Default lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Verification failures. Errors returned by VerifyAccessToken match exactly one.
var (
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformed        = errors.New("token malformed")
)

// AccessClaims are the claims carried by an access token. Subject holds the
// user ID; SessionID is the refresh-token lineage that minted the token.
type AccessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID parses the subject as a ULID.
func (c *AccessClaims) UserID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_SUBJECT_INVALID").Wrap(ErrMalformed)
	}
	return id, nil
}

// Lineage parses the session ID as a ULID.
func (c *AccessClaims) Lineage() (ulid.ULID, error) {
	id, err := ulid.Parse(c.SessionID)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_SESSION_INVALID").Wrap(ErrMalformed)
	}
	return id, nil
}

// Config configures a Codec.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Codec issues and verifies tokens. It is safe for concurrent use.
type Codec struct {
	cfg   Config
	clock func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < MinKeyLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinKeyLength).
			Errorf("access secret too short")
	}
	if len(cfg.RefreshSecret) < MinKeyLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinKeyLength).
			Errorf("refresh secret too short")
	}
	if hmac.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	return &Codec{cfg: cfg, clock: time.Now}, nil
}

// WithClock returns a copy of the codec that reads time from clock.
func (c *Codec) WithClock(clock func() time.Time) *Codec {
	cp := *c
	cp.clock = clock
	return &cp
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.cfg.AccessTTL
}

// IssueAccessToken signs an HS256 access token for the user and lineage.
func (c *Codec) IssueAccessToken(userID ulid.ULID, role string, sessionID ulid.ULID) (string, *AccessClaims, error) {
	now := c.clock().UTC()
	claims := &AccessClaims{
		Role:      role,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID.String(),
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}
	if c.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.AccessSecret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, claims, nil
}

// VerifyAccessToken checks signature, algorithm, expiry, issuer and audience.
func (c *Codec) VerifyAccessToken(signed string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.clock),
	}
	if c.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(c.cfg.Leeway))
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	if c.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.cfg.Audience))
	}

	claims := &AccessClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, oops.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.cfg.AccessSecret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, oops.Code("TOKEN_MALFORMED").With("reason", "missing subject or session").Wrap(ErrMalformed)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code("TOKEN_EXPIRED").Wrap(ErrExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code("TOKEN_SIGNATURE_INVALID").Wrap(ErrInvalidSignature)
	default:
		return oops.Code("TOKEN_MALFORMED").With("reason", err.Error()).Wrap(ErrMalformed)
	}
}

// NewRefreshSecret returns a fresh refresh token and the keyed hash to persist.
func (c *Codec) NewRefreshSecret() (raw, hash string, err error) {
	raw, err = randomHex()
	if err != nil {
		return "", "", err
	}
	return raw, c.HashRefresh(raw), nil
}

// HashRefresh returns HMAC-SHA256(refresh secret, raw) as hex.
func (c *Codec) HashRefresh(raw string) string {
	mac := hmac.New(sha256.New, c.cfg.RefreshSecret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewResetSecret returns a fresh reset token and its SHA-256 hash.
func NewResetSecret() (raw, hash string, err error) {
	raw, err = randomHex()
	if err != nil {
		return "", "", err
	}
	return raw, HashReset(raw), nil
}

// HashReset returns the SHA-256 hex digest of a reset token.
func HashReset(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// EqualHash compares two hashes in constant time.
func EqualHash(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomHex() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
