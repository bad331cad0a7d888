// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id defaults.
const (
	DefaultArgon2Time      = 1         // iterations
	DefaultArgon2MemoryKiB = 64 * 1024 // 64 MB
	DefaultArgon2Threads   = 4         // parallelism
	argon2SaltLen          = 16
	argon2KeyLen           = 32
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced with other parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2Params is the configurable cost of argon2id.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultArgon2Params returns the OWASP baseline.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:      DefaultArgon2Time,
		MemoryKiB: DefaultArgon2MemoryKiB,
		Threads:   DefaultArgon2Threads,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with the given cost. Zero fields fall
// back to the defaults.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	return &Argon2idHasher{params: params}
}

// Params returns the hasher's cost parameters.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id hash in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, argon2KeyLen)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type encodedHash struct {
	version int
	params  Argon2Params
	salt    []byte
	key     []byte
}

func parseHash(encoded string) (*encodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	out := &encodedHash{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &out.version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	out.params = Argon2Params{Time: iterations, MemoryKiB: memory, Threads: uint8(threads)}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(out.key) == 0 || len(out.key) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(out.key))
	}
	return out, nil
}

// Verify checks if the password matches the encoded hash using the parameters
// stored in the hash itself.
func (h *Argon2idHasher) Verify(password, encoded string) (bool, error) {
	parsed, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), parsed.salt,
		parsed.params.Time, parsed.params.MemoryKiB, parsed.params.Threads, uint32(len(parsed.key))) //nolint:gosec // bounded above
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id or uses other cost
// parameters than this hasher.
func (h *Argon2idHasher) NeedsUpgrade(encoded string) bool {
	parsed, err := parseHash(encoded)
	if err != nil {
		return true
	}
	return parsed.version != argon2.Version || parsed.params != h.params
}
