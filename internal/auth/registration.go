// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package auth

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// RegistrationPolicy restricts which email domains may register. A policy
// with no patterns allows every domain.
type RegistrationPolicy struct {
	patterns []string
	domains  []glob.Glob
}

// NewRegistrationPolicy compiles domain patterns such as "example.com" or
// "*.example.com". Matching is case-insensitive.
func NewRegistrationPolicy(patterns []string) (*RegistrationPolicy, error) {
	p := &RegistrationPolicy{}
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code("REGISTRATION_POLICY_INVALID").With("pattern", raw).Wrap(err)
		}
		p.patterns = append(p.patterns, pattern)
		p.domains = append(p.domains, g)
	}
	return p, nil
}

// Patterns returns the compiled patterns in their normalized form.
func (p *RegistrationPolicy) Patterns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns...)
}

// Check returns a validation failure when the email's domain is not allowed.
func (p *RegistrationPolicy) Check(email string) error {
	if p == nil || len(p.domains) == 0 {
		return nil
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return validationError("AUTH_INVALID_EMAIL", "invalid email address")
	}
	domain := strings.ToLower(email[at+1:])
	for _, g := range p.domains {
		if g.Match(domain) {
			return nil
		}
	}
	return validationError("AUTH_EMAIL_DOMAIN_NOT_ALLOWED", "registration is not open for this email domain")
}
