// Package token mints the secret access tokens that gate card downloads.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// tokenBytes is the raw entropy per token. 32 bytes (256 bits) makes
// collisions negligible, so issuance never checks for duplicates.
const tokenBytes = 32

// Grant is a minted access token with its validity window and usage quota.
type Grant struct {
	Token        string
	ExpiresAt    time.Time
	MaxDownloads int
}

// Issuer mints URL-safe one-time access tokens.
type Issuer struct {
	now func() time.Time
}

// NewIssuer returns an Issuer using the wall clock.
func NewIssuer() *Issuer {
	return &Issuer{now: time.Now}
}

// NewIssuerWithClock returns an Issuer with an injected clock for tests.
func NewIssuerWithClock(now func() time.Time) *Issuer {
	return &Issuer{now: now}
}

// Issue generates a random token that expires after ttl and may be redeemed
// quota times. The token is unpadded base64url, safe to use as a path segment.
func (i *Issuer) Issue(ttl time.Duration, quota int) (Grant, error) {
	if quota <= 0 {
		return Grant{}, fmt.Errorf("token quota must be positive, got %d", quota)
	}
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Grant{}, fmt.Errorf("read random bytes: %w", err)
	}
	return Grant{
		Token:        base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt:    i.now().UTC().Add(ttl),
		MaxDownloads: quota,
	}, nil
}
