// Package token mints the single-use tokens mailed for email verification and
// password reset.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

const (
	// Bytes of randomness per token. Tokens are hex encoded, so 64 characters.
	Bytes = 32

	VerificationTTL = 24 * time.Hour
	ResetTTL        = time.Hour
)

// Issuer generates tokens and evaluates their expiry against its clock.
type Issuer struct {
	now func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Generate returns a hex encoded token read from crypto/rand.
func (i *Issuer) Generate() (string, error) {
	b := make([]byte, Bytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATION_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// Digest returns the SHA-256 hex digest under which a token is stored.
func (i *Issuer) Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Matches compares a presented token with a stored digest in constant time.
func (i *Issuer) Matches(token, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(i.Digest(token)), []byte(digest)) == 1
}

// Now returns the issuer's current time.
func (i *Issuer) Now() time.Time {
	return i.now()
}

// ExpiryFrom returns now + d.
func (i *Issuer) ExpiryFrom(now time.Time, d time.Duration) time.Time {
	return now.Add(d)
}

// IsExpired reports whether expiry is nil or already passed.
func (i *Issuer) IsExpired(expiry *time.Time) bool {
	if expiry == nil {
		return true
	}
	return i.now().After(*expiry)
}
