package entity

import (
	"time"
)

// State is the lifecycle position of an account, derived from its stored fields.
type State string

const (
	StatePendingVerification  State = "pending_verification"
	StateVerified             State = "verified"
	StatePasswordResetPending State = "password_reset_pending"
)

// Account is the aggregate root for the credential store.
// PasswordHash holds a bcrypt hash. VerificationToken and ResetToken hold
// SHA-256 digests of the tokens mailed to the owner, never the tokens themselves.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string

	EmailVerified           bool
	VerificationToken       *string
	VerificationTokenExpiry *time.Time

	ResetToken       *string
	ResetTokenExpiry *time.Time

	LastLoginNotificationAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenGrant is a token digest together with its expiry. Stores write and clear
// both halves at once so a token never exists without an expiry.
type TokenGrant struct {
	Digest    string
	ExpiresAt time.Time
}

// HasPendingReset reports whether an unexpired reset token is outstanding at now.
func (a *Account) HasPendingReset(now time.Time) bool {
	return a.ResetToken != nil && a.ResetTokenExpiry != nil && !now.After(*a.ResetTokenExpiry)
}

// State derives the lifecycle state at now.
func (a *Account) State(now time.Time) State {
	if a.HasPendingReset(now) {
		return StatePasswordResetPending
	}
	if !a.EmailVerified {
		return StatePendingVerification
	}
	return StateVerified
}

// SetVerification sets or clears the verification token pair.
func (a *Account) SetVerification(g *TokenGrant) {
	if g == nil {
		a.VerificationToken, a.VerificationTokenExpiry = nil, nil
		return
	}
	digest, exp := g.Digest, g.ExpiresAt
	a.VerificationToken, a.VerificationTokenExpiry = &digest, &exp
}

// SetReset sets or clears the reset token pair.
func (a *Account) SetReset(g *TokenGrant) {
	if g == nil {
		a.ResetToken, a.ResetTokenExpiry = nil, nil
		return
	}
	digest, exp := g.Digest, g.ExpiresAt
	a.ResetToken, a.ResetTokenExpiry = &digest, &exp
}
