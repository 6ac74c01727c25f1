package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// AccountPatch is a partial update. Nil fields are left untouched.
// Verification and Reset set a token pair; the Clear flags remove it.
type AccountPatch struct {
	PasswordHash            *string
	DisplayName             *string
	EmailVerified           *bool
	Verification            *entity.TokenGrant
	ClearVerification       bool
	Reset                   *entity.TokenGrant
	ClearReset              bool
	LastLoginNotificationAt *time.Time
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p.PasswordHash == nil && p.DisplayName == nil && p.EmailVerified == nil &&
		p.Verification == nil && !p.ClearVerification &&
		p.Reset == nil && !p.ClearReset && p.LastLoginNotificationAt == nil
}

// Apply writes the patch onto a.
func (p AccountPatch) Apply(a *entity.Account) {
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.DisplayName != nil {
		a.DisplayName = *p.DisplayName
	}
	if p.EmailVerified != nil && *p.EmailVerified {
		a.EmailVerified = true
	}
	if p.ClearVerification {
		a.SetVerification(nil)
	}
	if p.Verification != nil {
		a.SetVerification(p.Verification)
	}
	if p.ClearReset {
		a.SetReset(nil)
	}
	if p.Reset != nil {
		a.SetReset(p.Reset)
	}
	if p.LastLoginNotificationAt != nil {
		at := *p.LastLoginNotificationAt
		a.LastLoginNotificationAt = &at
	}
}

// AccountRepository is the credential store. Emails are expected in normalized
// (lower case) form and token arguments are digests.
//
// The Consume methods are compare-and-clear operations: the token match, the
// expiry check and the write happen atomically, so of two callers presenting
// the same token at most one gets the account back; the other gets ErrNotFound.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	FindByVerificationToken(ctx context.Context, digest string) (*entity.Account, error)
	FindByResetToken(ctx context.Context, digest string) (*entity.Account, error)
	// Create inserts a and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, a *entity.Account) error
	Update(ctx context.Context, id string, patch AccountPatch) error
	// ConsumeVerificationToken marks the matching unverified account verified
	// and clears its verification token if the token has not expired at now.
	ConsumeVerificationToken(ctx context.Context, digest string, now time.Time) (*entity.Account, error)
	// ConsumeResetToken stores passwordHash and clears the reset token of the
	// matching account if the token has not expired at now.
	ConsumeResetToken(ctx context.Context, digest string, now time.Time, passwordHash string) (*entity.Account, error)
}
