// Package memory holds process-local stores used for local development
// (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/go-account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/go-account-lifecycle/internal/domain/repository"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*entity.Account
	byEmail  map[string]string
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]*entity.Account),
		byEmail:  make(map[string]string),
	}
}

// clone returns a deep copy so callers never share pointers with the store.
func clone(a *entity.Account) *entity.Account {
	c := *a
	if a.VerificationToken != nil {
		c.SetVerification(&entity.TokenGrant{Digest: *a.VerificationToken, ExpiresAt: *a.VerificationTokenExpiry})
	}
	if a.ResetToken != nil {
		c.SetReset(&entity.TokenGrant{Digest: *a.ResetToken, ExpiresAt: *a.ResetTokenExpiry})
	}
	if a.LastLoginNotificationAt != nil {
		at := *a.LastLoginNotificationAt
		c.LastLoginNotificationAt = &at
	}
	return &c
}

func (r *AccountRepository) FindByID(_ context.Context, id string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(a), nil
}

func (r *AccountRepository) FindByEmail(_ context.Context, email string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(r.accounts[id]), nil
}

func (r *AccountRepository) FindByVerificationToken(_ context.Context, digest string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a := r.findLocked(func(a *entity.Account) *string { return a.VerificationToken }, digest); a != nil {
		return clone(a), nil
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) FindByResetToken(_ context.Context, digest string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a := r.findLocked(func(a *entity.Account) *string { return a.ResetToken }, digest); a != nil {
		return clone(a), nil
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) findLocked(field func(*entity.Account) *string, digest string) *entity.Account {
	if digest == "" {
		return nil
	}
	for _, a := range r.accounts {
		if v := field(a); v != nil && *v == digest {
			return a
		}
	}
	return nil
}

func (r *AccountRepository) Create(_ context.Context, a *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[a.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	now := time.Now().UTC()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.accounts[a.ID] = clone(a)
	r.byEmail[a.Email] = a.ID
	return nil
}

func (r *AccountRepository) Update(_ context.Context, id string, patch repository.AccountPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.Empty() {
		return nil
	}
	patch.Apply(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *AccountRepository) ConsumeVerificationToken(_ context.Context, digest string, now time.Time) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findLocked(func(a *entity.Account) *string { return a.VerificationToken }, digest)
	if a == nil || a.EmailVerified || a.VerificationTokenExpiry == nil || now.After(*a.VerificationTokenExpiry) {
		return nil, repository.ErrNotFound
	}
	a.EmailVerified = true
	a.SetVerification(nil)
	a.UpdatedAt = now
	return clone(a), nil
}

func (r *AccountRepository) ConsumeResetToken(_ context.Context, digest string, now time.Time, passwordHash string) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.findLocked(func(a *entity.Account) *string { return a.ResetToken }, digest)
	if a == nil || a.ResetTokenExpiry == nil || now.After(*a.ResetTokenExpiry) {
		return nil, repository.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.SetReset(nil)
	a.UpdatedAt = now
	return clone(a), nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
