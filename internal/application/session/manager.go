// Package session issues and checks the handles that prove a login.
//
// A handle is a signed token naming an account and a server-side session id.
// The session id must still be present in the Store for the handle to resolve,
// so Destroy takes effect before the signature expires.
package session

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-account-lifecycle/internal/application/apperr"
	"github.com/oksasatya/go-account-lifecycle/internal/application/token"
	"github.com/oksasatya/go-account-lifecycle/pkg/helpers"
)

// Store persists live session ids.
type Store interface {
	Save(ctx context.Context, sessionID, accountID string, ttl time.Duration) error
	// Lookup returns the account bound to sessionID; ok is false when absent or expired.
	Lookup(ctx context.Context, sessionID string) (accountID string, ok bool, err error)
	Delete(ctx context.Context, sessionID string) error
}

// Handle is what the transport hands to the client.
type Handle struct {
	Token     string
	ExpiresAt time.Time
}

type Manager struct {
	store  Store
	jwt    *helpers.JWTManager
	tokens *token.Issuer
	logger *logrus.Logger
}

func NewManager(store Store, jwt *helpers.JWTManager, tokens *token.Issuer, logger *logrus.Logger) *Manager {
	return &Manager{store: store, jwt: jwt, tokens: tokens, logger: logger}
}

// Create binds a fresh session to accountID.
func (m *Manager) Create(ctx context.Context, accountID string) (Handle, error) {
	sid, err := m.tokens.Generate()
	if err != nil {
		return Handle{}, oops.Code("SESSION_CREATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	signed, exp, err := m.jwt.GenerateSessionToken(accountID, sid, m.tokens.Now())
	if err != nil {
		return Handle{}, oops.Code("SESSION_CREATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	if err := m.store.Save(ctx, sid, accountID, m.jwt.TTL); err != nil {
		return Handle{}, oops.Code("SESSION_CREATE_FAILED").With("account_id", accountID).Wrap(err)
	}
	return Handle{Token: signed, ExpiresAt: exp}, nil
}

// Resolve returns the account bound to handle. Missing, malformed, expired and
// destroyed handles all resolve to ok=false.
func (m *Manager) Resolve(ctx context.Context, handle string) (string, bool) {
	if handle == "" {
		return "", false
	}
	claims, err := m.jwt.ParseSessionToken(handle)
	if err != nil {
		return "", false
	}
	accountID, ok, err := m.store.Lookup(ctx, claims.SessionID)
	if err != nil {
		if m.logger != nil {
			m.logger.WithError(err).Warn("session lookup failed")
		}
		return "", false
	}
	if !ok || accountID != claims.UserID {
		return "", false
	}
	return accountID, true
}

// RequireAccount is Resolve for protected operations.
func (m *Manager) RequireAccount(ctx context.Context, handle string) (string, error) {
	accountID, ok := m.Resolve(ctx, handle)
	if !ok {
		return "", apperr.Unauthenticated("Please sign in to continue")
	}
	return accountID, nil
}

// Destroy invalidates handle. Unknown or malformed handles are ignored.
func (m *Manager) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	claims, err := m.jwt.ParseSessionToken(handle)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, claims.SessionID); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").With("account_id", claims.UserID).Wrap(err)
	}
	return nil
}
