package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-account-lifecycle/internal/application/session"
)

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// SessionStore keeps session ids as plain keys whose TTL is the session lifetime.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func (s *SessionStore) Save(ctx context.Context, sessionID, accountID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, sessionKey(sessionID), accountID, ttl).Err()
}

func (s *SessionStore) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	accountID, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return accountID, true, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

var _ session.Store = (*SessionStore)(nil)
