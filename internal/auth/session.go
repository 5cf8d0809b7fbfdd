package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore tracks live login sessions so revoked tokens stop working before they expire.
type SessionStore struct {
	redis *redis.Client
}

func NewSessionStore(redisClient *redis.Client) *SessionStore {
	if redisClient == nil {
		panic("auth: redis client required")
	}
	return &SessionStore{redis: redisClient}
}

func (s *SessionStore) key(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Create opens a session for userID and returns its id.
func (s *SessionStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	sessionID := uuid.NewString()
	if err := s.redis.Set(ctx, s.key(sessionID), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: create session: %w", err)
	}
	return sessionID, nil
}

// Active reports whether sessionID is live and belongs to userID.
func (s *SessionStore) Active(ctx context.Context, sessionID, userID string) (bool, error) {
	owner, err := s.redis.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: get session: %w", err)
	}
	return owner == userID, nil
}

// Revoke ends a session; revoking an unknown session is not an error.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	return nil
}
