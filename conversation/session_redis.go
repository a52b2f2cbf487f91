package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yelena0000/fish-store/core"
)

// RedisSessionStore keeps sessions in Redis so they survive restarts and can
// be shared by several bot replicas. Each session is one JSON value whose key
// TTL is refreshed on every save.
type RedisSessionStore struct {
	client *core.RedisClient
	ttl    time.Duration
	logger core.Logger
}

// NewRedisSessionStore creates a store on top of a namespaced Redis client.
func NewRedisSessionStore(client *core.RedisClient, ttl time.Duration, logger core.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
		logger: core.LoggerOrNoOp(logger),
	}
}

func sessionKey(userID string) string {
	return "session:" + userID
}

// Load implements SessionStore. An undecodable value is logged and treated as
// absent so the user starts over instead of being stuck.
func (r *RedisSessionStore) Load(ctx context.Context, userID string) (*Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(userID))
	if errors.Is(err, core.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", userID, err)
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		r.logger.Warn("Discarding undecodable session", map[string]interface{}{
			"user_id": userID,
			"error":   err,
		})
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

// Save implements SessionStore.
func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.UserID, err)
	}
	if err := r.client.Set(ctx, sessionKey(s.UserID), data, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", s.UserID, err)
	}
	return nil
}

// Delete implements SessionStore.
func (r *RedisSessionStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, sessionKey(userID)); err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}

// HealthCheck implements core.HealthChecker.
func (r *RedisSessionStore) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
