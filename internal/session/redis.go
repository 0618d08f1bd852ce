package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medibook/admin-api/internal/models"
)

const redisKeyPrefix = "override:session:"

// RedisStore keeps override sessions in Redis so every API instance sees the
// same active session. Expiry is delegated to the key TTL; Get still checks
// the deadline so a clock-skewed instance never serves a stale session.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(adminID string) string {
	return redisKeyPrefix + adminID
}

// Get returns the admin's session, or nil when none is live.
func (s *RedisStore) Get(ctx context.Context, adminID string) (*models.OverrideSession, error) {
	data, err := s.client.Get(ctx, redisKey(adminID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override session: %w", err)
	}
	var sess models.OverrideSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode override session: %w", err)
	}
	if !sess.Active(time.Now()) {
		_ = s.client.Del(ctx, redisKey(adminID)).Err()
		return nil, nil
	}
	return &sess, nil
}

// Put stores the session with a TTL matching its remaining lifetime.
func (s *RedisStore) Put(ctx context.Context, session *models.OverrideSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("store override session: already expired")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode override session: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(session.OriginalAdminID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store override session: %w", err)
	}
	return nil
}

// PutIfAbsent stores the session through SET NX so only one of several
// racing instances wins. Expired keys are gone through their TTL and never
// block the write.
func (s *RedisStore) PutIfAbsent(ctx context.Context, session *models.OverrideSession) (bool, error) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return false, fmt.Errorf("store override session: already expired")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("encode override session: %w", err)
	}
	stored, err := s.client.SetNX(ctx, redisKey(session.OriginalAdminID), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store override session: %w", err)
	}
	return stored, nil
}

// Delete removes the admin's session if present.
func (s *RedisStore) Delete(ctx context.Context, adminID string) error {
	if err := s.client.Del(ctx, redisKey(adminID)).Err(); err != nil {
		return fmt.Errorf("delete override session: %w", err)
	}
	return nil
}
