package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:session:"

// RedisStore keeps each record in a hash holding the worker_token and
// worker_profile fields. The TTL slides on every successful load.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore builds a store over client.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (Record, error) {
	key := s.key(sessionID)
	vals, err := s.client.HMGet(ctx, key, KeyToken, KeyProfile).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	token, _ := vals[0].(string)
	rawProfile, _ := vals[1].(string)
	if token == "" || rawProfile == "" {
		return Record{}, ErrNotFound
	}

	rec := Record{Token: token}
	if err := json.Unmarshal([]byte(rawProfile), &rec.Profile); err != nil {
		return Record{}, fmt.Errorf("decode session profile: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return Record{}, fmt.Errorf("refresh session ttl: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, rec Record) error {
	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("encode session profile: %w", err)
	}
	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, KeyToken, rec.Token, KeyProfile, string(profile))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
