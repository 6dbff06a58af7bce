package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL        = 24 * time.Hour
	maxMergeAttempts  = 5
	redisSessionScope = "session:"
)

// RedisStore keeps one session document per browser tab in Redis. Merges use
// WATCH/MULTI so concurrent writers to the same tab serialize.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and scopes the store to tabID.
func NewRedisStore(redisURL, tabID string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, tabID, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, tabID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		key:    redisSessionScope + tabID,
		ttl:    ttl,
	}
}

func (s *RedisStore) Current(ctx context.Context) (Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return decode(raw)
}

func (s *RedisStore) Merge(ctx context.Context, patch Patch) (Session, error) {
	var merged Session
	txf := func(tx *redis.Tx) error {
		current := Session{}
		raw, err := tx.Get(ctx, s.key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("load session: %w", err)
		default:
			if current, err = decode(raw); err != nil {
				return err
			}
		}

		merged = current.Merge(patch)
		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return merged, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Session{}, fmt.Errorf("merge session: %w", err)
	}
	return Session{}, fmt.Errorf("merge session: too much contention on %s", s.key)
}

// Clear removes the tab's session.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decode(raw []byte) (Session, error) {
	var current Session
	if err := json.Unmarshal(raw, &current); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return current, nil
}
