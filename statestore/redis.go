package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/DealFlow/workflow"
)

// defaultRedisTTL is applied to conversation keys unless overridden.
const defaultRedisTTL = 30 * 24 * time.Hour

// RedisStore is a Redis-backed implementation of workflow.Store using JSON
// values with an optional TTL. Suitable for distributed deployments; the
// workflow machine still serializes writes per key, so last-write-wins is
// sufficient.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for conversation keys. Dormant conversations
// expire after this duration. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys. Default is "dealflow".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed state store.
//
// Example:
//
//	store := statestore.NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    statestore.WithTTL(7*24*time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: "dealflow",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(threadID, channelID string) string {
	return s.prefix + ":thread:" + storeKey(threadID, channelID)
}

// Load retrieves a conversation state from Redis, returning
// workflow.ErrNotFound when the key does not exist or has expired.
func (s *RedisStore) Load(ctx context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	data, err := s.client.Get(ctx, s.key(threadID, channelID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, workflow.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cs workflow.ConversationState
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &cs, nil
}

// Save persists a conversation state to Redis, refreshing the TTL.
func (s *RedisStore) Save(ctx context.Context, cs *workflow.ConversationState) error {
	if cs == nil {
		return fmt.Errorf("nil conversation state")
	}

	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(cs.ThreadID, cs.ChannelID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
