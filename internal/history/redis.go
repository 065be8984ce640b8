package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps user histories in Redis so multiple Merlin nodes share
// one baseline. Per-user atomicity across processes is not provided here;
// the engine serializes same-user analyses within a process, and multi-node
// deployments are expected to partition users across nodes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed history store.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) key(userID string) string {
	return "history:" + userID
}

// Get returns the stored history, or nil if never seen.
func (s *RedisStore) Get(ctx context.Context, userID string) (*domain.UserHistory, error) {
	if userID == "" {
		return nil, errUserIDRequired
	}

	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var h domain.UserHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", userID, err)
	}
	return &h, nil
}

// GetOrDefault returns the stored history or a fresh default without
// inserting it.
func (s *RedisStore) GetOrDefault(ctx context.Context, userID string) (*domain.UserHistory, error) {
	h, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return domain.DefaultHistory(userID), nil
	}
	return h, nil
}

// Update overwrites the entry for the user.
func (s *RedisStore) Update(ctx context.Context, userID string, tx *domain.Transaction, prior *domain.UserHistory) error {
	if err := checkUpdateArgs(userID, tx, prior); err != nil {
		return err
	}

	data, err := json.Marshal(applyUpdate(tx, prior))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(userID), data, 0).Err()
}

// Ping checks store health.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
