package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the identity record in Redis. Intended for fleet
// simulations where many simulated carts run on one host and a file per
// cart would be unwieldy; each store instance owns exactly one key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed identity store.
// The key should be unique per simulated cart, e.g. "smartcart:identity:<serial>".
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the identity record.
// Returns nil, nil when the key does not exist.
func (s *RedisStore) Load() (*DeviceIdentity, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	id := &DeviceIdentity{}
	if err := json.Unmarshal(data, id); err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return id, nil
}

// Save writes the identity record.
func (s *RedisStore) Save(id *DeviceIdentity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Clear deletes the identity record. Deleting a missing key is not an error.
func (s *RedisStore) Clear() error {
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func (s *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// Compile-time interface satisfaction check.
var _ Store = (*RedisStore)(nil)
