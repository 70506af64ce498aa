package position

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-relay/internal/model"
)

const redisKeyPrefix = "relay:position:"

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// RedisStore persists position state in Redis, one JSON value per symbol.
// It survives relay restarts, unlike MemoryStore.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore connects to Redis and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[position] redis store connected to %s", cfg.Addr)
	return &RedisStore{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *RedisStore) Client() *goredis.Client { return s.client }

func (s *RedisStore) Get(ctx context.Context, symbol string) (model.PositionState, bool, error) {
	var st model.PositionState
	raw, err := s.client.Get(ctx, redisKeyPrefix+symbol).Result()
	if err == goredis.Nil {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return st, false, fmt.Errorf("redis decode %s: %w", symbol, err)
	}
	return st, true, nil
}

func (s *RedisStore) Put(ctx context.Context, symbol string, st model.PositionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", symbol, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+symbol, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", symbol, err)
	}
	return nil
}

// UpdateFields does a read-modify-write. Atomicity across the two commands
// is the caller's concern: the dispatcher already serializes per symbol.
func (s *RedisStore) UpdateFields(ctx context.Context, symbol string, u model.PositionUpdate) (bool, error) {
	st, ok, err := s.Get(ctx, symbol)
	if err != nil || !ok {
		return false, err
	}
	u.Apply(&st)
	if err := s.Put(ctx, symbol, st); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var n int
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
