package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/photocopy/geocoder/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultResultTTL bounds how long a shared result outlives an index update
const DefaultResultTTL = 24 * time.Hour

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	TTL         time.Duration
}

// RedisResultCache stores reverse geocoding results in Redis as JSON
type RedisResultCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg *RedisConfig) (*redis.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisResultCache wraps a connected client
func NewRedisResultCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisResultCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached result, or nil on a miss
func (c *RedisResultCache) Get(ctx context.Context, key string) (*model.LocationData, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return decodeLocation(data)
}

// Set stores a result with the configured TTL
func (c *RedisResultCache) Set(ctx context.Context, key string, value *model.LocationData) error {
	data, err := encodeLocation(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *RedisResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}

func encodeLocation(loc *model.LocationData) ([]byte, error) {
	if loc == nil {
		return nil, errors.New("cannot cache an empty result")
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal location: %w", err)
	}
	return data, nil
}

func decodeLocation(data []byte) (*model.LocationData, error) {
	var loc model.LocationData
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	return &loc, nil
}
