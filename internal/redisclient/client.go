package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dining-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

// DefaultReplayTTL is how long confirmed payment results stay cached
const DefaultReplayTTL = 24 * time.Hour

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	replayTTL     time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		replayTTL:     DefaultReplayTTL,
	}, nil
}

// SetReplayTTL sets how long cached payment results live
func (c *Client) SetReplayTTL(ttl time.Duration) {
	if ttl > 0 {
		c.replayTTL = ttl
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:payment:%s", key)
}

func resultKey(key string) string {
	return fmt.Sprintf("idempotency:payment:%s", key)
}

// Acquire takes the lock for an idempotency key. ok is false when another
// holder has it. The returned token is required to release it.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock failed: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lock only if it is still held by token
func (c *Client) Release(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// GetResult returns a cached payment result for an idempotency key
func (c *Client) GetResult(ctx context.Context, key string) (*models.PaymentResult, bool, error) {
	raw, err := c.rdb.Get(ctx, resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var result models.PaymentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return &result, true, nil
}

// PutResult caches a confirmed payment result with TTL
func (c *Client) PutResult(ctx context.Context, key string, result *models.PaymentResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return c.rdb.Set(ctx, resultKey(key), raw, c.replayTTL).Err()
}
