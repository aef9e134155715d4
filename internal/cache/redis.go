package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tullo/livechat/internal/chat"
)

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// fixedWindowScript counts a hit and starts the window expiry on the first
// hit. It returns the count inside the current window.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RateLimiter is a fixed-window limiter per (room, user). The increment and
// the window start run in one script so concurrent posts cannot both pass.
type RateLimiter struct {
	redis  *RedisClient
	window time.Duration
	max    int
}

func NewRateLimiter(r *RedisClient, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{redis: r, window: window, max: max}
}

func rateLimitKey(roomID, userID uuid.UUID) string {
	return fmt.Sprintf("rl:post:%s:%s", roomID.String(), userID.String())
}

// Check returns chat.ErrRateLimited once max posts were made inside the window
func (l *RateLimiter) Check(ctx context.Context, roomID, userID uuid.UUID) error {
	count, err := fixedWindowScript.Run(ctx, l.redis.client,
		[]string{rateLimitKey(roomID, userID)},
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to run rate limiter: %w", err)
	}
	if count > int64(l.max) {
		return chat.ErrRateLimited
	}
	return nil
}
