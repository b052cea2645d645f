package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const lockKeyPrefix = "mailagent:conversation:"

// RedisLocker serializes conversation runs across replicas with redsync
// distributed mutexes.
type RedisLocker struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLocker connects to Redis and verifies the connection. The TTL
// bounds how long a crashed holder can keep a conversation locked.
func NewRedisLocker(redisURL string, ttl time.Duration, log zerolog.Logger) (*RedisLocker, error) {
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

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RedisLocker{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		log:    log.With().Str("component", "redis-lock").Logger(),
	}, nil
}

// Acquire takes the distributed lock for a conversation. Contention beyond
// redsync's bounded retries surfaces as an error; the caller's job retry
// handles it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(lockKeyPrefix+key, redsync.WithExpiry(l.ttl))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire conversation lock %s: %w", key, err)
	}

	release := func() {
		if _, err := mutex.Unlock(); err != nil {
			l.log.Error().Err(err).Str("conversation_id", key).Msg("failed to release conversation lock")
		}
	}
	return release, nil
}

// Close releases the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
