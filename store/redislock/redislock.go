/*
Package redislock provides a leave.Locker backed by Redis.

PURPOSE:
  Serializes balance mutations for one user across several server
  processes sharing a database. Each key is a Redis string set with
  SET NX PX; the value is a random token so that only the holder can
  release it.

EXPIRY:
  The TTL bounds how long a crashed holder can block others. It must be
  longer than the slowest WithTx the service runs.

SEE ALSO:
  - leave/lock.go: Locker interface and the in-process KeyedMutex
*/
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "leave:lock:user:"

// release deletes the key only if it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func New(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{client: client, ttl: ttl, retry: 25 * time.Millisecond, logger: logger}
}

// NewClient returns a pinged Redis client.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := release.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("redis unlock failed", zap.String("key", redisKey), zap.Error(err))
		}
	}, nil
}
