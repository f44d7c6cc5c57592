package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a cross-instance lock taken after the local overlap guard. It lets
// several processes share one database without sweeping concurrently.
type Lease interface {
	// Acquire returns ok == false when another holder owns name.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements Lease with SET NX PX and a token-checked release.
type RedisLease struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLease(client redis.UniversalClient, prefix string) *RedisLease {
	if prefix == "" {
		prefix = "ticket-lifecycle:lease:"
	}
	return &RedisLease{client: client, prefix: prefix}
}

func (l *RedisLease) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	return release, true, nil
}
