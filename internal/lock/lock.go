package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises passes across hosts with a single Redis key.
type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Only delete the key if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func New(url, key string, ttl time.Duration) (*Locker, error) {
	if key == "" {
		return nil, errors.New("missing lock key")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Locker{client: redis.NewClient(opt), key: key, ttl: ttl}, nil
}

func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Acquire tries to take the lock once. ok is false when another holder has it.
func (l *Locker) Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release = func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}

func (l *Locker) Close() error {
	return l.client.Close()
}
