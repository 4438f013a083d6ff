package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker is a SET NX lock shared by every server instance. Locks expire
// after ttl so a crashed holder cannot block a key forever.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewLocker(client *Client, ttl, retry time.Duration) *Locker {
	return &Locker{client: client.Client, ttl: ttl, retry: retry}
}

// TryLock makes a single acquisition attempt.
func (l *Locker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	key := lockKey(name)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() { l.release(key, token) }, true, nil
}

// LockContext retries TryLock until it succeeds or ctx is done.
func (l *Locker) LockContext(ctx context.Context, name string) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		unlock, ok, err := l.TryLock(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock, it will expire")
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
