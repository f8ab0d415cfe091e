package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises read-check-write sequences against the confirmed set.
// Lock blocks until the lock is held or ctx is done; the returned function
// releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// MutexLocker is a context-aware in-process lock for single-instance
// deployments.
type MutexLocker struct {
	sem chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

func (m *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case m.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-m.sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const (
	DefaultLockKey   = "holidaylet:booking-writer"
	DefaultLockTTL   = 30 * time.Second
	defaultLockRetry = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a single-key Redis lock shared by every instance that
// writes to the same store. The key's TTL is renewed every ttl/3 while the
// lock is held, so a long import keeps it; the TTL only bounds how long a
// crashed holder blocks the others.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	retry  time.Duration
	renew  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, retry: defaultLockRetry, renew: max(ttl/3, time.Millisecond)}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire %s: %w", l.key, err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(token, stop, done)
			return l.releaser(token, stop, done), nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// keepAlive renews the key until stop is closed or the token is lost.
func (l *RedisLocker) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.renew)
		n, err := renewScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err == nil && n == 0 {
			// expired or taken over; nothing left to renew
			return
		}
	}
}

func (l *RedisLocker) releaser(token string, stop chan<- struct{}, done <-chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// a failed release is left to expire after ttl
			_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
		})
	}
}
