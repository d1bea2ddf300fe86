package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when another request holds the session lock
var ErrLockBusy = errors.New("session lock busy")

const defaultLockWait = 2 * time.Second

// Release gives a lock back. Calling it more than once is safe.
type Release func(ctx context.Context) error

// SessionLocker serializes mutations of a single session
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (Release, error)
}

// Only the holder's token may delete the key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a lock backed by SET NX PX. The key expires after ttl
// so a crashed holder cannot block a session forever.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) SessionLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &redisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisLocker) key(sessionID string) string {
	return fmt.Sprintf("session:%s:lock", sessionID)
}

func (l *redisLocker) Acquire(ctx context.Context, sessionID string) (Release, error) {
	key := l.key(sessionID)
	token := uuid.NewString()

	attempt := func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockBusy
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = l.wait

	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return err
	}, nil
}

type localLock struct {
	ch   chan struct{}
	refs int
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

// NewLocalLocker creates an in-process lock for single-instance deployments
func NewLocalLocker(wait time.Duration) SessionLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &localLocker{
		locks: make(map[string]*localLock),
		wait:  wait,
	}
}

func (l *localLocker) Acquire(ctx context.Context, sessionID string) (Release, error) {
	l.mu.Lock()
	lk, ok := l.locks[sessionID]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func(context.Context) error {
			once.Do(func() {
				<-lk.ch
				l.drop(sessionID, lk)
			})
			return nil
		}, nil
	case <-timer.C:
		l.drop(sessionID, lk)
		return nil, ErrLockBusy
	case <-ctx.Done():
		l.drop(sessionID, lk)
		return nil, ctx.Err()
	}
}

func (l *localLocker) drop(sessionID string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, sessionID)
	}
}
