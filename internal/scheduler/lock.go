package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Lock guards a scheduler tick so only one worker replica dispatches at a time.
// TryLock returns a release func bound to the token it stored; it is nil when
// the lock was not acquired.
type Lock interface {
	TryLock(ctx context.Context) (release ReleaseFunc, acquired bool, err error)
}

// ReleaseFunc gives the tick lock back.
type ReleaseFunc func(ctx context.Context) error

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock stores a random token under key for ttl. The TTL bounds how long a
// crashed worker can block the others.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryLock(ctx context.Context) (ReleaseFunc, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}
