package invoices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 50 * time.Millisecond
)

// ErrLockBusy is returned when the period lock cannot be taken in time.
var ErrLockBusy = errors.New("invoice period lock busy")

// Locker serializes projection writes per (facility, month).
type Locker interface {
	Lock(ctx context.Context, facilityID uuid.UUID, month string) (func(context.Context) error, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
	LockKey(parts ...string) string
}

// RedisLocker takes a SETNX lease with an owner token and retries until the
// context expires.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
	retry time.Duration
}

func NewRedisLocker(store lockStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for invoice lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, ttl: ttl, retry: defaultLockRetry}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, facilityID uuid.UUID, month string) (func(context.Context) error, error) {
	key := l.store.LockKey("invoice", facilityID.String(), month)
	token := uuid.NewString()
	waitCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	for {
		ok, err := l.store.SetNX(waitCtx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if _, err := l.store.ReleaseIfOwner(ctx, key, token); err != nil {
					return fmt.Errorf("release %s: %w", key, err)
				}
				return nil
			}, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, ErrLockBusy
		case <-time.After(l.retry):
		}
	}
}

// LocalLocker is an in-process keyed lock for single-instance and SQLite runs.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]chan struct{}{}}
}

func (l *LocalLocker) Lock(ctx context.Context, facilityID uuid.UUID, month string) (func(context.Context) error, error) {
	key := facilityID.String() + ":" + month
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func(context.Context) error {
			once.Do(func() { <-slot })
			return nil
		}, nil
	case <-ctx.Done():
		return nil, ErrLockBusy
	}
}
