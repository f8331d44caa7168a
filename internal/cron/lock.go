package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lock keeps two cron-worker replicas from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	LockKey(parts ...string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
}

// CycleLock is a per-environment Redis lease. The lease outlives a normal
// cycle so a crashed holder blocks at most one extra interval.
type CycleLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewCycleLock(store lockStore, env string, interval time.Duration) (*CycleLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for cron lock")
	}
	if env == "" {
		env = "default"
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &CycleLock{
		store: store,
		key:   store.LockKey("cron-worker", env),
		ttl:   2 * interval,
	}, nil
}

func (l *CycleLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release is a no-op when this instance does not hold the lease, including
// after the lease expired and another replica took it.
func (l *CycleLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
