package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	statePending = "pending"
	stateDone    = "done"

	defaultLease = 2 * time.Minute
)

// Status is the outcome of a Claim.
type Status int

const (
	// Acquired means the caller owns the event and must Complete or Release.
	Acquired Status = iota
	// Done means a previous delivery finished the event.
	Done
	// InFlight means another replica holds the lease right now.
	InFlight
)

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager deduplicates Pub/Sub redeliveries per consumer. A claim starts as
// a short pending lease, so a worker that dies mid-event does not swallow
// it; Complete swaps the lease for a long-lived done marker.
type Manager struct {
	store store
	ttl   time.Duration
	lease time.Duration
}

func NewManager(store store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := defaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Status, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := m.store.SetNX(ctx, key, statePending, m.lease)
	if err != nil {
		return InFlight, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return Acquired, nil
	}
	state, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		// lease expired between SETNX and GET; let redelivery retry
		return InFlight, nil
	}
	if err != nil {
		return InFlight, fmt.Errorf("read %s: %w", key, err)
	}
	if state == stateDone {
		return Done, nil
	}
	return InFlight, nil
}

func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, stateDone, m.ttl)
}

// Release drops a pending claim so the next delivery can retry at once.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
