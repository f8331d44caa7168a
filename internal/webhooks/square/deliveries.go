package squarewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	deliveryLease   = 2 * time.Minute
	leaseMarker     = "leased"
	processedMarker = "processed"
)

// Delivery classifies an incoming notification against earlier attempts.
type Delivery int

const (
	DeliveryFresh Delivery = iota
	DeliveryProcessed
	DeliveryInProgress
)

type markerStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Deliveries tracks Square event ids. Begin leases an id for a short window;
// Finish replaces the lease with a processed marker kept for ttl, and
// Abandon drops it so Square's next retry runs the handler again. A replica
// that dies mid-event loses nothing: its lease simply expires.
type Deliveries struct {
	store markerStore
	scope string
	ttl   time.Duration
	lease time.Duration
}

func NewDeliveries(store markerStore, scope string, ttl time.Duration) (*Deliveries, error) {
	switch {
	case store == nil:
		return nil, errors.New("marker store is required")
	case strings.TrimSpace(scope) == "":
		return nil, errors.New("scope is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	lease := deliveryLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Deliveries{store: store, scope: scope, ttl: ttl, lease: lease}, nil
}

func (d *Deliveries) Begin(ctx context.Context, eventID string) (Delivery, error) {
	key, err := d.key(eventID)
	if err != nil {
		return DeliveryInProgress, err
	}
	leased, err := d.store.SetNX(ctx, key, leaseMarker, d.lease)
	if err != nil {
		return DeliveryInProgress, fmt.Errorf("lease %s: %w", eventID, err)
	}
	if leased {
		return DeliveryFresh, nil
	}
	marker, err := d.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return DeliveryInProgress, nil
	case err != nil:
		return DeliveryInProgress, fmt.Errorf("read marker %s: %w", eventID, err)
	case marker == processedMarker:
		return DeliveryProcessed, nil
	}
	return DeliveryInProgress, nil
}

func (d *Deliveries) Finish(ctx context.Context, eventID string) error {
	key, err := d.key(eventID)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, key, processedMarker, d.ttl)
}

func (d *Deliveries) Abandon(ctx context.Context, eventID string) error {
	key, err := d.key(eventID)
	if err != nil {
		return err
	}
	return d.store.Del(ctx, key)
}

func (d *Deliveries) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return d.store.IdempotencyKey(d.scope, eventID), nil
}
