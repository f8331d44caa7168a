package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

type fakeStore struct {
	values   map[string]string
	ttls     map[string]time.Duration
	setNXErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fb:idempotency:" + scope + ":" + id
}

func TestClaimLifecycle(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	eventID := uuid.New()
	key := "fb:idempotency:evt:invoice-projection:" + eventID.String()

	status, err := manager.Claim(ctx, "invoice-projection", eventID)
	if err != nil || status != Acquired {
		t.Fatalf("first claim: status=%v err=%v", status, err)
	}
	if store.ttls[key] != defaultLease {
		t.Fatalf("expected pending lease %v, got %v", defaultLease, store.ttls[key])
	}

	status, err = manager.Claim(ctx, "invoice-projection", eventID)
	if err != nil || status != InFlight {
		t.Fatalf("concurrent claim: status=%v err=%v", status, err)
	}

	if err := manager.Complete(ctx, "invoice-projection", eventID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if store.ttls[key] != 7*24*time.Hour {
		t.Fatalf("expected done ttl, got %v", store.ttls[key])
	}
	status, err = manager.Claim(ctx, "invoice-projection", eventID)
	if err != nil || status != Done {
		t.Fatalf("redelivery claim: status=%v err=%v", status, err)
	}
}

func TestReleaseAllowsImmediateRetry(t *testing.T) {
	store := newFakeStore()
	manager, _ := NewManager(store, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	if status, _ := manager.Claim(ctx, "invoice-projection", eventID); status != Acquired {
		t.Fatalf("expected acquired")
	}
	if err := manager.Release(ctx, "invoice-projection", eventID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if status, _ := manager.Claim(ctx, "invoice-projection", eventID); status != Acquired {
		t.Fatalf("expected re-acquire after release")
	}
}

func TestClaimValidatesAndSurfacesErrors(t *testing.T) {
	store := newFakeStore()
	manager, _ := NewManager(store, 30*time.Second)
	if manager.lease != 30*time.Second {
		t.Fatalf("lease should not outlive ttl, got %v", manager.lease)
	}
	if _, err := manager.Claim(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected consumer error")
	}
	if _, err := manager.Claim(context.Background(), "invoice-projection", uuid.Nil); err == nil {
		t.Fatal("expected event id error")
	}
	store.setNXErr = errors.New("boom")
	if _, err := manager.Claim(context.Background(), "invoice-projection", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
}
