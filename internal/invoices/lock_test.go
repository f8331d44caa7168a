package invoices

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockStore struct {
	mu       sync.Mutex
	owners   map[string]string
	setErr   error
	released []string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{owners: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, taken := f.owners[key]; taken {
		return false, nil
	}
	f.owners[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) ReleaseIfOwner(ctx context.Context, key, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owners[key] != token {
		return false, nil
	}
	delete(f.owners, key)
	f.released = append(f.released, key)
	return true, nil
}

func (f *fakeLockStore) LockKey(parts ...string) string {
	return "lock:" + strings.Join(parts, ":")
}

func TestRedisLockerExcludesConcurrentHolders(t *testing.T) {
	store := newFakeLockStore()
	locker, err := NewRedisLocker(store, 200*time.Millisecond)
	require.NoError(t, err)
	locker.retry = 5 * time.Millisecond
	facility := uuid.New()

	release, err := locker.Lock(context.Background(), facility, "2025-06")
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), facility, "2025-06")
	assert.ErrorIs(t, err, ErrLockBusy)

	other, err := locker.Lock(context.Background(), facility, "2025-07")
	require.NoError(t, err)
	require.NoError(t, other(context.Background()))

	require.NoError(t, release(context.Background()))
	assert.Contains(t, store.released, "lock:invoice:"+facility.String()+":2025-06")

	again, err := locker.Lock(context.Background(), facility, "2025-06")
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	store := newFakeLockStore()
	locker, err := NewRedisLocker(store, time.Second)
	require.NoError(t, err)
	locker.retry = 5 * time.Millisecond
	facility := uuid.New()

	release, err := locker.Lock(context.Background(), facility, "2025-06")
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = release(context.Background())
	}()

	second, err := locker.Lock(context.Background(), facility, "2025-06")
	require.NoError(t, err)
	require.NoError(t, second(context.Background()))
}

func TestRedisLockerSurfacesStoreErrors(t *testing.T) {
	store := newFakeLockStore()
	store.setErr = errors.New("connection refused")
	locker, err := NewRedisLocker(store, 0)
	require.NoError(t, err)

	_, err = locker.Lock(context.Background(), uuid.New(), "2025-06")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = NewRedisLocker(nil, 0)
	assert.Error(t, err)
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	facility := uuid.New()

	release, err := locker.Lock(context.Background(), facility, "2025-06")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, facility, "2025-06")
	assert.ErrorIs(t, err, ErrLockBusy)

	require.NoError(t, release(context.Background()))
	require.NoError(t, release(context.Background()))

	again, err := locker.Lock(context.Background(), facility, "2025-06")
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}
