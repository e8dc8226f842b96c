package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/internal/provider/sqlite"
	"github.com/dwsmith1983/wastecal/internal/provider/sqlstore"
)

// NewStore opens a migrated SQLite store in a per-test temp directory.
func NewStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "wastecal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var _ provider.Locker = (*MockLocker)(nil)

// MockLocker is an in-memory provider.Locker. Locks it acquired are owned by
// it; Hold simulates a lock owned by another process.
type MockLocker struct {
	mu       sync.Mutex
	held     map[string]bool // key -> owned by this locker
	acquires int
	extends  int
}

// NewMockLocker creates an unlocked MockLocker.
func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

// AcquireLock implements provider.Locker. TTLs are ignored; use Expire.
func (m *MockLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquires++
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

// ExtendLock implements provider.Locker.
func (m *MockLocker) ExtendLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extends++
	return m.held[key], nil
}

// ReleaseLock implements provider.Locker. Locks held by another process are
// left alone.
func (m *MockLocker) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		delete(m.held, key)
	}
	return nil
}

// Hold marks key as held by another process.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = false
}

// Expire drops key as if its TTL lapsed, whoever owned it.
func (m *MockLocker) Expire(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}

// HeldElsewhere reports whether another process holds key.
func (m *MockLocker) HeldElsewhere(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned, ok := m.held[key]
	return ok && !owned
}

// Acquires returns how many acquire attempts were made.
func (m *MockLocker) Acquires() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}

// Extends returns how many extend attempts were made.
func (m *MockLocker) Extends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extends
}
