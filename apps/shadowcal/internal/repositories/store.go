package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// KeyValueStore is the persistence contract for sync state. Expired entries
// behave as absent. A ttl <= 0 means the entry never expires.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Purger is implemented by stores that can drop expired entries in bulk.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl)
	return &at
}

type memoryEntry struct {
	value     []byte
	expiresAt *time.Time
}

type MemoryStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

func NewMemoryStore(clk clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		mu:      sync.RWMutex{},
		clock:   clk,
		entries: map[string]memoryEntry{},
	}
}

func (store *MemoryStore) live(entry memoryEntry) bool {
	return entry.expiresAt == nil || store.clock.Now().Before(*entry.expiresAt)
}

func (store *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	entry, ok := store.entries[key]
	if !ok || !store.live(entry) {
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)

	return value, true, nil
}

func (store *MemoryStore) Set(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	store.entries[key] = memoryEntry{
		value:     stored,
		expiresAt: expiresAt(store.clock.Now(), ttl),
	}

	return nil
}

func (store *MemoryStore) Delete(_ context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.entries, key)
	return nil
}

func (store *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	entry, ok := store.entries[key]
	return ok && store.live(entry), nil
}

func (store *MemoryStore) Purge(_ context.Context) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var purged int64
	for key, entry := range store.entries {
		if !store.live(entry) {
			delete(store.entries, key)
			purged++
		}
	}

	return purged, nil
}
