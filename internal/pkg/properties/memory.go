package properties

import (
	"context"
	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps properties in process memory. Entries never expire.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, cache.NoExpiration)}
}

func memoryKey(artifactID, key string) string {
	return artifactID + "\x00" + key
}

func (m *MemoryStore) Get(_ context.Context, artifactID, key string) (string, bool, error) {
	v, ok := m.cache.Get(memoryKey(artifactID, key))
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *MemoryStore) Set(_ context.Context, artifactID, key, value string) error {
	m.cache.Set(memoryKey(artifactID, key), value, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) Has(ctx context.Context, artifactID, key string) (bool, error) {
	_, ok, err := m.Get(ctx, artifactID, key)
	return ok, err
}

func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}
