package store

import (
	"context"
	"errors"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements Store using memcache. Memcache keys may not
// contain whitespace or control characters, so those are replaced.
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
	}
}

func memcacheKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, redisKeyPrefix+key)
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(_ context.Context, key string) ([]byte, error) {
	item, err := m.client.Get(memcacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores a value in memcache without expiration
func (m *MemcacheService) Set(_ context.Context, key string, value []byte) error {
	return m.client.Set(&memcache.Item{
		Key:   memcacheKey(key),
		Value: value,
	})
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(_ context.Context, key string) error {
	err := m.client.Delete(memcacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Close is a no-op; the memcache client manages its own idle pool
func (m *MemcacheService) Close() error {
	return nil
}
