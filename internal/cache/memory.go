package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Cache on patrickmn/go-cache.
type Memory struct {
	mu sync.Mutex
	c  *gocache.Cache
}

func NewMemory(cleanupInterval time.Duration) *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	switch val := v.(type) {
	case []byte:
		return append([]byte(nil), val...), nil
	case int64:
		return []byte(fmt.Sprint(val)), nil
	default:
		return nil, fmt.Errorf("unexpected cached type %T", v)
	}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, append([]byte(nil), value...), ttlOrForever(ttl))
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.c.Get(key); !ok {
		m.c.Set(key, int64(1), gocache.NoExpiration)
		return 1, nil
	}
	return m.c.IncrementInt64(key, 1)
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(key)
	if !ok {
		return nil
	}
	m.c.Set(key, v, ttlOrForever(ttl))
	return nil
}

// ItemCount reports the number of live entries.
func (m *Memory) ItemCount() int {
	return m.c.ItemCount()
}
