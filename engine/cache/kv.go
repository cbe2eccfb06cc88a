// Package cache implements the cache-aside layer fronting catalog queries.
// Values are opaque serialized JSON; entries are written wholesale and only
// ever leave the cache by TTL expiry.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ErrMiss is returned by KV.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// KV is the key-value store contract the manager runs against. Implementations
// must treat Set TTLs per entry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Memory is an in-process KV backed by ttlcache.
type Memory struct {
	c *ttlcache.Cache[string, []byte]
}

// NewMemory creates a Memory store and starts its expiry janitor.
func NewMemory() *Memory {
	c := ttlcache.New[string, []byte]()
	go c.Start()
	return &Memory{c: c}
}

// Get returns the cached value or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	item := m.c.Get(key)
	if item == nil {
		return nil, ErrMiss
	}
	return item.Value(), nil
}

// Set stores value under key with the given TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// Close stops the expiry janitor.
func (m *Memory) Close() {
	m.c.Stop()
}
