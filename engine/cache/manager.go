package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AxleData/axle/pkg/metrics"
)

// TTL classes per resource type.
const (
	TTLYears  = 24 * time.Hour
	TTLMakes  = 24 * time.Hour
	TTLModels = 24 * time.Hour
	TTLSearch = time.Hour
)

// opTimeout bounds a single cache read or write. The backing store failing
// slow must not stall the request path.
const opTimeout = 500 * time.Millisecond

// Manager implements cache-aside over a KV store. All cache failures are
// absorbed: a read error is a miss, a write error is logged and dropped.
type Manager struct {
	kv     KV
	log    *slog.Logger
	hits   *metrics.Counter
	misses *metrics.Counter
}

// NewManager creates a Manager. reg may be nil when metrics are not wanted.
func NewManager(kv KV, log *slog.Logger, reg *metrics.Registry) *Manager {
	m := &Manager{kv: kv, log: log}
	if reg != nil {
		m.hits = reg.Counter("cache_hits_total", "Cache-aside read hits")
		m.misses = reg.Counter("cache_misses_total", "Cache-aside read misses (including read errors)")
	}
	return m
}

// GetOrCompute returns the cached payload under key, or invokes compute,
// writes the result through with the given TTL, and returns it. A hit and the
// corresponding miss-then-compute return byte-identical payloads.
func (m *Manager) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, opTimeout)
	val, err := m.kv.Get(readCtx, key)
	cancel()
	if err == nil {
		if m.hits != nil {
			m.hits.Inc()
		}
		return val, nil
	}
	if !errors.Is(err, ErrMiss) {
		m.log.Warn("cache read failed, treating as miss", "key", key, "err", err)
	}
	if m.misses != nil {
		m.misses.Inc()
	}

	val, err = compute(ctx)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.kv.Set(writeCtx, key, val, ttl); err != nil {
		m.log.Warn("cache write failed", "key", key, "err", err)
	}
	return val, nil
}

// Key builds a namespaced cache key: resource type plus the discriminating
// parameters of the query. Textual params are lowercased so equivalent
// queries share an entry.
func Key(resource string, params ...any) string {
	var b strings.Builder
	b.WriteString(resource)
	for _, p := range params {
		b.WriteByte(':')
		switch v := p.(type) {
		case string:
			b.WriteString(strings.ToLower(v))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}
