package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryLayer is an in-process read layer backed by ristretto in front of a
// persistent namespace. Writes go through to the namespace first; the layer
// only ever holds copies of what the namespace holds.
type MemoryLayer struct {
	inner Namespace
	rc    *ristretto.Cache[string, *Entry]
	ttl   time.Duration
}

// NewMemoryLayer wraps inner with an in-process cache holding up to maxBytes
// of entry bodies. A zero ttl keeps entries until they are evicted by cost.
func NewMemoryLayer(inner Namespace, maxBytes int64, ttl time.Duration) (*MemoryLayer, error) {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, *Entry]{
		// ristretto recommends ~10x the expected item count; assume 4 KiB items
		NumCounters: max(maxBytes/4096*10, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryLayer{inner: inner, rc: rc, ttl: ttl}, nil
}

func (m *MemoryLayer) Name() string {
	return m.inner.Name()
}

// Get serves from memory when possible and promotes namespace hits.
func (m *MemoryLayer) Get(ctx context.Context, key string) (*Entry, error) {
	if e, ok := m.rc.Get(key); ok {
		return e.Clone(), nil
	}

	entry, err := m.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	m.remember(entry)
	return entry, nil
}

// Put writes through to the namespace, then refreshes the memory copy.
func (m *MemoryLayer) Put(ctx context.Context, entry *Entry) error {
	if err := m.inner.Put(ctx, entry); err != nil {
		m.rc.Del(entry.Key)
		return err
	}
	m.remember(entry)
	return nil
}

func (m *MemoryLayer) Delete(ctx context.Context, key string) error {
	m.rc.Del(key)
	return m.inner.Delete(ctx, key)
}

func (m *MemoryLayer) Entries(ctx context.Context) ([]EntryInfo, error) {
	return m.inner.Entries(ctx)
}

func (m *MemoryLayer) Stats(ctx context.Context) (Stats, error) {
	return m.inner.Stats(ctx)
}

// Close stops ristretto's background goroutines. The wrapped namespace is
// left untouched.
func (m *MemoryLayer) Close() error {
	m.rc.Close()
	return nil
}

func (m *MemoryLayer) remember(entry *Entry) {
	m.rc.SetWithTTL(entry.Key, entry.Clone(), max(entry.Size(), 1), m.ttl)
	m.rc.Wait()
}
