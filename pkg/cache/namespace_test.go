package cache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(key string, size int) *Entry {
	return &Entry{
		Key:        key,
		Data:       make([]byte, size),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/pdf"}},
	}
}

func keysOf(infos []EntryInfo) []string {
	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	return keys
}

// runStoreSuite exercises the Store/Namespace contract against a backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("get miss", func(t *testing.T) {
		ns, err := newStore(t).Open(context.Background(), "suite-miss")
		require.NoError(t, err)

		_, err = ns.Get(context.Background(), "GET /nope")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("put and get", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-put")
		require.NoError(t, err)

		entry := &Entry{
			Key:        "GET /metadata/subject_12.json",
			Data:       []byte(`{"papers":[]}`),
			StatusCode: http.StatusOK,
			Headers:    http.Header{"Etag": []string{`"v1"`}},
		}
		require.NoError(t, ns.Put(ctx, entry))

		got, err := ns.Get(ctx, entry.Key)
		require.NoError(t, err)
		assert.Equal(t, entry.Data, got.Data)
		assert.Equal(t, http.StatusOK, got.StatusCode)
		assert.Equal(t, `"v1"`, got.Headers.Get("Etag"))
	})

	t.Run("insertion order and stats", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-order")
		require.NoError(t, err)

		for _, key := range []string{"A", "B", "C"} {
			require.NoError(t, ns.Put(ctx, newEntry(key, 10)))
		}

		infos, err := ns.Entries(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, keysOf(infos))

		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Entries: 3, Bytes: 30}, stats)
	})

	t.Run("replace moves entry to newest and adjusts bytes", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-replace")
		require.NoError(t, err)

		require.NoError(t, ns.Put(ctx, newEntry("A", 10)))
		require.NoError(t, ns.Put(ctx, newEntry("B", 10)))
		require.NoError(t, ns.Put(ctx, newEntry("A", 25)))

		infos, err := ns.Entries(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A"}, keysOf(infos))

		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Entries: 2, Bytes: 35}, stats)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-delete")
		require.NoError(t, err)

		require.NoError(t, ns.Put(ctx, newEntry("A", 10)))
		require.NoError(t, ns.Put(ctx, newEntry("B", 7)))
		require.NoError(t, ns.Delete(ctx, "A"))
		require.NoError(t, ns.Delete(ctx, "missing"))

		_, err = ns.Get(ctx, "A")
		assert.ErrorIs(t, err, ErrCacheMiss)

		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Entries: 1, Bytes: 7}, stats)
	})

	t.Run("names and drop", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for _, name := range []string{"app-shell-v1", "app-shell-v2"} {
			ns, err := store.Open(ctx, name)
			require.NoError(t, err)
			require.NoError(t, ns.Put(ctx, newEntry("GET /", 3)))
		}

		names, err := store.Names(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "app-shell-v1")
		assert.Contains(t, names, "app-shell-v2")

		require.NoError(t, store.Drop(ctx, "app-shell-v1"))

		names, err = store.Names(ctx)
		require.NoError(t, err)
		assert.NotContains(t, names, "app-shell-v1")
		assert.Contains(t, names, "app-shell-v2")

		// A reopened namespace starts empty
		ns, err := store.Open(ctx, "app-shell-v1")
		require.NoError(t, err)
		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Entries)
	})

	t.Run("invalid names rejected", func(t *testing.T) {
		store := newStore(t)
		for _, name := range []string{"", "..", "a/b", "a:b"} {
			_, err := store.Open(context.Background(), name)
			assert.True(t, errors.Is(err, ErrInvalidName), "name %q: %v", name, err)
		}
	})

	t.Run("concurrent puts keep totals consistent", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-concurrent")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = ns.Put(ctx, newEntry(string(rune('a'+i)), 5))
			}(i)
		}
		wg.Wait()

		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Entries: 20, Bytes: 100}, stats)
	})

	t.Run("concurrent same-key", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-same-key")
		require.NoError(t, err)
		require.NoError(t, ns.Put(ctx, newEntry("GET /papers/keep.pdf", 3)))

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					if (i+j)%3 == 0 {
						_ = ns.Delete(ctx, "GET /papers/a.pdf")
						continue
					}
					_ = ns.Put(ctx, newEntry("GET /papers/a.pdf", 100+i))
				}
			}(i)
		}
		wg.Wait()

		infos, err := ns.Entries(ctx)
		require.NoError(t, err)
		var sum int64
		for _, info := range infos {
			sum += info.Size
		}

		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(infos), stats.Entries)
		assert.Equal(t, sum, stats.Bytes)
	})

	t.Run("concurrent deletes of one entry", func(t *testing.T) {
		ctx := context.Background()
		ns, err := newStore(t).Open(ctx, "suite-delete-race")
		require.NoError(t, err)

		for round := 0; round < 5; round++ {
			require.NoError(t, ns.Put(ctx, newEntry("GET /papers/a.pdf", 1000)))

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = ns.Delete(ctx, "GET /papers/a.pdf")
				}()
			}
			wg.Wait()
		}

		stats, err := ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Entries: 0, Bytes: 0}, stats)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = ns.Put(ctx, newEntry("GET /papers/a.pdf", 1000))
			}()
		}
		wg.Wait()

		stats, err = ns.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Entries: 1, Bytes: 1000}, stats)
	})

	t.Run("stale handle after drop", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		ns, err := store.Open(ctx, "app-payload-v1")
		require.NoError(t, err)
		require.NoError(t, ns.Put(ctx, newEntry("GET /papers/a.pdf", 10)))

		require.NoError(t, store.Drop(ctx, "app-payload-v1"))

		assert.ErrorIs(t, ns.Put(ctx, newEntry("GET /papers/b.pdf", 10)), ErrNamespaceDropped)
		assert.ErrorIs(t, ns.Delete(ctx, "GET /papers/a.pdf"), ErrNamespaceDropped)

		// The failed write left nothing behind
		names, err := store.Names(ctx)
		require.NoError(t, err)
		assert.NotContains(t, names, "app-payload-v1")

		fresh, err := store.Open(ctx, "app-payload-v1")
		require.NoError(t, err)
		stats, err := fresh.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats)
		assert.NoError(t, fresh.Put(ctx, newEntry("GET /papers/b.pdf", 10)))
	})
}
