// Package cache provides the persistent namespace stores behind the archive
// fetch layer.
//
// A namespace is a named key→entry collection scoped to one asset class and
// one cache version. Entries are kept in insertion order; that order is what
// budget enforcement evicts by.
//
// Two backends are provided:
//
//   - RedisStore keeps each namespace in a hash (entries), a hash (sizes),
//     a sorted set (insertion order) and a running byte counter.
//   - FSStore keeps each namespace in a directory of a core.FS (local disk
//     or in-memory via go-billy) with a JSON index.
//
// # Basic Usage
//
//	store := cache.NewFSStore(billy.NewMemory())
//
//	ns, err := store.Open(ctx, "exam-papers-payload-v1")
//	if err != nil {
//		return err
//	}
//
//	key := cache.KeyFromRequest(req).String()
//	entry, err := ns.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from origin
//	}
//
// # Budget Enforcement
//
//	budget := cache.NewBudget(30, 200<<20, logger)
//	if _, err := budget.Enforce(ctx, ns, key, entry.Size()); err != nil {
//		// best effort: log and continue with the insert
//	}
//	_ = ns.Put(ctx, entry)
//
// Eviction is an insertion-order approximation of LRU: reading an entry does
// not refresh its position.
//
// # Metrics
//
//   - examcache_cache_hits_total{namespace} - Cache hits by namespace kind
//   - examcache_cache_misses_total{namespace} - Cache misses by namespace kind
//   - examcache_evictions_total - Payload entries evicted by the budget
//   - examcache_payload_bytes - Payload namespace size in bytes
//   - examcache_payload_entries - Payload namespace entry count
//   - examcache_cache_errors_total{operation} - Swallowed cache operation errors
package cache
