package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
	"github.com/Sternrassler/exam-archive-cache/pkg/classify"
)

// cacheable reports whether a response may be stored under the full
// request key. Partial content never is.
func cacheable(status int) bool {
	return cache.IsSuccess(status) && status != http.StatusPartialContent
}

// fetch performs the origin request and records failures.
func (c *Client) fetch(class classify.Class, req *http.Request) (*http.Response, error) {
	resp, err := c.transport.RoundTrip(req)
	if errClass := classifyError(resp, err); errClass != "" {
		networkErrorsTotal.WithLabelValues(string(class), string(errClass)).Inc()
	}
	return resp, err
}

// lookup reads key from ns. Store errors other than a miss are logged and
// treated as a miss.
func (c *Client) lookup(ctx context.Context, class classify.Class, ns cache.Namespace, key string) *cache.Entry {
	entry, err := ns.Get(ctx, key)
	if err == nil {
		cache.CacheHits.WithLabelValues(string(class)).Inc()
		c.logger.Debug().
			Str("class", string(class)).
			Str("key", key).
			Dur("age", entry.Age()).
			Msg("Cache hit")
		return entry
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		cache.CacheErrors.WithLabelValues("get").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
	}
	cache.CacheMisses.WithLabelValues(string(class)).Inc()
	return nil
}

// put stores entry in ns. Failures are logged and counted, never returned.
func (c *Client) put(ctx context.Context, ns cache.Namespace, entry *cache.Entry) bool {
	if err := ns.Put(ctx, entry); err != nil {
		cache.CacheErrors.WithLabelValues("put").Inc()
		c.logger.Warn().Err(err).Str("namespace", ns.Name()).Str("key", entry.Key).Msg("Failed to cache response")
		return false
	}
	return true
}

// cacheFirst serves shell assets: a hit never touches the network, a miss
// is fetched and stored on success. Network failures propagate.
func (c *Client) cacheFirst(ctx context.Context, ns cache.Namespace, req *http.Request) (*http.Response, string, error) {
	key := cache.KeyFromRequest(req).String()

	if entry := c.lookup(ctx, classify.ClassShell, ns, key); entry != nil {
		return cache.EntryToResponse(entry, req), sourceCache, nil
	}

	resp, err := c.fetch(classify.ClassShell, req)
	if err != nil {
		return nil, sourceNetwork, err
	}
	if !cacheable(resp.StatusCode) {
		return resp, sourceNetwork, nil
	}

	entry, err := cache.ResponseToEntry(key, resp)
	if err != nil {
		return nil, sourceNetwork, err
	}
	c.put(ctx, ns, entry)
	return resp, sourceNetwork, nil
}

// networkFirst serves metadata: the origin is asked first under
// MetadataTimeout, and a failure falls back to the cached copy or, without
// one, to a synthesized 503. It never returns an error.
func (c *Client) networkFirst(ctx context.Context, ns cache.Namespace, req *http.Request) (*http.Response, string, error) {
	key := cache.KeyFromRequest(req).String()

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.MetadataTimeout)
	defer cancel()

	resp, err := c.fetch(classify.ClassMetadata, req.WithContext(fetchCtx))
	if err == nil {
		// Buffer the body so the timeout covers it too
		var entry *cache.Entry
		entry, err = cache.ResponseToEntry(key, resp)
		if err == nil {
			resp.Request = req
			if cacheable(resp.StatusCode) {
				c.put(ctx, ns, entry)
			}
			return resp, sourceNetwork, nil
		}
		networkErrorsTotal.WithLabelValues(string(classify.ClassMetadata), string(classifyError(nil, err))).Inc()
	}

	c.logger.Warn().
		Err(err).
		Str("path", req.URL.Path).
		Dur("timeout", c.config.MetadataTimeout).
		Msg("Metadata fetch failed, falling back to cache")

	if entry := c.lookup(ctx, classify.ClassMetadata, ns, key); entry != nil {
		return cache.EntryToResponse(entry, req), sourceCache, nil
	}
	return offlineResponse(req, err), sourceOffline, nil
}

// cacheOnDemand serves payload files: a hit never touches the network, a
// miss is fetched and admitted under the payload budget. Budget and store
// failures do not affect the response.
func (c *Client) cacheOnDemand(ctx context.Context, ns cache.Namespace, req *http.Request) (*http.Response, string, error) {
	key := cache.KeyFromRequest(req).String()

	if entry := c.lookup(ctx, classify.ClassPayload, ns, key); entry != nil {
		return cache.EntryToResponse(entry, req), sourceCache, nil
	}

	resp, err := c.fetch(classify.ClassPayload, req)
	if err != nil {
		return nil, sourceNetwork, err
	}
	if !cacheable(resp.StatusCode) {
		return resp, sourceNetwork, nil
	}

	entry, err := cache.ResponseToEntry(key, resp)
	if err != nil {
		return nil, sourceNetwork, err
	}
	c.admit(ctx, ns, entry)
	return resp, sourceNetwork, nil
}

// admit enforces the payload budget and inserts entry.
func (c *Client) admit(ctx context.Context, ns cache.Namespace, entry *cache.Entry) {
	size := entry.Size()

	result, err := c.budget.Enforce(ctx, ns, entry.Key, size)
	if err != nil {
		cache.CacheErrors.WithLabelValues("evict").Inc()
		c.logger.Warn().Err(err).Str("key", entry.Key).Msg("Budget enforcement failed")
	}

	if !c.put(ctx, ns, entry) {
		return
	}

	if err == nil {
		cache.PayloadEntries.Set(float64(result.Entries + 1))
		cache.PayloadBytes.Set(float64(result.Bytes + size))
	}

	c.logger.Debug().
		Str("key", entry.Key).
		Int64("size", size).
		Int("evicted", len(result.Evicted)).
		Msg("Cached payload")
}

// refreshPayloadGauges sets the payload gauges from the active namespace.
func (c *Client) refreshPayloadGauges(ctx context.Context) {
	ns, err := c.lifecycle.Current()
	if err != nil {
		return
	}
	stats, err := ns.Payload.Stats(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read payload stats")
		return
	}
	cache.PayloadEntries.Set(float64(stats.Entries))
	cache.PayloadBytes.Set(float64(stats.Bytes))
}
