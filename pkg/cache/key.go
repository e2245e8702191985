package cache

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// CacheKey represents a unique identifier for a cached origin response.
// Only same-origin requests are cached, so the origin is not part of the key.
type CacheKey struct {
	// Method is the HTTP method (only GET is ever cached)
	Method string

	// Path is the request path (e.g., "/metadata/subject_12.json")
	Path string

	// QueryParams are the query parameters
	QueryParams url.Values
}

// KeyFromRequest builds the cache key for req.
func KeyFromRequest(req *http.Request) CacheKey {
	key := CacheKey{Method: req.Method}
	if req.URL != nil {
		key.Path = req.URL.Path
		key.QueryParams = req.URL.Query()
	}
	return key
}

// String generates a deterministic cache key string.
// Format: METHOD /clean/path?sorted=query
//
// Example:
//
//	GET /metadata/subject_12.json
func (k CacheKey) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}

	p := "/" + strings.TrimLeft(k.Path, "/")
	p = path.Clean(p)

	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(p)

	// Encode sorts by key
	if len(k.QueryParams) > 0 {
		b.WriteByte('?')
		b.WriteString(k.QueryParams.Encode())
	}

	return b.String()
}
