package cache

import (
	"bytes"
	"net/http"
	"time"
)

// Entry represents a cached origin response.
type Entry struct {
	// Key is the normalized request key (see CacheKey.String).
	Key string `json:"key"`

	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers, stored untouched
	Headers http.Header `json:"headers"`

	// StoredAt is when we cached this response
	StoredAt time.Time `json:"stored_at"`
}

// Size returns the blob length used for budget accounting.
func (e *Entry) Size() int64 {
	return int64(len(e.Data))
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	if e.StoredAt.IsZero() {
		return 0
	}
	return time.Since(e.StoredAt)
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		Key:        e.Key,
		Data:       bytes.Clone(e.Data),
		StatusCode: e.StatusCode,
		Headers:    e.Headers.Clone(),
		StoredAt:   e.StoredAt,
	}
}
