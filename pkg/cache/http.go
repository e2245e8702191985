package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// IsSuccess reports whether status is a clearly successful (2xx) response.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// ResponseToEntry converts an HTTP response to an Entry stored under key.
// It reads the response body and restores it for the caller.
func ResponseToEntry(key string, resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Key:        key,
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		StoredAt:   time.Now(),
	}, nil
}

// EntryToResponse converts a cache entry back to an HTTP response for req.
// Headers are returned exactly as captured from the origin.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(bytes.Clone(entry.Data))),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}
