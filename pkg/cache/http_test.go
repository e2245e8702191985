package cache

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, true},
		{http.StatusNoContent, true},
		{http.StatusPartialContent, true},
		{http.StatusNotModified, false},
		{http.StatusNotFound, false},
		{http.StatusServiceUnavailable, false},
		{199, false},
	}

	for _, tt := range tests {
		if got := IsSuccess(tt.status); got != tt.want {
			t.Errorf("IsSuccess(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestResponseToEntry(t *testing.T) {
	tests := []struct {
		name    string
		resp    *http.Response
		wantErr bool
	}{
		{
			name: "pdf response with headers",
			resp: &http.Response{
				StatusCode: 200,
				Header: http.Header{
					"Content-Type":  []string{"application/pdf"},
					"Cache-Control": []string{"public, max-age=31536000"},
					"Etag":          []string{`"cs2024"`},
				},
				Body: io.NopCloser(bytes.NewReader([]byte("%PDF-1.7 ..."))),
			},
		},
		{
			name: "response without body",
			resp: &http.Response{
				StatusCode: 204,
				Header:     http.Header{},
			},
		},
		{
			name:    "nil response",
			resp:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var original []byte
			if tt.resp != nil && tt.resp.Body != nil {
				original, _ = io.ReadAll(tt.resp.Body)
				tt.resp.Body = io.NopCloser(bytes.NewReader(original))
			}

			entry, err := ResponseToEntry("GET /x", tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResponseToEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if entry.Key != "GET /x" {
				t.Errorf("Key = %q, want %q", entry.Key, "GET /x")
			}
			if !bytes.Equal(entry.Data, original) {
				t.Errorf("Data = %q, want %q", entry.Data, original)
			}
			if entry.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %v, want %v", entry.StatusCode, tt.resp.StatusCode)
			}
			if entry.Headers.Get("Etag") != tt.resp.Header.Get("Etag") {
				t.Errorf("Etag header = %q, want %q", entry.Headers.Get("Etag"), tt.resp.Header.Get("Etag"))
			}
			if entry.StoredAt.IsZero() {
				t.Error("StoredAt was not set")
			}

			// Verify body was restored
			restored, _ := io.ReadAll(tt.resp.Body)
			if !bytes.Equal(restored, original) {
				t.Errorf("restored body = %q, want %q", restored, original)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/papers/CS/CS2024.pdf", nil)
	entry := &Entry{
		Key:        "GET /papers/CS/CS2024.pdf",
		Data:       []byte("%PDF-1.7"),
		StatusCode: http.StatusOK,
		Headers: http.Header{
			"Content-Type":  []string{"application/pdf"},
			"Accept-Ranges": []string{"bytes"},
		},
	}

	resp := EntryToResponse(entry, req)

	if resp.StatusCode != http.StatusOK || resp.Status != "200 OK" {
		t.Errorf("status = %d %q, want 200 \"200 OK\"", resp.StatusCode, resp.Status)
	}
	if resp.Request != req {
		t.Error("Request not attached to response")
	}
	if resp.ContentLength != int64(len(entry.Data)) {
		t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(entry.Data))
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		t.Error("captured headers were not passed through")
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "%PDF-1.7" {
		t.Errorf("body = %q", body)
	}

	// Mutating the response must not touch the stored entry
	resp.Header.Set("Content-Type", "text/plain")
	if entry.Headers.Get("Content-Type") != "application/pdf" {
		t.Error("response shares headers with the entry")
	}
}
