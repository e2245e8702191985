package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	platformerrors "github.com/jmgilman/go/errors"
)

// ErrorClass represents a classification of origin failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassTimeout represents requests cut off by a deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyError categorizes a failed or unsuccessful origin exchange.
// It returns "" for successful responses.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrorClassTimeout
		}
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// offlineResponse synthesizes the 503 returned when metadata is neither
// reachable nor cached. The body is a JSON error document; the cause chain
// is not exposed.
func offlineResponse(req *http.Request, cause error) *http.Response {
	if cause == nil {
		cause = errors.New("origin unreachable")
	}
	perr := platformerrors.WrapWithContext(cause, platformerrors.CodeUnavailable,
		"metadata unavailable offline",
		map[string]interface{}{"path": req.URL.Path},
	)

	body, err := json.Marshal(platformerrors.ToJSON(perr))
	if err != nil {
		body = []byte(`{"code":"SERVICE_UNAVAILABLE","message":"metadata unavailable offline"}`)
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
