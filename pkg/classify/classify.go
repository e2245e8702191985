// Package classify assigns intercepted requests to an asset class.
package classify

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Class is the asset class of a request; it selects the caching strategy.
type Class string

const (
	// ClassShell covers app markup, script, style and manifest files.
	ClassShell Class = "shell"

	// ClassMetadata covers JSON descriptors under the metadata directory.
	ClassMetadata Class = "metadata"

	// ClassPayload covers exam documents (PDFs and images).
	ClassPayload Class = "payload"

	// ClassUnhandled requests bypass the cache entirely.
	ClassUnhandled Class = "unhandled"
)

// DefaultMetadataSegment is the reserved path segment for metadata documents.
const DefaultMetadataSegment = "metadata"

// DefaultPayloadExtensions are the payload file extensions (without dot).
var DefaultPayloadExtensions = []string{"pdf", "jpg", "jpeg", "png"}

// Config holds classifier configuration.
type Config struct {
	// Origin is the archive origin, e.g. "https://papers.example.com".
	Origin string

	// MetadataSegment is the reserved metadata directory segment.
	MetadataSegment string

	// PayloadExtensions is the payload extension allow-list.
	PayloadExtensions []string
}

// DefaultConfig returns the classifier configuration for origin.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:            origin,
		MetadataSegment:   DefaultMetadataSegment,
		PayloadExtensions: DefaultPayloadExtensions,
	}
}

// Classifier is a pure function of the request. It is safe for concurrent use.
type Classifier struct {
	scheme     string
	host       string
	segment    string
	extensions map[string]struct{}
}

// New creates a classifier.
func New(cfg Config) (*Classifier, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin must be absolute (got %q)", cfg.Origin)
	}

	segment := cfg.MetadataSegment
	if segment == "" {
		segment = DefaultMetadataSegment
	}

	exts := cfg.PayloadExtensions
	if len(exts) == 0 {
		exts = DefaultPayloadExtensions
	}
	extensions := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}

	return &Classifier{
		scheme:     strings.ToLower(origin.Scheme),
		host:       strings.ToLower(origin.Host),
		segment:    segment,
		extensions: extensions,
	}, nil
}

// Classify returns the asset class of req.
func (c *Classifier) Classify(req *http.Request) Class {
	if req == nil || req.URL == nil {
		return ClassUnhandled
	}
	if req.Method != http.MethodGet && req.Method != "" {
		return ClassUnhandled
	}
	if !c.sameOrigin(req.URL) {
		return ClassUnhandled
	}

	p := req.URL.Path
	for _, seg := range strings.Split(p, "/") {
		if seg == c.segment {
			return ClassMetadata
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if _, ok := c.extensions[ext]; ok && ext != "" {
		return ClassPayload
	}

	return ClassShell
}

// Origin returns the normalized origin as scheme://host.
func (c *Classifier) Origin() string {
	return c.scheme + "://" + c.host
}

// sameOrigin treats relative URLs as same-origin.
func (c *Classifier) sameOrigin(u *url.URL) bool {
	if u.Host == "" {
		return true
	}
	if !strings.EqualFold(u.Host, c.host) {
		return false
	}
	return u.Scheme == "" || strings.EqualFold(u.Scheme, c.scheme)
}
