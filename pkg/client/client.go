// Package client provides the archive fetch client: an http.RoundTripper
// that routes every request through the caching strategy of its asset class.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/exam-archive-cache/internal/transport"
	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
	"github.com/Sternrassler/exam-archive-cache/pkg/classify"
	"github.com/Sternrassler/exam-archive-cache/pkg/lifecycle"
	"github.com/Sternrassler/exam-archive-cache/pkg/logging"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examcache_requests_total",
		Help: "Total intercepted requests by asset class and response source",
	}, []string{"class", "source"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "examcache_request_duration_seconds",
		Help:    "Intercepted request duration in seconds by asset class",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 3, 10},
	}, []string{"class"})

	networkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examcache_network_errors_total",
		Help: "Total failed or unsuccessful origin fetches by asset class and error class",
	}, []string{"class", "error_class"})
)

// Response sources.
const (
	sourceCache       = "cache"
	sourceNetwork     = "network"
	sourceOffline     = "offline"
	sourcePassthrough = "passthrough"
)

const tracerName = "github.com/Sternrassler/exam-archive-cache/pkg/client"

// Client is the archive fetch client.
type Client struct {
	transport  http.RoundTripper
	classifier *classify.Classifier
	lifecycle  *lifecycle.Manager
	budget     *cache.Budget
	tracer     trace.Tracer
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Origin is the archive base URL, e.g. "https://papers.example.com" (required)
	Origin string

	// Store holds the cache namespaces (required)
	Store cache.Store

	// Version tags the cache namespaces (required)
	Version string

	// Payload budget; non-positive values disable a limit
	MaxPayloadBytes   int64
	MaxPayloadEntries int

	// MetadataTimeout bounds a metadata fetch, headers and body
	MetadataTimeout time.Duration

	// Classification
	MetadataSegment   string
	PayloadExtensions []string

	// Install
	ShellManifest []string

	// In-process shell read layer
	MemoryCacheBytes int64
	MemoryCacheTTL   time.Duration

	// Transport reaches the origin (default: tuned http.Transport)
	Transport http.RoundTripper

	// TracerProvider supplies the tracer (default: otel global provider)
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the default configuration.
func DefaultConfig(store cache.Store, origin, version string) Config {
	return Config{
		Origin:            origin,
		Store:             store,
		Version:           version,
		MaxPayloadBytes:   cache.DefaultMaxBytes,
		MaxPayloadEntries: cache.DefaultMaxEntries,
		MetadataTimeout:   3000 * time.Millisecond,
		MetadataSegment:   classify.DefaultMetadataSegment,
		PayloadExtensions: slices.Clone(classify.DefaultPayloadExtensions),
		ShellManifest:     slices.Clone(lifecycle.DefaultShellManifest),
		MemoryCacheBytes:  lifecycle.DefaultShellMemoryBytes,
		MemoryCacheTTL:    lifecycle.DefaultShellMemoryTTL,
	}
}

// New creates a new archive client. The client passes every request
// straight to the origin until Install and Activate have succeeded.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}

	if cfg.Version == "" {
		return nil, fmt.Errorf("version is required")
	}

	if cfg.MetadataTimeout <= 0 {
		return nil, fmt.Errorf("metadata_timeout must be > 0 (got %s)", cfg.MetadataTimeout)
	}

	classifier, err := classify.New(classify.Config{
		Origin:            cfg.Origin,
		MetadataSegment:   cfg.MetadataSegment,
		PayloadExtensions: cfg.PayloadExtensions,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	rt := cfg.Transport
	if rt == nil {
		rt = transport.New(transport.DefaultConfig())
	}

	lcCfg := lifecycle.DefaultConfig(cfg.Store, classifier, cfg.Version)
	lcCfg.Transport = rt
	if cfg.ShellManifest != nil {
		lcCfg.ShellManifest = cfg.ShellManifest
	}
	lcCfg.ShellMemoryBytes = cfg.MemoryCacheBytes
	lcCfg.ShellMemoryTTL = cfg.MemoryCacheTTL

	manager, err := lifecycle.New(lcCfg)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Client{
		transport:  rt,
		classifier: classifier,
		lifecycle:  manager,
		budget:     cache.NewBudget(cfg.MaxPayloadEntries, cfg.MaxPayloadBytes, logging.NewLogger("cache-budget")),
		tracer:     tp.Tracer(tracerName),
		config:     cfg,
		logger:     logging.NewLogger("archive-client"),
	}, nil
}

// RoundTrip implements http.RoundTripper. It classifies req and answers it
// from the cache, the origin, or both according to the class strategy.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("request with URL is required")
	}
	class := c.classifier.Classify(req)

	ctx, span := c.tracer.Start(req.Context(), "archive.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("archive.class", string(class)),
			attribute.String("url.path", req.URL.Path),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(string(class)).Observe(time.Since(startTime).Seconds())
	}()

	resp, source, err := c.dispatch(ctx, class, req)

	requestsTotal.WithLabelValues(string(class), source).Inc()
	span.SetAttributes(attribute.String("archive.source", source))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug().
			Err(err).
			Str("class", string(class)).
			Str("path", req.URL.Path).
			Msg("Request failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}

func (c *Client) dispatch(ctx context.Context, class classify.Class, req *http.Request) (*http.Response, string, error) {
	if class == classify.ClassUnhandled {
		resp, err := c.transport.RoundTrip(req)
		return resp, sourcePassthrough, err
	}

	ns, err := c.lifecycle.Current()
	if err != nil {
		resp, err := c.fetch(class, req)
		return resp, sourcePassthrough, err
	}

	switch class {
	case classify.ClassShell:
		return c.cacheFirst(ctx, ns.Shell, req)
	case classify.ClassMetadata:
		return c.networkFirst(ctx, ns.Metadata, req)
	default:
		return c.cacheOnDemand(ctx, ns.Payload, req)
	}
}

// Do sends req through the client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.RoundTrip(req)
}

// Get performs a GET request for an archive path such as
// "/metadata/subject_12.json".
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	u, err := url.JoinPath(c.classifier.Origin(), path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Origin returns the archive origin as scheme://host.
func (c *Client) Origin() string {
	return c.classifier.Origin()
}

// HTTPClient returns an http.Client that routes through c.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c}
}

// Install warms the shell namespaces of the configured version.
func (c *Client) Install(ctx context.Context) error {
	return c.lifecycle.Install(ctx)
}

// Activate switches request handling to the configured version and drops
// every other cache namespace.
func (c *Client) Activate(ctx context.Context) error {
	if err := c.lifecycle.Activate(ctx); err != nil {
		return err
	}
	c.refreshPayloadGauges(ctx)
	return nil
}

// Lifecycle returns the namespace lifecycle manager.
func (c *Client) Lifecycle() *lifecycle.Manager {
	return c.lifecycle
}

// Ready reports whether the store is reachable and a version is active.
func (c *Client) Ready(ctx context.Context) error {
	if err := c.config.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if _, err := c.lifecycle.Current(); err != nil {
		return err
	}
	return nil
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	return c.lifecycle.Close()
}
