package warmup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
)

var warmupFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "examcache_warmup_fetches_total",
	Help: "Total warm-up fetches by result",
}, []string{"result"})

// ErrFetchFailed is wrapped by every warm-up failure.
var ErrFetchFailed = errors.New("warm-up fetch failed")

// Config holds warm-up fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches
	MaxConcurrency int

	// Timeout per fetch, covering headers and body
	Timeout time.Duration
}

// DefaultConfig returns the default warm-up configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// Fetcher fetches manifests over a network transport.
type Fetcher struct {
	transport http.RoundTripper
	config    Config
	logger    zerolog.Logger
}

// NewFetcher creates a fetcher. A nil transport uses http.DefaultTransport.
func NewFetcher(transport http.RoundTripper, config Config, logger zerolog.Logger) *Fetcher {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Fetcher{
		transport: transport,
		config:    config,
		logger:    logger,
	}
}

// FetchAll fetches every URL and returns one entry per URL in the same order.
// The first failure cancels the remaining fetches and is returned as a
// coded error (NETWORK_ERROR or SERVICE_UNAVAILABLE) carrying the URL.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]*cache.Entry, error) {
	start := time.Now()
	entries := make([]*cache.Entry, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)

	for i, u := range urls {
		g.Go(func() error {
			entry, err := f.fetch(gctx, u)
			if err != nil {
				warmupFetchesTotal.WithLabelValues("failed").Inc()
				f.logger.Warn().Err(err).Str("url", u).Msg("Warm-up fetch failed")
				return err
			}
			warmupFetchesTotal.WithLabelValues("ok").Inc()
			entries[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Info().
		Int("assets", len(urls)).
		Dur("duration", time.Since(start)).
		Msg("Warm-up complete")

	return entries, nil
}

func (f *Fetcher) fetch(ctx context.Context, u string) (*cache.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, platformerrors.WrapWithContext(fmt.Errorf("%w: %w", ErrFetchFailed, err),
			platformerrors.CodeInvalidInput, "invalid warm-up URL", map[string]interface{}{"url": u})
	}

	resp, err := f.transport.RoundTrip(req)
	if err != nil {
		return nil, platformerrors.WrapWithContext(fmt.Errorf("%w: %w", ErrFetchFailed, err),
			platformerrors.CodeNetwork, "warm-up fetch failed", map[string]interface{}{"url": u})
	}

	if !cache.IsSuccess(resp.StatusCode) {
		resp.Body.Close()
		return nil, platformerrors.WrapWithContext(
			fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode),
			platformerrors.CodeUnavailable,
			"warm-up fetch returned non-success status",
			map[string]interface{}{"url": u, "status": resp.StatusCode},
		)
	}

	entry, err := cache.ResponseToEntry(cache.KeyFromRequest(req).String(), resp)
	if err != nil {
		return nil, platformerrors.WrapWithContext(fmt.Errorf("%w: %w", ErrFetchFailed, err),
			platformerrors.CodeNetwork, "warm-up body read failed", map[string]interface{}{"url": u})
	}
	return entry, nil
}
