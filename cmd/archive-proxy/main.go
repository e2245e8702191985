// Command archive-proxy serves the exam archive through the caching client.
// A browser front-end points at this proxy instead of the static origin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
	"github.com/Sternrassler/exam-archive-cache/pkg/client"
	"github.com/Sternrassler/exam-archive-cache/pkg/logging"
	"github.com/Sternrassler/exam-archive-cache/pkg/metrics"
)

// config is the proxy configuration read from the environment.
type config struct {
	OriginURL         string
	Port              string
	Store             string // "fs" or "redis"
	StoreDir          string
	RedisURL          string
	Version           string
	MaxPayloadBytes   int64
	MaxPayloadEntries int
	MetadataTimeout   time.Duration
}

func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		OriginURL:         getenv("ORIGIN_URL"),
		Port:              getEnv(getenv, "PORT", "8080"),
		Store:             getEnv(getenv, "STORE", "fs"),
		StoreDir:          getEnv(getenv, "STORE_DIR", "./archive-cache"),
		RedisURL:          getEnv(getenv, "REDIS_URL", "localhost:6379"),
		Version:           getEnv(getenv, "CACHE_VERSION", "v1"),
		MaxPayloadBytes:   cache.DefaultMaxBytes,
		MaxPayloadEntries: cache.DefaultMaxEntries,
		MetadataTimeout:   3000 * time.Millisecond,
	}

	if cfg.OriginURL == "" {
		return cfg, fmt.Errorf("ORIGIN_URL is required")
	}
	if cfg.Store != "fs" && cfg.Store != "redis" {
		return cfg, fmt.Errorf("STORE must be fs or redis (got %q)", cfg.Store)
	}

	if v := getenv("MAX_PAYLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("MAX_PAYLOAD_BYTES: %w", err)
		}
		cfg.MaxPayloadBytes = n
	}
	if v := getenv("MAX_PAYLOAD_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("MAX_PAYLOAD_ENTRIES: %w", err)
		}
		cfg.MaxPayloadEntries = n
	}
	if v := getenv("METADATA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("METADATA_TIMEOUT: %w", err)
		}
		cfg.MetadataTimeout = d
	}

	return cfg, nil
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// openStore creates the namespace store selected by cfg.Store.
func openStore(ctx context.Context, cfg config) (cache.Store, func(), error) {
	switch cfg.Store {
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisURL}
		if strings.Contains(cfg.RedisURL, "://") {
			var err error
			if opts, err = redis.ParseURL(cfg.RedisURL); err != nil {
				return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
			}
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
		}
		return cache.NewRedisStore(redisClient, ""), func() { redisClient.Close() }, nil

	default:
		dir, err := filepath.Abs(cfg.StoreDir)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve STORE_DIR: %w", err)
		}
		local := billy.NewLocal()
		if err := local.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create STORE_DIR: %w", err)
		}
		fsys, err := local.Chroot(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("chroot STORE_DIR: %w", err)
		}
		return cache.NewFSStore(fsys), func() {}, nil
	}
}

func main() {
	logging.Setup(logging.ConfigFromEnv(os.Getenv))
	logger := logging.NewLogger("archive-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, getenv func(string) string, logger zerolog.Logger) error {
	cfg, err := loadConfig(getenv)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info().Str("store", cfg.Store).Msg("Cache store ready")

	clientCfg := client.DefaultConfig(store, cfg.OriginURL, cfg.Version)
	clientCfg.MaxPayloadBytes = cfg.MaxPayloadBytes
	clientCfg.MaxPayloadEntries = cfg.MaxPayloadEntries
	clientCfg.MetadataTimeout = cfg.MetadataTimeout

	archiveClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create archive client: %w", err)
	}
	defer archiveClient.Close()

	startLifecycle(ctx, archiveClient, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(archiveClient, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("origin", cfg.OriginURL).
			Str("version", cfg.Version).
			Msg("Starting archive proxy")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startLifecycle installs and activates the configured version. A failed
// install still activates a version that survived from an earlier run;
// otherwise the proxy keeps passing requests through.
func startLifecycle(ctx context.Context, archiveClient *client.Client, logger zerolog.Logger) {
	if err := archiveClient.Install(ctx); err != nil {
		logger.Error().Err(err).Msg("Install failed")
	}
	if err := archiveClient.Activate(ctx); err != nil {
		logger.Warn().Err(err).Msg("Activation failed, passing requests through")
	}
}

// readiness is implemented by *client.Client.
type readiness interface {
	Ready(ctx context.Context) error
}

func newMux(archiveClient *client.Client, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(archiveClient))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", proxyHandler(archiveClient, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(r readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		if err := r.Ready(ctx); err != nil {
			http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// forwardedHeaders are the request headers relayed to the origin.
var forwardedHeaders = []string{"Accept", "Accept-Language", "Range", "If-Range"}

// proxyHandler relays a browser request through the archive client.
func proxyHandler(archiveClient *client.Client, logger zerolog.Logger) http.HandlerFunc {
	origin := strings.TrimRight(archiveClient.Origin(), "/")

	return func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), r.Method, origin+r.URL.RequestURI(), r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		for _, h := range forwardedHeaders {
			if v := r.Header.Get(h); v != "" {
				req.Header.Set(h, v)
			}
		}

		resp, err := archiveClient.Do(req)
		if err != nil {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Archive request failed")
			http.Error(w, fmt.Sprintf("archive request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Failed to write response")
		}
	}
}
