package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
	"github.com/Sternrassler/exam-archive-cache/pkg/classify"
	"github.com/Sternrassler/exam-archive-cache/pkg/logging"
	"github.com/Sternrassler/exam-archive-cache/pkg/warmup"
)

var (
	// ErrNotActive is returned by Current before the first successful Activate.
	ErrNotActive = errors.New("no active cache version")

	// ErrNotInstalled is returned by Activate when the version has not been
	// installed successfully.
	ErrNotInstalled = errors.New("cache version not installed")
)

const (
	// DefaultPrefix prefixes every namespace name.
	DefaultPrefix = "examcache"

	// DefaultShellMemoryBytes bounds the in-process shell read layer.
	DefaultShellMemoryBytes = 16 << 20

	// DefaultShellMemoryTTL bounds how long a shell entry stays in memory.
	DefaultShellMemoryTTL = 10 * time.Minute
)

// DefaultShellManifest lists the assets an installed version can serve
// without network access.
var DefaultShellManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.json",
	"/metadata/index.json",
}

// Config holds the lifecycle configuration.
type Config struct {
	// Store holds the namespaces (required)
	Store cache.Store

	// Classifier routes manifest entries to namespaces (required)
	Classifier *classify.Classifier

	// Transport performs warm-up fetches (default: http.DefaultTransport)
	Transport http.RoundTripper

	// Naming
	Prefix  string
	Version string // required

	// Warm-up
	ShellManifest []string // paths relative to the classifier origin
	Warmup        warmup.Config

	// In-process shell read layer; ShellMemoryBytes < 0 disables it
	ShellMemoryBytes int64
	ShellMemoryTTL   time.Duration
}

// DefaultConfig returns a configuration with the default manifest and naming.
func DefaultConfig(store cache.Store, classifier *classify.Classifier, version string) Config {
	return Config{
		Store:            store,
		Classifier:       classifier,
		Prefix:           DefaultPrefix,
		Version:          version,
		ShellManifest:    slices.Clone(DefaultShellManifest),
		Warmup:           warmup.DefaultConfig(),
		ShellMemoryBytes: DefaultShellMemoryBytes,
		ShellMemoryTTL:   DefaultShellMemoryTTL,
	}
}

// Manager installs and activates one cache version.
type Manager struct {
	store      cache.Store
	classifier *classify.Classifier
	fetcher    *warmup.Fetcher
	config     Config
	names      Names
	logger     zerolog.Logger

	mu        sync.Mutex // serializes Install, Activate and Close
	installed bool
	active    atomic.Pointer[Namespaces]
}

// New creates a lifecycle manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("version is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	names := NamesFor(cfg.Prefix, cfg.Version)
	for _, name := range names.All() {
		if err := cache.ValidateName(name); err != nil {
			return nil, err
		}
	}

	return &Manager{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		fetcher:    warmup.NewFetcher(cfg.Transport, cfg.Warmup, logging.NewLogger("warmup")),
		config:     cfg,
		names:      names,
		logger:     logging.NewLogger("lifecycle"),
	}, nil
}

// Names returns the namespace names of the managed version.
func (m *Manager) Names() Names {
	return m.names
}

// Version returns the managed version tag.
func (m *Manager) Version() string {
	return m.config.Version
}

// Install fetches the shell manifest and stores every asset in the namespace
// its class selects. It is all or nothing: on failure the namespaces created
// by this call are dropped and the error is returned.
func (m *Manager) Install(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	urls, err := m.manifestURLs()
	if err != nil {
		return err
	}

	entries, err := m.fetcher.FetchAll(ctx, urls)
	if err != nil {
		m.logger.Error().Err(err).Str("version", m.config.Version).Msg("Install failed")
		return fmt.Errorf("install %s: %w", m.config.Version, err)
	}

	existing, err := m.store.Names(ctx)
	if err != nil {
		return fmt.Errorf("install %s: list namespaces: %w", m.config.Version, err)
	}

	if err := m.storeEntries(ctx, urls, entries); err != nil {
		m.logger.Error().Err(err).Str("version", m.config.Version).Msg("Install failed")
		m.rollback(ctx, existing)
		return fmt.Errorf("install %s: %w", m.config.Version, err)
	}

	m.installed = true
	m.logger.Info().
		Str("version", m.config.Version).
		Int("assets", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Installed cache version")
	return nil
}

func (m *Manager) manifestURLs() ([]string, error) {
	base, err := url.Parse(m.classifier.Origin())
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}

	urls := make([]string, 0, len(m.config.ShellManifest))
	for _, p := range m.config.ShellManifest {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse manifest path %q: %w", p, err)
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	return urls, nil
}

func (m *Manager) storeEntries(ctx context.Context, urls []string, entries []*cache.Entry) error {
	opened := make(map[string]cache.Namespace, 3)

	for i, entry := range entries {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urls[i], nil)
		if err != nil {
			return fmt.Errorf("build request for %s: %w", urls[i], err)
		}

		var name string
		switch class := m.classifier.Classify(req); class {
		case classify.ClassShell:
			name = m.names.Shell
		case classify.ClassMetadata:
			name = m.names.Metadata
		case classify.ClassPayload:
			name = m.names.Payload
		default:
			m.logger.Warn().Str("url", urls[i]).Msg("Skipping unhandled manifest entry")
			continue
		}

		ns, ok := opened[name]
		if !ok {
			ns, err = m.store.Open(ctx, name)
			if err != nil {
				return fmt.Errorf("open namespace %s: %w", name, err)
			}
			opened[name] = ns
		}

		if err := ns.Put(ctx, entry); err != nil {
			return fmt.Errorf("store %s: %w", entry.Key, err)
		}
	}
	return nil
}

// rollback drops the namespaces of this version that did not exist before.
func (m *Manager) rollback(ctx context.Context, existing []string) {
	for _, name := range m.names.All() {
		if slices.Contains(existing, name) {
			continue
		}
		if err := m.store.Drop(ctx, name); err != nil {
			m.logger.Warn().Err(err).Str("namespace", name).Msg("Failed to drop namespace after failed install")
		}
	}
}

// Activate drops every namespace outside this version's set, opens the
// version's namespaces and publishes them. The version must have been
// installed by this manager, or by an earlier process whose shell
// namespace survived.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.installed {
		ok, err := m.previouslyInstalled(ctx)
		if err != nil {
			return fmt.Errorf("activate %s: %w", m.config.Version, err)
		}
		if !ok {
			return fmt.Errorf("activate %s: %w", m.config.Version, ErrNotInstalled)
		}
		m.installed = true
	}

	names, err := m.store.Names(ctx)
	if err != nil {
		return fmt.Errorf("activate %s: list namespaces: %w", m.config.Version, err)
	}

	dropped := 0
	for _, name := range names {
		if m.names.Contains(name) {
			continue
		}
		if err := m.store.Drop(ctx, name); err != nil {
			return fmt.Errorf("activate %s: drop stale namespace %s: %w", m.config.Version, name, err)
		}
		dropped++
		m.logger.Debug().Str("namespace", name).Msg("Dropped stale namespace")
	}

	ns, err := m.open(ctx)
	if err != nil {
		return fmt.Errorf("activate %s: %w", m.config.Version, err)
	}

	if old := m.active.Swap(ns); old != nil {
		if err := old.close(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to close previous namespaces")
		}
	}

	m.logger.Info().
		Str("version", m.config.Version).
		Int("dropped", dropped).
		Msg("Activated cache version")
	return nil
}

func (m *Manager) previouslyInstalled(ctx context.Context) (bool, error) {
	names, err := m.store.Names(ctx)
	if err != nil {
		return false, fmt.Errorf("list namespaces: %w", err)
	}
	if !slices.Contains(names, m.names.Shell) {
		return false, nil
	}

	shell, err := m.store.Open(ctx, m.names.Shell)
	if err != nil {
		return false, fmt.Errorf("open namespace %s: %w", m.names.Shell, err)
	}
	stats, err := shell.Stats(ctx)
	if err != nil {
		return false, fmt.Errorf("stat namespace %s: %w", m.names.Shell, err)
	}
	return stats.Entries > 0, nil
}

func (m *Manager) open(ctx context.Context) (*Namespaces, error) {
	ns := &Namespaces{Version: m.config.Version}

	var err error
	if ns.Shell, err = m.store.Open(ctx, m.names.Shell); err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", m.names.Shell, err)
	}
	if ns.Metadata, err = m.store.Open(ctx, m.names.Metadata); err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", m.names.Metadata, err)
	}
	if ns.Payload, err = m.store.Open(ctx, m.names.Payload); err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", m.names.Payload, err)
	}

	if m.config.ShellMemoryBytes >= 0 {
		layer, err := cache.NewMemoryLayer(ns.Shell, m.config.ShellMemoryBytes, m.config.ShellMemoryTTL)
		if err != nil {
			return nil, fmt.Errorf("create shell memory layer: %w", err)
		}
		ns.Shell = layer
		ns.memory = layer
	}

	return ns, nil
}

// Current returns the active namespaces, or ErrNotActive.
func (m *Manager) Current() (*Namespaces, error) {
	ns := m.active.Load()
	if ns == nil {
		return nil, ErrNotActive
	}
	return ns, nil
}

// Close releases in-process resources of the active namespaces. The
// persistent namespaces are left in place.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Swap(nil).close()
}
