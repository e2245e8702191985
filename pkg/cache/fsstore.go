package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"github.com/jmgilman/go/fs/core"
)

const (
	fsRoot      = "namespaces"
	fsIndexFile = "index.json"
	fsBlobDir   = "blobs"
	fsFileMode  = 0o644
	fsDirMode   = 0o755
)

// FSStore keeps namespaces as directories of a core.FS:
//
//	namespaces/<name>/index.json        insertion-ordered index with sizes
//	namespaces/<name>/blobs/<sha256>    one JSON entry per key
//
// Use billy.NewLocal (chrooted to a cache directory) for persistence across
// restarts and billy.NewMemory for tests.
type FSStore struct {
	fs core.FS

	mu   sync.Mutex
	open map[string]*fsNamespace
}

// NewFSStore creates a namespace store on top of fsys.
func NewFSStore(fsys core.FS) *FSStore {
	if fsys == nil {
		panic("filesystem cannot be nil")
	}
	return &FSStore{
		fs:   fsys,
		open: make(map[string]*fsNamespace),
	}
}

// Open loads (or creates) the namespace directory and its index.
// Handles are shared: opening the same name twice returns the same namespace.
func (s *FSStore) Open(_ context.Context, name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.open[name]; ok {
		return ns, nil
	}

	dir := path.Join(fsRoot, name)
	if err := s.fs.MkdirAll(path.Join(dir, fsBlobDir), fsDirMode); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("create namespace dir: %w", err)
	}

	ns := &fsNamespace{fs: s.fs, name: name, dir: dir}
	if err := ns.loadIndex(); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, err
	}

	s.open[name] = ns
	return ns, nil
}

// Names lists namespace directories in lexical order.
func (s *FSStore) Names(_ context.Context) ([]string, error) {
	entries, err := s.fs.ReadDir(fsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read namespaces: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Drop removes the namespace directory. Open handles to it start failing
// with ErrNamespaceDropped.
func (s *FSStore) Drop(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ns, ok := s.open[name]; ok {
		ns.mu.Lock()
		ns.dropped = true
		ns.mu.Unlock()
		delete(s.open, name)
	}

	if err := s.fs.RemoveAll(path.Join(fsRoot, name)); err != nil {
		CacheErrors.WithLabelValues("drop").Inc()
		return fmt.Errorf("remove namespace %q: %w", name, err)
	}
	return nil
}

// Ping verifies the filesystem root is readable.
func (s *FSStore) Ping(_ context.Context) error {
	if err := s.fs.MkdirAll(fsRoot, fsDirMode); err != nil {
		return fmt.Errorf("filesystem unavailable: %w", err)
	}
	return nil
}

type fsIndexEntry struct {
	Key  string `json:"key"`
	File string `json:"file"`
	Size int64  `json:"size"`
	Seq  int64  `json:"seq"`
}

type fsIndex struct {
	Seq     int64          `json:"seq"`
	Bytes   int64          `json:"bytes"`
	Entries []fsIndexEntry `json:"entries"`
}

type fsNamespace struct {
	fs   core.FS
	name string
	dir  string

	mu      sync.Mutex
	index   fsIndex
	dropped bool
}

func (n *fsNamespace) Name() string {
	return n.name
}

func blobName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (n *fsNamespace) loadIndex() error {
	data, err := n.fs.ReadFile(path.Join(n.dir, fsIndexFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(data, &n.index); err != nil {
		return fmt.Errorf("%w: index of %q: %v", ErrInvalidEntry, n.name, err)
	}
	return nil
}

// saveIndex writes idx to disk and makes it the live index only once the
// write succeeded. Must be called with n.mu held.
func (n *fsNamespace) saveIndex(idx fsIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := n.fs.WriteFile(path.Join(n.dir, fsIndexFile), data, fsFileMode); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	n.index = idx
	return nil
}

// without returns a copy of the index minus entry i. Must be called with
// n.mu held.
func (n *fsNamespace) without(i int) fsIndex {
	idx := fsIndex{Seq: n.index.Seq, Bytes: n.index.Bytes}
	idx.Entries = make([]fsIndexEntry, 0, len(n.index.Entries))
	for j, e := range n.index.Entries {
		if j == i {
			idx.Bytes -= e.Size
			continue
		}
		idx.Entries = append(idx.Entries, e)
	}
	return idx
}

// find must be called with n.mu held.
func (n *fsNamespace) find(key string) int {
	for i, e := range n.index.Entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func (n *fsNamespace) Get(_ context.Context, key string) (*Entry, error) {
	n.mu.Lock()
	if n.dropped {
		n.mu.Unlock()
		return nil, ErrNamespaceDropped
	}
	i := n.find(key)
	if i < 0 {
		n.mu.Unlock()
		return nil, ErrCacheMiss
	}
	file := n.index.Entries[i].File
	n.mu.Unlock()

	data, err := n.fs.ReadFile(path.Join(n.dir, fsBlobDir, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("read blob: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

func (n *fsNamespace) Put(_ context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dropped {
		return ErrNamespaceDropped
	}

	file := blobName(entry.Key)
	if err := n.fs.WriteFile(path.Join(n.dir, fsBlobDir, file), data, fsFileMode); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("write blob: %w", err)
	}

	idx := n.without(n.find(entry.Key))
	idx.Seq++
	idx.Bytes += entry.Size()
	idx.Entries = append(idx.Entries, fsIndexEntry{
		Key:  entry.Key,
		File: file,
		Size: entry.Size(),
		Seq:  idx.Seq,
	})

	if err := n.saveIndex(idx); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return err
	}
	return nil
}

func (n *fsNamespace) Delete(_ context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dropped {
		return ErrNamespaceDropped
	}

	i := n.find(key)
	if i < 0 {
		return nil
	}
	removed := n.index.Entries[i]

	if err := n.fs.Remove(path.Join(n.dir, fsBlobDir, removed.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("remove blob: %w", err)
	}

	if err := n.saveIndex(n.without(i)); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return err
	}
	return nil
}

func (n *fsNamespace) Entries(_ context.Context) ([]EntryInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dropped {
		return nil, ErrNamespaceDropped
	}

	infos := make([]EntryInfo, len(n.index.Entries))
	for i, e := range n.index.Entries {
		infos[i] = EntryInfo{Key: e.Key, Size: e.Size}
	}
	return infos, nil
}

func (n *fsNamespace) Stats(_ context.Context) (Stats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dropped {
		return Stats{}, ErrNamespaceDropped
	}
	return Stats{Entries: len(n.index.Entries), Bytes: n.index.Bytes}, nil
}
