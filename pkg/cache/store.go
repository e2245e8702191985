package cache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNamespaceDropped is returned by operations on a namespace handle
	// whose namespace has been deleted.
	ErrNamespaceDropped = errors.New("namespace dropped")

	// ErrInvalidName is returned for namespace names that are empty or
	// contain path separators.
	ErrInvalidName = errors.New("invalid namespace name")
)

// EntryInfo describes a stored entry without its body.
type EntryInfo struct {
	Key  string
	Size int64
}

// Stats is the derived budget state of a namespace.
type Stats struct {
	Entries int
	Bytes   int64
}

// Namespace is a named, insertion-ordered key→entry collection.
// Implementations are safe for concurrent use; each operation is atomic per
// key but there are no cross-key transactions.
type Namespace interface {
	// Name returns the namespace name.
	Name() string

	// Get returns the entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores entry under entry.Key, replacing any previous entry
	// wholesale. A replaced entry becomes the newest entry.
	Put(ctx context.Context, entry *Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Entries lists all entries oldest-inserted first.
	Entries(ctx context.Context) ([]EntryInfo, error)

	// Stats returns the entry count and total body bytes.
	Stats(ctx context.Context) (Stats, error)
}

// Store manages the lifecycle of namespaces.
type Store interface {
	// Open returns the named namespace, creating it if necessary.
	Open(ctx context.Context, name string) (Namespace, error)

	// Names lists existing namespaces.
	Names(ctx context.Context) ([]string, error)

	// Drop deletes a namespace and all of its entries.
	Drop(ctx context.Context, name string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ValidateName checks that name can be used as a namespace name: non-empty,
// not "." or "..", and limited to letters, digits, '-', '_' and '.'.
// The returned error wraps ErrInvalidName.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
