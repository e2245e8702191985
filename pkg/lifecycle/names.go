package lifecycle

import (
	"fmt"

	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
	"github.com/Sternrassler/exam-archive-cache/pkg/classify"
)

// Names holds the namespace names of one version.
type Names struct {
	Shell    string
	Metadata string
	Payload  string
}

// NamesFor derives the namespace names for prefix and version.
func NamesFor(prefix, version string) Names {
	return Names{
		Shell:    fmt.Sprintf("%s-%s-%s", prefix, classify.ClassShell, version),
		Metadata: fmt.Sprintf("%s-%s-%s", prefix, classify.ClassMetadata, version),
		Payload:  fmt.Sprintf("%s-%s-%s", prefix, classify.ClassPayload, version),
	}
}

// All returns the three names in shell, metadata, payload order.
func (n Names) All() []string {
	return []string{n.Shell, n.Metadata, n.Payload}
}

// Contains reports whether name is one of the three names.
func (n Names) Contains(name string) bool {
	return name == n.Shell || name == n.Metadata || name == n.Payload
}

// Namespaces are the open namespaces of the active version.
type Namespaces struct {
	Version  string
	Shell    cache.Namespace
	Metadata cache.Namespace
	Payload  cache.Namespace

	memory *cache.MemoryLayer
}

// For returns the namespace serving class, or nil for unhandled requests.
func (n *Namespaces) For(class classify.Class) cache.Namespace {
	switch class {
	case classify.ClassShell:
		return n.Shell
	case classify.ClassMetadata:
		return n.Metadata
	case classify.ClassPayload:
		return n.Payload
	default:
		return nil
	}
}

func (n *Namespaces) close() error {
	if n == nil || n.memory == nil {
		return nil
	}
	return n.memory.Close()
}
