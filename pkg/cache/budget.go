package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxEntries is the payload namespace entry ceiling.
	DefaultMaxEntries = 30

	// DefaultMaxBytes is the payload namespace byte ceiling (200 MiB).
	DefaultMaxBytes int64 = 200 << 20
)

// Budget enforces entry-count and byte ceilings on a namespace by evicting
// its oldest-inserted entries.
type Budget struct {
	MaxEntries int
	MaxBytes   int64

	logger zerolog.Logger
}

// EnforceResult reports what an enforcement pass did.
type EnforceResult struct {
	// Evicted lists evicted keys, oldest first.
	Evicted []string

	// Entries and Bytes are the namespace totals after eviction, excluding
	// the incoming entry.
	Entries int
	Bytes   int64
}

// NewBudget creates a budget. Non-positive limits disable that dimension.
func NewBudget(maxEntries int, maxBytes int64, logger zerolog.Logger) *Budget {
	return &Budget{
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
		logger:     logger,
	}
}

// fits reports whether a namespace holding count entries and total bytes
// can admit one more entry of incoming bytes.
func (b *Budget) fits(count int, total, incoming int64) bool {
	if b.MaxEntries > 0 && count >= b.MaxEntries {
		return false
	}
	if b.MaxBytes > 0 && total+incoming > b.MaxBytes {
		return false
	}
	return true
}

// Enforce makes room for an entry of incomingSize bytes under incomingKey.
//
// It runs before the insert, so the count check is against the
// pre-insertion count. Entries are evicted oldest first until the incoming
// entry fits. If the namespace runs out of entries first (the incoming entry
// alone exceeds MaxBytes) enforcement stops without error. An existing entry
// under incomingKey is not counted and not evicted since the insert replaces it.
//
// Enforcement is check-then-act: concurrent callers may overshoot the limits
// slightly; the next insertion corrects it.
func (b *Budget) Enforce(ctx context.Context, ns Namespace, incomingKey string, incomingSize int64) (EnforceResult, error) {
	stats, err := ns.Stats(ctx)
	if err != nil {
		return EnforceResult{}, fmt.Errorf("budget stats: %w", err)
	}

	if b.fits(stats.Entries, stats.Bytes, incomingSize) {
		return EnforceResult{Entries: stats.Entries, Bytes: stats.Bytes}, nil
	}

	entries, err := ns.Entries(ctx)
	if err != nil {
		return EnforceResult{}, fmt.Errorf("budget entries: %w", err)
	}

	count := len(entries)
	var total int64
	for _, e := range entries {
		if e.Key == incomingKey {
			count--
			continue
		}
		total += e.Size
	}

	result := EnforceResult{}
	for _, e := range entries {
		if b.fits(count, total, incomingSize) {
			break
		}
		if e.Key == incomingKey {
			continue
		}

		if err := ns.Delete(ctx, e.Key); err != nil {
			result.Entries, result.Bytes = count, total
			return result, fmt.Errorf("evict %q: %w", e.Key, err)
		}

		count--
		total -= e.Size
		result.Evicted = append(result.Evicted, e.Key)
		Evictions.Inc()

		b.logger.Debug().
			Str("namespace", ns.Name()).
			Str("key", e.Key).
			Int64("size", e.Size).
			Int("entries", count).
			Int64("bytes", total).
			Msg("Evicted entry")
	}

	if !b.fits(count, total, incomingSize) {
		b.logger.Debug().
			Str("namespace", ns.Name()).
			Str("key", incomingKey).
			Int64("size", incomingSize).
			Int64("max_bytes", b.MaxBytes).
			Msg("Incoming entry exceeds budget on its own")
	}

	result.Entries, result.Bytes = count, total
	return result, nil
}
