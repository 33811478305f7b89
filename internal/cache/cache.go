// Package cache is the content-addressed result cache. Entries are
// immutable once written and evicted only by TTL or explicit flush, so
// concurrent readers always see consistent data; overlapping dispatches
// racing on the same fingerprint are last-writer-wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/joss/ensemble/internal/domain"
)

// Cache is the backend-agnostic store of prior dispatch outcomes.
type Cache interface {
	// Get returns the payload for fingerprint, or false on a miss.
	Get(ctx context.Context, fingerprint string) (string, bool)
	// Set stores a payload under fingerprint for ttl.
	Set(ctx context.Context, fingerprint, payload string, ttl time.Duration)
	// Clear removes all entries, resets counters and reports how many
	// entries were removed.
	Clear(ctx context.Context) int
	// Stats returns hit/miss accounting.
	Stats(ctx context.Context) Stats
}

// Stats is the cache accounting snapshot.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
	Backend string  `json:"backend"`
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Fingerprint derives the stable cache key for an operation dispatched
// against a provider set. Provider order does not matter; operation
// content and kind do.
func Fingerprint(op domain.Operation, providerIDs []string) string {
	ids := append([]string(nil), providerIDs...)
	sort.Strings(ids)

	cats := append([]string(nil), op.Categories...)
	sort.Strings(cats)

	h := sha256.New()
	h.Write([]byte(op.Kind))
	h.Write([]byte{0})
	h.Write([]byte(op.Source))
	h.Write([]byte{0})
	h.Write([]byte(op.SourceKind))
	h.Write([]byte{0})
	h.Write([]byte(op.TargetKind))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(cats, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
