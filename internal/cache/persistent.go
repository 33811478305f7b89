package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/joss/ensemble/internal/logging"
	"github.com/joss/ensemble/internal/store"
)

// Persistent is the SQLite-backed cache. Expiries are stored as
// absolute timestamps, so an entry 50 minutes into a 60-minute TTL
// before a restart expires 10 minutes after it.
//
// Backend failures degrade, never propagate: a failing Get is a miss,
// a failing Set is a logged no-op. Correctness holds with caching
// effectively disabled, just slower.
type Persistent struct {
	db   *store.SQLite
	log  zerolog.Logger
	hits atomic.Int64
	miss atomic.Int64
	sets atomic.Int64
	errs atomic.Int64
}

// NewPersistent wraps the shared SQLite handle as a cache backend.
func NewPersistent(db *store.SQLite) *Persistent {
	return &Persistent{db: db, log: logging.New("cache")}
}

func (p *Persistent) Get(ctx context.Context, fingerprint string) (string, bool) {
	payload, ok, err := p.db.CacheGet(ctx, fingerprint)
	if err != nil {
		p.errs.Add(1)
		p.miss.Add(1)
		p.log.Warn().Err(err).Msg("cache backend get failed, treating as miss")
		return "", false
	}
	if !ok {
		p.miss.Add(1)
		return "", false
	}
	p.hits.Add(1)
	return payload, true
}

func (p *Persistent) Set(ctx context.Context, fingerprint, payload string, ttl time.Duration) {
	if err := p.db.CacheSet(ctx, fingerprint, payload, ttl); err != nil {
		p.errs.Add(1)
		p.log.Warn().Err(err).Msg("cache backend set failed, skipping")
		return
	}
	p.sets.Add(1)
}

func (p *Persistent) Clear(ctx context.Context) int {
	n, err := p.db.CacheClear(ctx)
	if err != nil {
		p.errs.Add(1)
		p.log.Warn().Err(err).Msg("cache backend clear failed")
		return 0
	}
	p.hits.Store(0)
	p.miss.Store(0)
	p.sets.Store(0)
	return n
}

func (p *Persistent) Stats(ctx context.Context) Stats {
	entries, err := p.db.CacheCount(ctx)
	if err != nil {
		p.errs.Add(1)
	}
	h, m := p.hits.Load(), p.miss.Load()
	return Stats{
		Hits:    h,
		Misses:  m,
		Sets:    p.sets.Load(),
		Errors:  p.errs.Load(),
		Entries: entries,
		HitRate: hitRate(h, m),
		Backend: "sqlite",
	}
}

var _ Cache = (*Persistent)(nil)
