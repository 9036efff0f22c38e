// Package ledger owns the in-memory, TTL-bounded cache of the full
// transaction log.
//
// Read-after-write consistency within a process comes from the writer calling
// Invalidate after a successful append and before its own next Get. The TTL
// only bounds how stale other readers can be; it is not a correctness
// mechanism.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// DefaultTTL bounds snapshot age for readers that never wrote.
const DefaultTTL = 5 * time.Minute

// Status is the observable state of the cache.
type Status string

const (
	StatusCold  Status = "cold"
	StatusValid Status = "valid"
	StatusStale Status = "stale"
)

// Snapshot is an immutable view of the ledger as fetched at FetchedAt.
type Snapshot struct {
	// Generation identifies this fetch; two reads returning the same
	// generation observed the same snapshot.
	Generation string
	FetchedAt  time.Time
	// Skipped counts stored rows dropped because they failed to parse.
	Skipped int

	ledger domain.Ledger
}

// Ledger returns a copy of the transactions in insertion order.
func (s *Snapshot) Ledger() domain.Ledger {
	return s.ledger.Clone()
}

// Len returns the number of transactions in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.ledger)
}

// CacheState is the only shared mutable state of the core. It is constructed
// once per process (or per user session) and handed to NewCache explicitly.
type CacheState struct {
	mu       sync.Mutex
	snapshot *Snapshot
	epoch    uint64
}

// NewCacheState returns an empty (cold) cache state.
func NewCacheState() *CacheState {
	return &CacheState{}
}

// Options configures a Cache.
type Options struct {
	TTL time.Duration
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Cache serves the full ledger cheaply while guaranteeing that a read which
// starts after Invalidate observes the store as of that moment or later.
type Cache struct {
	store recordstore.Store
	state *CacheState
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger

	group singleflight.Group
}

// NewCache creates a cache over store. A nil state gets a fresh one.
func NewCache(store recordstore.Store, state *CacheState, opts Options, log zerolog.Logger) *Cache {
	if state == nil {
		state = NewCacheState()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store: store,
		state: state,
		ttl:   opts.TTL,
		now:   opts.Now,
		log:   log,
	}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Status reports whether the cache is cold, valid or stale.
func (c *Cache) Status() Status {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.statusLocked()
}

func (c *Cache) statusLocked() Status {
	snap := c.state.snapshot
	switch {
	case snap == nil:
		return StatusCold
	case c.now().Sub(snap.FetchedAt) >= c.ttl:
		return StatusStale
	default:
		return StatusValid
	}
}

// Get returns the cached snapshot when it is valid, otherwise fetches the
// ledger from the store. Concurrent callers during a fetch share one
// in-flight ListAll. On failure the error is returned and the previous state
// is kept.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.state.mu.Lock()
	if c.statusLocked() == StatusValid {
		snap := c.state.snapshot
		c.state.mu.Unlock()
		return snap, nil
	}
	epoch := c.state.epoch
	c.state.mu.Unlock()

	// The fetch must not die with whichever caller happened to start it;
	// every caller still gives up on its own context.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		return c.fetch(fetchCtx, epoch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate unconditionally drops the cached snapshot. A fetch already in
// flight will neither repopulate the cache nor be shared with callers that
// arrive after this call.
func (c *Cache) Invalidate() {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.snapshot = nil
	c.state.epoch++
	c.log.Debug().Uint64("epoch", c.state.epoch).Msg("Ledger cache invalidated")
}

// Refresh invalidates and reads the ledger again.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	c.Invalidate()
	return c.Get(ctx)
}

// Reload reads the ledger from the store regardless of the TTL and without
// sharing an earlier in-flight fetch, so the result observes the store as of
// this call or later. Unlike Refresh it keeps the cached snapshot when the
// read fails.
func (c *Cache) Reload(ctx context.Context) (*Snapshot, error) {
	c.state.mu.Lock()
	epoch := c.state.epoch
	c.state.mu.Unlock()

	return c.fetch(ctx, epoch)
}

func (c *Cache) fetch(ctx context.Context, epoch uint64) (*Snapshot, error) {
	start := c.now()

	records, err := c.store.ListAll(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to load ledger from record store")
		return nil, err
	}

	txs := make(domain.Ledger, 0, len(records))
	skipped := 0
	for i, rec := range records {
		tx, err := domain.FromStorageRecord(rec)
		if err != nil {
			var perr *domain.ParseError
			if errors.As(err, &perr) {
				c.log.Warn().
					Err(err).
					Int("row", i+2). // header is row 1
					Str("column", perr.Column).
					Msg("Skipping unparseable ledger row")
				skipped++
				continue
			}
			return nil, err
		}
		txs = append(txs, tx)
	}

	snap := &Snapshot{
		Generation: uuid.NewString(),
		FetchedAt:  c.now(),
		Skipped:    skipped,
		ledger:     txs,
	}

	c.state.mu.Lock()
	stored := c.state.epoch == epoch
	if stored {
		c.state.snapshot = snap
	}
	c.state.mu.Unlock()

	c.log.Debug().
		Str("generation", snap.Generation).
		Int("transactions", len(txs)).
		Int("skipped", skipped).
		Bool("cached", stored).
		Dur("duration", snap.FetchedAt.Sub(start)).
		Msg("Ledger loaded")

	return snap, nil
}
