// Package querycache implements the in-process query result cache and its
// invalidation policy. Entries move through fresh -> stale -> (refetching
// -> fresh | evicted). Stale entries keep serving their last known data
// while a background refetch runs (stale-while-revalidate); eviction only
// happens in the periodic sweep or on explicit clear.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/metrics"
	"go.uber.org/zap"
)

// Query namespaces. Invalidation is addressed per namespace + id.
const (
	NamespaceEntity        = "entity"
	NamespaceEntityRecs    = "entity-recommendations"
	NamespaceEntityReviews = "entity-reviews"
	NamespaceEntityStats   = "entity-stats"
	NamespaceFollowCounts  = "follow-counts"
)

// EntityNamespaces are every namespace keyed by an entity id; an entity
// mutation invalidates all of them.
var EntityNamespaces = []string{
	NamespaceEntity,
	NamespaceEntityRecs,
	NamespaceEntityReviews,
	NamespaceEntityStats,
}

// Key identifies one cached query result
type Key struct {
	Namespace string
	ID        string
}

func (k Key) String() string {
	return k.Namespace + ":" + k.ID
}

// State describes where an entry sits in its lifecycle. An evicted or
// never-fetched key has no state.
type State int

const (
	StateFresh State = iota
	StateStale
	StateRefetching
)

// FetchFunc loads the authoritative value for a key
type FetchFunc func(ctx context.Context) (interface{}, error)

// NamespaceConfig tunes staleness and retention per query type
type NamespaceConfig struct {
	// StaleAfter is the fresh window after a successful fetch.
	StaleAfter time.Duration
	// Retention is how long a stale entry survives before the sweep
	// may evict it.
	Retention time.Duration
	// NoEagerRefetch excludes the namespace from visibility-regained
	// refetching (entity detail pages, to avoid disrupting a reader).
	NoEagerRefetch bool
}

// Options configures a Cache
type Options struct {
	Namespaces       map[string]NamespaceConfig
	DefaultStale     time.Duration // fallback StaleAfter (default 1m)
	DefaultRetention time.Duration // fallback Retention (default 10m)
	DebounceWindow   time.Duration // entity invalidation coalescing (default 100ms)
	FetchTimeout     time.Duration // background refetch bound (default 5s)
}

// DefaultOptions is the tuning the server runs with. Entity detail
// pages are excluded from visibility-regained refetching so a reader
// mid-page is not disrupted; stats and follow counts churn faster and
// get shorter fresh windows.
func DefaultOptions() Options {
	return Options{
		Namespaces: map[string]NamespaceConfig{
			NamespaceEntity:        {StaleAfter: 5 * time.Minute, Retention: 30 * time.Minute, NoEagerRefetch: true},
			NamespaceEntityRecs:    {StaleAfter: 2 * time.Minute, Retention: 15 * time.Minute},
			NamespaceEntityReviews: {StaleAfter: time.Minute, Retention: 15 * time.Minute},
			NamespaceEntityStats:   {StaleAfter: time.Minute, Retention: 10 * time.Minute},
			NamespaceFollowCounts:  {StaleAfter: 30 * time.Second, Retention: 10 * time.Minute},
		},
	}
}

type entry struct {
	data       interface{}
	fetchedAt  time.Time
	staleAt    time.Time
	stale      bool // explicit invalidation, independent of staleAt
	refetching bool
	gen        uint64 // bumped on invalidation; guards stale refetch results
	fetch      FetchFunc
}

// Cache is the shared query cache. A single mutex serializes all state
// transitions; fetches and refetches run outside the lock.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	inflight map[Key]chan struct{}
	debounce map[string]*time.Timer

	opts Options

	clock func() time.Time // test hook
}

// New creates a cache with the given options, applying defaults for any
// zero values.
func New(opts Options) *Cache {
	if opts.DefaultStale == 0 {
		opts.DefaultStale = time.Minute
	}
	if opts.DefaultRetention == 0 {
		opts.DefaultRetention = 10 * time.Minute
	}
	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = 100 * time.Millisecond
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 5 * time.Second
	}

	return &Cache{
		entries:  make(map[Key]*entry),
		inflight: make(map[Key]chan struct{}),
		debounce: make(map[string]*time.Timer),
		opts:     opts,
		clock:    time.Now,
	}
}

func (c *Cache) nsConfig(namespace string) NamespaceConfig {
	if cfg, ok := c.opts.Namespaces[namespace]; ok {
		if cfg.StaleAfter == 0 {
			cfg.StaleAfter = c.opts.DefaultStale
		}
		if cfg.Retention == 0 {
			cfg.Retention = c.opts.DefaultRetention
		}
		return cfg
	}
	return NamespaceConfig{
		StaleAfter: c.opts.DefaultStale,
		Retention:  c.opts.DefaultRetention,
	}
}

func (c *Cache) isStale(e *entry, now time.Time) bool {
	return e.stale || !now.Before(e.staleAt)
}

// GetOrFetch returns the cached value for key, fetching when absent. A
// fresh entry is returned as-is. A stale entry is returned immediately
// and a background refetch is kicked off if one is not already running.
// Concurrent first fetches of the same key are collapsed into one.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (interface{}, error) {
	for {
		c.mu.Lock()
		now := c.clock()

		if e, ok := c.entries[key]; ok {
			e.fetch = fetch
			if !c.isStale(e, now) {
				data := e.data
				c.mu.Unlock()
				metrics.Get().CacheHitsTotal.WithLabelValues(key.Namespace).Inc()
				return data, nil
			}

			// Stale-while-revalidate: serve what we have, refresh
			// in the background.
			if !e.refetching {
				e.refetching = true
				go c.refetch(key, fetch, e.gen)
			}
			data := e.data
			c.mu.Unlock()
			metrics.Get().CacheStaleServedTotal.WithLabelValues(key.Namespace).Inc()
			return data, nil
		}

		ch, inflight := c.inflight[key]
		if !inflight {
			break
		}
		c.mu.Unlock()

		// Another caller is already fetching this key; wait and re-read.
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ch := make(chan struct{})
	c.inflight[key] = ch
	c.mu.Unlock()

	metrics.Get().CacheMissesTotal.WithLabelValues(key.Namespace).Inc()
	data, err := fetch(ctx)

	c.mu.Lock()
	delete(c.inflight, key)
	close(ch)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.storeLocked(key, data, fetch)
	c.mu.Unlock()

	return data, nil
}

// storeLocked records a freshly fetched value. Caller holds c.mu.
func (c *Cache) storeLocked(key Key, data interface{}, fetch FetchFunc) {
	now := c.clock()
	cfg := c.nsConfig(key.Namespace)

	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.data = data
	e.fetchedAt = now
	e.staleAt = now.Add(cfg.StaleAfter)
	e.stale = false
	e.refetching = false
	e.fetch = fetch
}

// refetch revalidates a stale entry in the background. The generation
// captured at call time guards against committing a response for a key
// that was invalidated again while the fetch was in flight.
func (c *Cache) refetch(key Key, fetch FetchFunc, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FetchTimeout)
	defer cancel()

	data, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return // evicted while refetching
	}
	e.refetching = false

	if err != nil {
		// Keep serving the stale value; staleness is not an error.
		logger.Warn("Cache refetch failed",
			zap.String("key", key.String()),
			zap.Error(err),
		)
		return
	}
	if e.gen != gen {
		// Invalidated again mid-flight; this response is already
		// out of date. The next read triggers a new refetch.
		return
	}

	now := c.clock()
	cfg := c.nsConfig(key.Namespace)
	e.data = data
	e.fetchedAt = now
	e.staleAt = now.Add(cfg.StaleAfter)
	e.stale = false
}

// Put stores data for key as fresh, as if just fetched
func (c *Cache) Put(key Key, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, data, nil)
}

// PutProvisional stores data for key already marked stale: readers see it
// (stale-while-revalidate) but the next read triggers an authoritative
// refetch that replaces it wholesale. This is the home of optimistic
// updates.
func (c *Cache) PutProvisional(key Key, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.data = data
	e.fetchedAt = now
	e.staleAt = now
	e.stale = true
	e.gen++
}

// Invalidate marks a single entry stale (event-driven fresh -> stale).
// The entry keeps serving its data until a refetch or the sweep.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key)
}

func (c *Cache) invalidateLocked(key Key) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	e.stale = true
	e.staleAt = c.clock()
	e.gen++
}

// InvalidateID marks the id's entry stale in every given namespace
func (c *Cache) InvalidateID(namespaces []string, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ns := range namespaces {
		c.invalidateLocked(Key{Namespace: ns, ID: id})
	}
}

// InvalidateEntity marks every entity namespace stale for the id, after a
// short debounce that coalesces rapid successive invalidations into one.
func (c *Cache) InvalidateEntity(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, pending := c.debounce[entityID]; pending {
		return // already scheduled; this invalidation folds in
	}

	c.debounce[entityID] = time.AfterFunc(c.opts.DebounceWindow, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.debounce, entityID)
		for _, ns := range EntityNamespaces {
			c.invalidateLocked(Key{Namespace: ns, ID: entityID})
		}
		metrics.Get().CacheInvalidations.WithLabelValues("entity").Inc()
	})
}

// RefetchStale kicks a background refetch for every stale entry outside
// the NoEagerRefetch namespaces. Fired when a client session regains
// visibility.
func (c *Cache) RefetchStale() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	kicked := 0
	for key, e := range c.entries {
		if !c.isStale(e, now) || e.refetching || e.fetch == nil {
			continue
		}
		if c.nsConfig(key.Namespace).NoEagerRefetch {
			continue
		}
		e.refetching = true
		kicked++
		go c.refetch(key, e.fetch, e.gen)
	}
	if kicked > 0 {
		metrics.Get().CacheInvalidations.WithLabelValues("visibility").Inc()
	}
}

// Sweep evicts entries that are both stale and past their namespace's
// retention window. Returns the number of entries evicted.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	evicted := 0
	for key, e := range c.entries {
		if !c.isStale(e, now) || e.refetching {
			continue
		}
		cfg := c.nsConfig(key.Namespace)
		if now.After(e.staleAt.Add(cfg.Retention)) {
			delete(c.entries, key)
			metrics.Get().CacheEvictionsTotal.WithLabelValues(key.Namespace).Inc()
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep on the given interval until the returned stop
// function is called.
func (c *Cache) StartSweeper(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					logger.DebugWithFields("Query cache sweep",
						zap.Int("evicted", n),
					)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// State reports the lifecycle state for a key. ok is false for evicted or
// never-cached keys.
func (c *Cache) State(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if e.refetching {
		return StateRefetching, true
	}
	if c.isStale(e, c.clock()) {
		return StateStale, true
	}
	return StateFresh, true
}

// Peek returns the cached data without affecting entry state
func (c *Cache) Peek(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Clear removes a single entry immediately (explicit clear path of the
// state machine)
func (c *Cache) Clear(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of live entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// String implements fmt.Stringer for State
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateRefetching:
		return "refetching"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
