/*
collection.go - TTL-memoized, single-flight collection cache

PURPOSE:
  Holds the full list of one entity type (resources, tasks, payment
  requests) in memory so that every consumer in the process reads the same
  data without hitting the database on each request.

STATE MACHINE:
  Empty -> Loading -> Ready -> Stale -> Loading -> Ready ...
  No terminal state; a Collection lives as long as the process.

READS:
  Get(ctx, false) returns the cached list while it is younger than the TTL
  (default 5 minutes). Otherwise it refreshes.

SINGLE-FLIGHT:
  At most one fetch per collection generation is in flight. Concurrent Get/Refresh
  calls join the running fetch and all receive ITS result. The fetch runs
  on a context detached from caller cancellation: a caller that gives up
  stops waiting, but the fetch always runs to completion.

INVALIDATION:
  Writers call Invalidate before Refresh. Invalidate starts a new
  generation: the next Refresh gets its own fetch instead of joining one
  that may have read the pre-write rows, and a fetch from an older
  generation that finishes late is discarded.

FAILURES:
  A failed fetch keeps the previous list (stale data beats no data),
  releases its in-flight count, logs the error and hands it to subscribers in
  Snapshot.Err. The caller gets the retained list together with the error.

SUBSCRIBERS:
  Notified when a fetch starts and when it ends. A new subscriber is
  called once immediately if data is already present.

SEE ALSO:
  - stores.go: the three production collections
  - warmer.go: background refresh of stale collections
*/
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long fetched data is served without refetching.
const DefaultTTL = 5 * time.Minute

// Fetcher loads the complete collection from the backing store.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// State is the lifecycle state of a Collection.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is what subscribers observe on each notification.
type Snapshot[T any] struct {
	Items       []T
	Loading     bool
	LastUpdated time.Time
	Err         error // error of the fetch that just ended, if any
}

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Collection.
type Option func(*options)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock sets the clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used to report failed fetches.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// =============================================================================
// COLLECTION
// =============================================================================

// Collection caches one entity list. Safe for concurrent use.
type Collection[T any] struct {
	name  string
	fetch Fetcher[T]
	opts  options

	mu          sync.RWMutex
	items       []T
	hasData     bool
	inflight    int
	lastUpdated time.Time
	lastErr     error

	// gen is bumped by Invalidate; dataGen is the generation items were
	// fetched under. Results from an older generation never overwrite newer ones.
	gen     uint64
	dataGen uint64

	flight singleflight.Group

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot[T])
	nextSub uint64
}

// New creates an empty collection named name, loading through fetch.
func New[T any](name string, fetch Fetcher[T], opts ...Option) *Collection[T] {
	return &Collection[T]{
		name:  name,
		fetch: fetch,
		opts:  buildOptions(opts),
		subs:  make(map[uint64]func(Snapshot[T])),
	}
}

// Name identifies the collection in logs.
func (c *Collection[T]) Name() string { return c.name }

// Get returns the cached list when it is fresh and forceRefresh is false.
// Otherwise it refreshes, joining a fetch already in flight.
func (c *Collection[T]) Get(ctx context.Context, forceRefresh bool) ([]T, error) {
	if !forceRefresh {
		c.mu.RLock()
		fresh := c.hasData && c.inflight == 0 && !c.staleLocked()
		var items []T
		if fresh {
			items = clone(c.items)
		}
		c.mu.RUnlock()
		if fresh {
			return items, nil
		}
	}
	return c.Refresh(ctx)
}

// Refresh fetches the full collection. If a fetch is already running the
// call waits for that one instead of starting another.
//
// On failure the previously cached list is returned along with the error.
// If ctx ends first, Refresh returns the current cache and ctx.Err() while
// the fetch keeps running.
func (c *Collection[T]) Refresh(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	fetchCtx := context.WithoutCancel(ctx)
	key := c.name + "@" + strconv.FormatUint(gen, 10)
	ch := c.flight.DoChan(key, func() (any, error) {
		return c.load(fetchCtx, gen)
	})

	select {
	case res := <-ch:
		items, _ := res.Val.([]T)
		return clone(items), res.Err
	case <-ctx.Done():
		return c.Cached(), ctx.Err()
	}
}

// Invalidate marks the cached list stale. A Refresh after Invalidate does
// not join a fetch that started before it; call it after every write that
// changes the collection.
func (c *Collection[T]) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
}

// load performs one fetch under generation gen. The in-flight count is
// released on every path.
func (c *Collection[T]) load(ctx context.Context, gen uint64) ([]T, error) {
	c.mu.Lock()
	c.inflight++
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		c.inflight--
		c.mu.Unlock()
		c.notify()
	}()

	items, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasData && gen < c.dataGen {
		// A fetch started after a later Invalidate already landed.
		c.opts.logger.Debug().
			Str("store", c.name).
			Uint64("generation", gen).
			Uint64("current", c.dataGen).
			Msg("discarding superseded fetch")
		if err != nil {
			return clone(c.items), fmt.Errorf("refresh %s: %w", c.name, err)
		}
		return clone(c.items), nil
	}

	if err != nil {
		c.lastErr = err
		c.opts.logger.Error().
			Err(err).
			Str("store", c.name).
			Int("cached", len(c.items)).
			Msg("refresh failed, keeping cached data")
		return clone(c.items), fmt.Errorf("refresh %s: %w", c.name, err)
	}

	if items == nil {
		items = []T{}
	}
	c.items = items
	c.hasData = true
	c.dataGen = gen
	c.lastUpdated = c.opts.now()
	c.lastErr = nil
	c.opts.logger.Debug().
		Str("store", c.name).
		Int("count", len(items)).
		Msg("collection refreshed")

	return clone(items), nil
}

// Subscribe registers fn for every notification. If data is already
// present fn is called once immediately. The returned func unsubscribes
// and may be called more than once.
func (c *Collection[T]) Subscribe(fn func(Snapshot[T])) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	c.mu.RLock()
	hasData := c.hasData
	snap := c.snapshotLocked()
	c.mu.RUnlock()
	if hasData {
		fn(snap)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// Cached returns the current list without any I/O.
func (c *Collection[T]) Cached() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.items)
}

// IsLoading reports whether a fetch is in flight.
func (c *Collection[T]) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inflight > 0
}

// LastUpdated is the time of the last successful fetch (zero if none).
func (c *Collection[T]) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// LastError is the error of the most recent fetch, nil if it succeeded.
func (c *Collection[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// State reports the lifecycle state.
func (c *Collection[T]) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.inflight > 0:
		return StateLoading
	case !c.hasData:
		return StateEmpty
	case c.staleLocked():
		return StateStale
	default:
		return StateReady
	}
}

// Warm refreshes the collection if it is empty or stale.
func (c *Collection[T]) Warm(ctx context.Context) error {
	_, err := c.Get(ctx, false)
	return err
}

func (c *Collection[T]) staleLocked() bool {
	return c.dataGen < c.gen || c.opts.now().Sub(c.lastUpdated) >= c.opts.ttl
}

func (c *Collection[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Items:       clone(c.items),
		Loading:     c.inflight > 0,
		LastUpdated: c.lastUpdated,
		Err:         c.lastErr,
	}
}

func (c *Collection[T]) notify() {
	c.mu.RLock()
	snap := c.snapshotLocked()
	c.mu.RUnlock()

	c.subMu.Lock()
	subs := make([]func(Snapshot[T]), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		s := snap
		s.Items = clone(snap.Items)
		fn(s)
	}
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
