// Package cache keeps compiled templates keyed by loader uid, recompiling a
// unit only when the loader reports a new timestamp.
package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/breve/internal/logging"
	"github.com/conneroisu/breve/pkg/compiler"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/loader"
)

// Unit is a compiled template together with the loader identity and
// timestamp it was compiled from.
type Unit struct {
	ID        string
	Timestamp int64
	Program   *compiler.Program
	// CompiledAt is informational only; freshness is decided by Timestamp.
	CompiledAt time.Time
}

// CompileFunc turns template source into a program.
type CompileFunc func(name, src string) (*compiler.Program, error)

// Cache holds at most one unit per uid. It is unbounded unless
// WithMaxEntries is given, in which case the least recently used unit is
// evicted.
type Cache struct {
	entries    map[string]*entry
	mutex      sync.RWMutex
	maxEntries int
	compile    CompileFunc
	logger     logging.Logger
	group      singleflight.Group

	// LRU implementation
	head *entry
	tail *entry

	hits      int64
	misses    int64
	compiles  int64
	evictions int64
}

type entry struct {
	uid  string
	unit *Unit
	prev *entry
	next *entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of cached units. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithLogger sets the logger used for compile and eviction events.
func WithLogger(l logging.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l.WithComponent("cache")
		}
	}
}

// WithCompiler replaces compiler.Compile.
func WithCompiler(fn CompileFunc) Option {
	return func(c *Cache) {
		if fn != nil {
			c.compile = fn
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		compile: compiler.Compile,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Initialize LRU doubly-linked list with dummy head and tail
	c.head = &entry{}
	c.tail = &entry{}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Compile returns the unit for id, compiling it when it is not cached or
// when the loader reports a timestamp different from the cached one.
// Failures are never cached. Concurrent callers asking for the same
// (uid, timestamp) share a single load and compile.
func (c *Cache) Compile(ctx context.Context, id, root string, l loader.Loader) (*Unit, error) {
	uid, ts, err := l.Stat(id, root)
	if err != nil {
		return nil, err
	}

	if u, ok := c.lookup(uid, ts); ok {
		atomic.AddInt64(&c.hits, 1)
		return u, nil
	}
	atomic.AddInt64(&c.misses, 1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := uid + "@" + strconv.FormatInt(ts, 10)
	v, err, shared := c.group.Do(key, func() (any, error) {
		if u, ok := c.lookup(uid, ts); ok {
			return u, nil
		}
		return c.build(ctx, id, uid, ts, l)
	})
	if err != nil {
		// Waiters share one error value; each caller gets its own copy.
		if be, ok := err.(*berrors.BreveError); ok {
			return nil, be.Clone()
		}
		return nil, err
	}
	if shared {
		c.logger.Debug(ctx, "Shared in-flight compile", "template", id, "uid", uid)
	}
	return v.(*Unit), nil
}

func (c *Cache) build(ctx context.Context, id, uid string, ts int64, l loader.Loader) (*Unit, error) {
	perf := logging.StartOperation(c.logger, "compile")

	src, err := l.Load(uid)
	if err != nil {
		perf.EndWithError(ctx, err, "template", id)
		return nil, err
	}

	prog, err := c.compile(uid, src)
	if err != nil {
		perf.EndWithError(ctx, err, "template", id)
		return nil, err
	}

	u := &Unit{ID: uid, Timestamp: ts, Program: prog, CompiledAt: time.Now()}
	c.store(u)
	atomic.AddInt64(&c.compiles, 1)
	perf.End(ctx, "template", id, "uid", uid, "timestamp", ts)
	return u, nil
}

// lookup returns a fresh unit. Unbounded caches only take the read lock;
// bounded ones also refresh the entry's LRU position.
func (c *Cache) lookup(uid string, ts int64) (*Unit, bool) {
	c.mutex.RLock()
	e, ok := c.entries[uid]
	fresh := ok && e.unit.Timestamp == ts
	c.mutex.RUnlock()
	if !fresh {
		return nil, false
	}

	if c.maxEntries > 0 {
		c.mutex.Lock()
		// The entry may have been replaced or evicted since the read.
		if cur, ok := c.entries[uid]; ok && cur == e {
			c.moveToFront(e)
		}
		c.mutex.Unlock()
	}
	return e.unit, true
}

func (c *Cache) store(u *Unit) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, ok := c.entries[u.ID]; ok {
		existing.unit = u
		c.moveToFront(existing)
		return
	}

	c.evictIfNeeded()

	e := &entry{uid: u.ID, unit: u}
	c.entries[u.ID] = e
	c.addToFront(e)
}

// evictIfNeeded makes room for one more entry.
func (c *Cache) evictIfNeeded() {
	if c.maxEntries == 0 {
		return
	}
	for len(c.entries) >= c.maxEntries && c.tail.prev != c.head {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.uid)
		atomic.AddInt64(&c.evictions, 1)
		c.logger.Debug(context.Background(), "Evicted compiled unit", "uid", lru.uid)
	}
}

// Invalidate drops the unit for uid and reports whether one was cached.
func (c *Cache) Invalidate(uid string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[uid]
	if !ok {
		return false
	}
	c.removeFromList(e)
	delete(c.entries, uid)
	return true
}

// Clear removes every unit and resets statistics.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*entry)
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.compiles, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// Len returns the number of cached units.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Compiles  int64
	Evictions int64
}

// HitRate returns hits as a fraction of all lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Compiles:  atomic.LoadInt64(&c.compiles),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// LRU doubly-linked list operations
func (c *Cache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *Cache) moveToFront(e *entry) {
	c.removeFromList(e)
	c.addToFront(e)
}
