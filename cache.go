// Package tiercache implements a typed, multi-tier content cache: a
// hot in-memory tier, a warm on-disk tier, and an optional cold remote
// tier, composed behind a single generic Cache type with single-flight
// coalescing of concurrent misses.
package tiercache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/tiercache/tiercache/codec"
	"github.com/tiercache/tiercache/disktier"
	"github.com/tiercache/tiercache/inflight"
	"github.com/tiercache/tiercache/keyprint"
	"github.com/tiercache/tiercache/memtier"
	"github.com/tiercache/tiercache/remotetier"
)

// Cache composes the three tiers and the inflight registry, and
// implements the sync and async read paths and the mutation/clear API.
// A Cache is safe for concurrent use; mu serializes access to the two
// local tiers, which are not themselves safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	memory *memtier.Tier[K, V]
	disk   *disktier.Tier // nil if Config.Location is empty
	remote *remotetier.Tier

	inflight *inflight.Registry[K, V]

	codec      codec.Codec[V]
	keyPrinter keyprint.Printer[K]

	fetch  func(ctx context.Context, key K) (V, bool, error)
	logger Logger
	// reporter is behind an atomic pointer rather than mu: it is read
	// from resolveFetch/promote, which intentionally run without mu
	// held, while SetErrorReporter may run concurrently with them.
	reporter atomic.Pointer[ErrorReporter]
}

// New constructs a Cache from cfg. codec and keyPrinter supply the
// per-payload encode/decode/cost contract and the stable printable
// form for keys; both are Go values, not config fields, since they
// carry generic type parameters and closures YAML cannot express.
func New[K comparable, V any](cfg Config, c codec.Codec[V], kp keyprint.Printer[K], opts ...Option[K, V]) (*Cache[K, V], error) {
	cfg = cfg.withDefaults()

	cache := &Cache[K, V]{
		memory:     memtier.New[K, V](cfg.InMemoryLimit, cfg.Namespace),
		codec:      c,
		keyPrinter: kp,
		inflight:   inflight.New[K, V](),
	}

	for _, opt := range opts {
		if err := opt(cache); err != nil {
			return nil, fmt.Errorf("tiercache: option: %w", err)
		}
	}
	if cache.reporter.Load() == nil {
		cache.setReporter(defaultReporter(cache.logger))
	}

	// disktier's Get/Put/Remove invoke their Reporter synchronously from
	// inside calls the Cache makes while holding mu (getLocked, Set,
	// promote). Dispatching through a goroutine here keeps
	// that invocation off the cache's lock, regardless of which locked
	// method triggered it.
	diskReporter := func(err error, context string) {
		go cache.report(err, context)
	}

	if cfg.Location != "" {
		disk, err := disktier.New(disktier.Options{
			Dir:       cfg.Location,
			Ext:       c.FileKind(),
			Limit:     cfg.OnDiskLimit,
			Namespace: cfg.Namespace,
			Reporter:  diskReporter,
		})
		if err != nil {
			return nil, fmt.Errorf("tiercache: disk tier: %w", err)
		}
		cache.disk = disk
	}

	if cfg.Remote != nil {
		cache.remote = remotetier.New(remotetier.Config{
			Store:      cfg.Remote.Store,
			RecordType: cfg.Remote.RecordType,
			AssetLimit: cfg.Remote.AssetLimit,
			Reporter:   func(err error, context string) { cache.report(err, context) },
		}, cfg.Namespace)
	}

	return cache, nil
}

func (c *Cache[K, V]) setReporter(r ErrorReporter) {
	c.reporter.Store(&r)
}

// RegisterMetrics registers every configured tier's Prometheus
// collectors against reg. Call at most once per Cache instance.
func (c *Cache[K, V]) RegisterMetrics(reg prometheus.Registerer) error {
	if err := c.memory.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("tiercache: register memory metrics: %w", err)
	}
	if c.disk != nil {
		if err := c.disk.RegisterMetrics(reg); err != nil {
			return fmt.Errorf("tiercache: register disk metrics: %w", err)
		}
	}
	if err := c.remote.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("tiercache: register remote metrics: %w", err)
	}
	return nil
}

// Get is the sync read path: memory, then disk with promotion into
// memory. Never consults the remote tier, and never surfaces an error:
// failures are reported and treated as misses.
func (c *Cache[K, V]) Get(key K, freshness Freshness) (V, bool) {
	c.mu.Lock()
	v, ok, reportErr := c.getLocked(key, freshness, time.Now())
	c.mu.Unlock()
	c.report(reportErr, "get")
	return v, ok
}

// getLocked implements the sync read path's body. Callers must hold
// c.mu. Any error worth reporting is returned rather than reported
// here, so the caller can report it after releasing c.mu.
func (c *Cache[K, V]) getLocked(key K, freshness Freshness, now time.Time) (V, bool, error) {
	var zero V

	if v, ok := c.memory.Get(key, func(cachedAt time.Time) bool { return freshness.passes(cachedAt, now) }, now); ok {
		return v, true, nil
	}

	if c.disk == nil {
		return zero, false, nil
	}

	printable := c.keyPrinter.Print(key)
	data, cachedAt, ok := c.disk.Get(printable, func(t time.Time) bool { return freshness.passes(t, now) }, now)
	if !ok {
		return zero, false, nil
	}

	v, err := c.codec.Decode(data)
	if err != nil {
		return zero, false, newError(DecodeFailed, "decode disk entry for "+printable, err)
	}

	c.memory.Put(key, v, c.codec.Cost(v), cachedAt)
	return v, true, nil
}

// Set is the write path. A nil payload removes key from every tier; a
// non-nil payload is encoded, costed, written to memory and disk, and
// upserted to the remote tier in the background. No error is surfaced
// on this path; encode and I/O failures are reported.
func (c *Cache[K, V]) Set(key K, payload *V) {
	printable := c.keyPrinter.Print(key)

	if payload == nil {
		c.mu.Lock()
		c.memory.Remove(key)
		if c.disk != nil {
			c.disk.Remove(printable)
		}
		c.mu.Unlock()
		go c.remote.Remove(context.Background(), printable)
		return
	}

	// Encode before taking mu: it touches no tier state, and keeping it
	// outside the lock means a report on encode failure never runs
	// while c.mu is held.
	data, err := c.codec.Encode(*payload)
	if err != nil {
		c.report(newError(NoDataAvailable, "encode "+printable, err), "set")
		return
	}

	now := time.Now()
	c.mu.Lock()
	c.memory.Put(key, *payload, c.codec.Cost(*payload), now)
	if c.disk != nil {
		c.disk.Put(printable, data, now)
	}
	c.mu.Unlock()
	c.remote.Put(context.Background(), printable, data)
}

// GetAsync is the async read path: the sync path first, then
// single-flight join-or-start of remote lookup and the fetch
// callback.
func (c *Cache[K, V]) GetAsync(ctx context.Context, key K, freshness Freshness) (V, bool, error) {
	c.mu.Lock()
	v, ok, reportErr := c.getLocked(key, freshness, time.Now())
	hasSource := c.remote != nil || c.fetch != nil
	c.mu.Unlock()

	c.report(reportErr, "get_async")
	if ok {
		return v, true, nil
	}

	if !hasSource {
		var zero V
		return zero, false, nil
	}

	return c.inflight.GetOrStart(ctx, key, func(taskCtx context.Context) (V, bool, error) {
		return c.resolveFetch(taskCtx, key, freshness)
	})
}

// resolveFetch runs the body of an async fetch task: remote lookup
// first, then the caller's fetch callback.
func (c *Cache[K, V]) resolveFetch(ctx context.Context, key K, freshness Freshness) (V, bool, error) {
	var zero V
	printable := c.keyPrinter.Print(key)

	if c.remote != nil {
		data, modTime, ok, err := c.remote.Get(ctx, printable, func(cachedAt time.Time) bool {
			return freshness.passes(cachedAt, time.Now())
		})
		if err != nil {
			wrapped := newError(RemoteTransient, "remote get "+printable, err)
			c.report(wrapped, "get_async")
			return zero, false, wrapped
		}
		if ok {
			v, err := c.codec.Decode(data)
			if err != nil {
				c.report(newError(DecodeFailed, "decode remote entry for "+printable, err), "get_async")
			} else {
				c.promote(key, printable, v, modTime)
				return v, true, nil
			}
		}
	}

	if c.fetch != nil {
		v, found, err := c.fetch(ctx, key)
		if err != nil {
			wrapped := newError(FetchFailed, "fetch "+printable, err)
			c.report(wrapped, "get_async")
			return zero, false, wrapped
		}
		if found {
			now := time.Now()
			c.promote(key, printable, v, now)
			return v, true, nil
		}
	}

	return zero, false, nil
}

// promote stores v into memory and disk with the given cached_at, and
// enqueues a background remote upsert. Used for the async path's
// remote/fetch promotion; the sync path's disk promotion in getLocked
// inserts into memory itself and does not call promote.
func (c *Cache[K, V]) promote(key K, printable string, v V, cachedAt time.Time) {
	data, err := c.codec.Encode(v)
	if err != nil {
		c.report(newError(NoDataAvailable, "encode "+printable+" for promotion", err), "get_async")
		return
	}

	c.mu.Lock()
	c.memory.Put(key, v, c.codec.Cost(v), cachedAt)
	if c.disk != nil {
		c.disk.Put(printable, data, cachedAt)
	}
	c.mu.Unlock()

	c.remote.Put(context.Background(), printable, data)
}

// Clear synchronously clears the local tiers named by memory/disk.
// Clearing memory cancels every outstanding async fetch, since a
// cancelled fetch's eventual write would otherwise resurrect entries
// the caller just asked to discard.
func (c *Cache[K, V]) Clear(memory, disk bool) error {
	c.mu.Lock()
	err := c.clearLocked(memory, disk)
	c.mu.Unlock()
	c.report(err, "clear")
	return err
}

// clearLocked implements Clear's body. Callers must hold c.mu. Any
// error worth reporting is returned, not reported here, so the caller
// can report it after releasing c.mu.
func (c *Cache[K, V]) clearLocked(memory, disk bool) error {
	if memory {
		c.memory.Clear()
		c.inflight.CancelAll()
	}
	if disk && c.disk != nil {
		if err := c.disk.Clear(); err != nil {
			return newError(LocalIO, "clear disk tier", err)
		}
	}
	return nil
}

// ClearAsync clears the local tiers named by memory/disk, and, if
// remote is true and a remote tier is configured, clears it
// concurrently with the local clear. A remote transport failure is
// returned in preference; otherwise the local clear's error, if any.
func (c *Cache[K, V]) ClearAsync(ctx context.Context, memory, disk, remote bool) error {
	g, gctx := errgroup.WithContext(ctx)

	var localErr error
	g.Go(func() error {
		localErr = c.Clear(memory, disk)
		return nil
	})

	if remote {
		g.Go(func() error {
			if err := c.remote.Clear(gctx); err != nil {
				return newError(RemoteTransient, "clear remote tier", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return localErr
}

// InMemoryCost returns the memory tier's current total payload cost.
func (c *Cache[K, V]) InMemoryCost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory.TotalCost()
}

// OnDiskCost returns the disk tier's current total file size, or 0 if
// no disk tier is configured.
func (c *Cache[K, V]) OnDiskCost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disk == nil {
		return 0
	}
	return c.disk.TotalCost()
}

// Stats reports the current size of every local tier, for
// diagnostics and tests.
func (c *Cache[K, V]) Stats() (inMemoryCost, onDiskCost int64, memItems, diskItems int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inMemoryCost = c.memory.TotalCost()
	memItems = c.memory.Len()
	if c.disk != nil {
		onDiskCost = c.disk.TotalCost()
		diskItems = c.disk.Len()
	}
	return
}
