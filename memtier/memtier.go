// Package memtier implements tiercache's hot, in-memory tier: a
// generic, cost-bounded LRU map with cached_at / accessed_at
// bookkeeping and freshness-aware Get.
//
// A Tier is not safe for concurrent use; the owning Cache serializes
// access.
package memtier

import (
	"container/list"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Entry is one stored value plus its LRU/cost/freshness bookkeeping.
type Entry[V any] struct {
	Payload    V
	Cost       int64
	CachedAt   time.Time
	AccessedAt time.Time
}

type record[K comparable, V any] struct {
	key   K
	entry Entry[V]
}

// Tier is the in-memory cache tier. Eviction runs on overflow,
// draining to 75% of the limit (the "75% drawdown") to avoid eviction
// thrash at a limit under steady load.
type Tier[K comparable, V any] struct {
	limit       int64
	totalCost   int64
	ll          *list.List // front = most recently accessed
	items       map[K]*list.Element
	hits        prometheus.Counter
	misses      prometheus.Counter
	evictions   prometheus.Counter
	costCounter prometheus.Gauge
}

// New returns a Tier bounded by limit bytes of payload cost. A limit
// of 0 disables eviction (unbounded).
func New[K comparable, V any](limit int64, namespace string) *Tier[K, V] {
	return &Tier[K, V]{
		limit: limit,
		ll:    list.New(),
		items: make(map[K]*list.Element),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_memory_cache_hits_total",
			Help: "Hits against the in-memory cache tier.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_memory_cache_misses_total",
			Help: "Misses against the in-memory cache tier.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_memory_cache_evictions_total",
			Help: "Items evicted from the in-memory cache tier.",
		}),
		costCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: namespace + "_memory_cache_cost_bytes",
			Help: "Current total cost of the in-memory cache tier.",
		}),
	}
}

// RegisterMetrics registers the tier's Prometheus collectors. Call at
// most once per Tier instance.
func (t *Tier[K, V]) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{t.hits, t.misses, t.evictions, t.costCounter} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry's payload if present and fresh, bumping its
// accessed_at and LRU position on hit.
func (t *Tier[K, V]) Get(key K, fresh func(cachedAt time.Time) bool, now time.Time) (V, bool) {
	var zero V
	ele, ok := t.items[key]
	if !ok {
		t.misses.Inc()
		return zero, false
	}
	rec := ele.Value.(*record[K, V])
	if fresh != nil && !fresh(rec.entry.CachedAt) {
		t.misses.Inc()
		return zero, false
	}
	rec.entry.AccessedAt = now
	t.ll.MoveToFront(ele)
	t.hits.Inc()
	return rec.entry.Payload, true
}

// Put inserts or overwrites the entry for key, evicting as needed to
// respect the limit. cost is the payload's self-reported byte cost.
func (t *Tier[K, V]) Put(key K, payload V, cost int64, cachedAt time.Time) {
	if ele, ok := t.items[key]; ok {
		old := ele.Value.(*record[K, V])
		t.totalCost -= old.entry.Cost
		old.entry = Entry[V]{Payload: payload, Cost: cost, CachedAt: cachedAt, AccessedAt: cachedAt}
		t.ll.MoveToFront(ele)
	} else {
		rec := &record[K, V]{key: key, entry: Entry[V]{
			Payload: payload, Cost: cost, CachedAt: cachedAt, AccessedAt: cachedAt,
		}}
		ele := t.ll.PushFront(rec)
		t.items[key] = ele
	}
	t.totalCost += cost
	t.costCounter.Set(float64(t.totalCost))

	if t.limit > 0 && t.totalCost > t.limit {
		t.purgeTo(t.limit * 3 / 4)
	}
}

// Remove deletes key's entry, if present. No-op otherwise.
func (t *Tier[K, V]) Remove(key K) {
	ele, ok := t.items[key]
	if !ok {
		return
	}
	t.removeElement(ele)
}

// Clear discards all entries.
func (t *Tier[K, V]) Clear() {
	t.ll.Init()
	t.items = make(map[K]*list.Element)
	t.totalCost = 0
	t.costCounter.Set(0)
}

// TotalCost returns the tier's current total payload cost.
func (t *Tier[K, V]) TotalCost() int64 { return t.totalCost }

// Len returns the number of entries currently stored.
func (t *Tier[K, V]) Len() int { return len(t.items) }

// purgeTo evicts least-recently-accessed entries until total cost is
// at most target.
func (t *Tier[K, V]) purgeTo(target int64) {
	for t.totalCost > target {
		back := t.ll.Back()
		if back == nil {
			return
		}
		t.removeElement(back)
		t.evictions.Inc()
	}
}

func (t *Tier[K, V]) removeElement(ele *list.Element) {
	rec := ele.Value.(*record[K, V])
	t.ll.Remove(ele)
	delete(t.items, rec.key)
	t.totalCost -= rec.entry.Cost
	t.costCounter.Set(float64(t.totalCost))
}
