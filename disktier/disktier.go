// Package disktier implements tiercache's warm, on-disk tier: one
// regular file per entry under a configured root directory, LRU-purged
// by access time and cost-bounded by total file size. Each live entry
// is a single opaque blob with no header, no compression, and no
// sidecar files; the directory is re-creatable, so deleting it by hand
// is equivalent to clearing the tier.
package disktier

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/djherbis/atime"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tiercache/tiercache/keyprint"
)

// lruItem is the bookkeeping stored in the in-memory LRU index for
// each on-disk entry. The authoritative size comes from the write
// that created the file; the filesystem is only re-scanned at
// construction.
type lruItem struct {
	printableKey string
	size         int64
}

// Tier is the on-disk cache tier. Not safe for concurrent use; the
// owning Cache serializes access.
type Tier struct {
	dir string
	ext string

	limit     int64
	totalCost int64

	ll    *list.List
	items map[string]*list.Element // keyed by sanitized filename stem

	reporter func(err error, context string)

	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	cost      prometheus.Gauge
}

// Options configures a Tier at construction.
type Options struct {
	// Dir is the cache root directory. Created if missing.
	Dir string
	// Ext is the Codec's file-kind tag, used as the filename
	// extension for every entry in this tier.
	Ext string
	// Limit is the disk cost ceiling in bytes. 0 disables eviction.
	Limit int64
	// Namespace prefixes this tier's Prometheus metric names.
	Namespace string
	// Reporter receives non-fatal I/O errors. May be nil.
	Reporter func(err error, context string)
}

// New returns a Tier rooted at opts.Dir, creating the directory if
// necessary and indexing any files already present.
func New(opts Options) (*Tier, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("disktier: create cache dir: %w", err)
	}
	dir, err := filepath.EvalSymlinks(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("disktier: resolve cache dir: %w", err)
	}

	t := &Tier{
		dir:      dir,
		ext:      opts.Ext,
		limit:    opts.Limit,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		reporter: opts.Reporter,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: opts.Namespace + "_disk_cache_hits_total",
			Help: "Hits against the on-disk cache tier.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: opts.Namespace + "_disk_cache_misses_total",
			Help: "Misses against the on-disk cache tier.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: opts.Namespace + "_disk_cache_evictions_total",
			Help: "Items evicted from the on-disk cache tier.",
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: opts.Namespace + "_disk_cache_cost_bytes",
			Help: "Current total cost of the on-disk cache tier.",
		}),
	}

	if err := t.loadExisting(); err != nil {
		return nil, fmt.Errorf("disktier: load existing files: %w", err)
	}

	return t, nil
}

// RegisterMetrics registers the tier's Prometheus collectors.
func (t *Tier) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{t.hits, t.misses, t.evictions, t.cost} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tier) report(err error, context string) {
	if err != nil && t.reporter != nil {
		t.reporter(err, context)
	}
}

// path returns the on-disk path for a sanitized key stem.
func (t *Tier) path(stem string) string {
	return filepath.Join(t.dir, stem+"."+t.ext)
}

type fileWithInfo struct {
	stem string
	info os.FileInfo
}

// loadExisting enumerates files already on disk and rebuilds the LRU
// index from their access times, so eviction order survives process
// restarts.
func (t *Tier) loadExisting() error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return err
	}

	var files []fileWithInfo
	suffix := "." + t.ext
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			t.report(err, "disktier: stat during load")
			continue
		}
		files = append(files, fileWithInfo{stem: name[:len(name)-len(suffix)], info: info})
	}

	sort.Slice(files, func(i, j int) bool {
		return atime.Get(files[i].info).Before(atime.Get(files[j].info))
	})

	for _, f := range files {
		ele := t.ll.PushFront(&lruItem{printableKey: f.stem, size: f.info.Size()})
		t.items[f.stem] = ele
		t.totalCost += f.info.Size()
	}
	t.cost.Set(float64(t.totalCost))

	if t.limit > 0 && t.totalCost > t.limit {
		t.purgeTo(t.limit * 3 / 4)
	}

	return nil
}

// Get reads the blob stored under printableKey if present and fresh.
// fresh receives the entry's cached_at (the file's access-time stamp,
// since the filesystem has no portable creation time) and reports
// whether the entry still passes the caller's freshness predicate. On
// a hit, the file's access/modification time is bumped to now.
//
// I/O failures are reported, not returned: a failed Get is simply a
// miss.
func (t *Tier) Get(printableKey string, fresh func(cachedAt time.Time) bool, now time.Time) (data []byte, cachedAt time.Time, ok bool) {
	stem := keyprint.Sanitize(printableKey)
	p := t.path(stem)

	info, err := os.Stat(p)
	if err != nil {
		t.misses.Inc()
		return nil, time.Time{}, false
	}

	cachedAt = atime.Get(info)
	if fresh != nil && !fresh(cachedAt) {
		t.misses.Inc()
		return nil, time.Time{}, false
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.report(err, "disktier: read "+p)
		t.misses.Inc()
		return nil, time.Time{}, false
	}

	if err := os.Chtimes(p, now, now); err != nil {
		t.report(err, "disktier: touch "+p)
	}
	if ele, found := t.items[stem]; found {
		t.ll.MoveToFront(ele)
	}

	t.hits.Inc()
	return b, cachedAt, true
}

// Put writes data under printableKey, atomically replacing any
// existing file, and evicts as needed to respect the disk limit. A
// write failure is reported and leaves the tier unmodified; ok is
// false in that case.
func (t *Tier) Put(printableKey string, data []byte, now time.Time) (ok bool) {
	stem := keyprint.Sanitize(printableKey)
	final := t.path(stem)

	tmp := filepath.Join(t.dir, stem+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		t.report(err, "disktier: write temp file for "+final)
		return false
	}
	if err := os.Chtimes(tmp, now, now); err != nil {
		t.report(err, "disktier: set mtime on "+tmp)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		t.report(err, "disktier: rename into place "+final)
		return false
	}

	if ele, exists := t.items[stem]; exists {
		old := ele.Value.(*lruItem)
		t.totalCost -= old.size
		old.size = int64(len(data))
		t.ll.MoveToFront(ele)
	} else {
		ele := t.ll.PushFront(&lruItem{printableKey: stem, size: int64(len(data))})
		t.items[stem] = ele
	}
	t.totalCost += int64(len(data))
	t.cost.Set(float64(t.totalCost))

	if t.limit > 0 && t.totalCost > t.limit {
		t.purgeTo(t.limit * 3 / 4)
	}

	return true
}

// Remove deletes printableKey's file, if any. Missing files are not
// an error.
func (t *Tier) Remove(printableKey string) {
	stem := keyprint.Sanitize(printableKey)
	ele, exists := t.items[stem]
	if !exists {
		return
	}
	t.removeElement(ele)
}

// Clear deletes the cache directory tree and recreates it empty.
func (t *Tier) Clear() error {
	if err := os.RemoveAll(t.dir); err != nil {
		return fmt.Errorf("disktier: remove cache dir: %w", err)
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("disktier: recreate cache dir: %w", err)
	}
	t.ll.Init()
	t.items = make(map[string]*list.Element)
	t.totalCost = 0
	t.cost.Set(0)
	return nil
}

// TotalCost returns the tier's current total file size.
func (t *Tier) TotalCost() int64 { return t.totalCost }

// Len returns the number of entries currently on disk.
func (t *Tier) Len() int { return len(t.items) }

func (t *Tier) purgeTo(target int64) {
	for t.totalCost > target {
		back := t.ll.Back()
		if back == nil {
			return
		}
		t.removeElement(back)
		t.evictions.Inc()
	}
}

func (t *Tier) removeElement(ele *list.Element) {
	item := ele.Value.(*lruItem)
	t.ll.Remove(ele)
	delete(t.items, item.printableKey)
	t.totalCost -= item.size
	t.cost.Set(float64(t.totalCost))

	p := t.path(item.printableKey)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		t.report(err, "disktier: remove evicted file "+p)
	}
}
