// Package remotetier implements tiercache's optional cold, shared
// tier: a best-effort, asynchronous mirror of the local tiers backed
// by an external ObjectStore (network object store, one per user
// account). A background upload queue decouples writes from the
// network; hit/miss counters and a split between swallowed
// (permission, unknown-record) and propagated (transport) errors round
// out its observability surface.
package remotetier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownRecord is returned (or wrapped) by an ObjectStore when the
// requested record does not exist. RemoteTier treats it as a cache
// miss, never an error.
var ErrUnknownRecord = errors.New("remotetier: unknown record")

// ErrPermissionDenied is returned (or wrapped) by an ObjectStore when
// the backend rejects a write due to misconfiguration. RemoteTier
// swallows it on Put; Remove reports and returns it.
var ErrPermissionDenied = errors.New("remotetier: permission denied")

// Record is one remote entry, identified by "<record-type>:<printable
// key>". Exactly one of Inline or Asset is populated.
type Record struct {
	ID      string
	Inline  []byte
	Asset   []byte
	ModTime time.Time
}

// Bytes returns whichever of Inline/Asset is populated.
func (r *Record) Bytes() []byte {
	if len(r.Inline) > 0 {
		return r.Inline
	}
	return r.Asset
}

// ObjectStore is the external contract RemoteTier is built against:
// fetch a record by id, upsert a record, and query+delete all records
// of a given type.
type ObjectStore interface {
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	ListIDs(ctx context.Context, recordType string) ([]string, error)
}

// Config configures a Tier.
type Config struct {
	Store      ObjectStore
	RecordType string
	AssetLimit int64
	Reporter   func(err error, context string)

	NumUploaders     int
	MaxQueuedUploads int
}

type uploadReq struct {
	ctx context.Context
	id  string
	rec *Record
}

// Tier is the remote cache tier. A nil *Tier is valid and behaves as
// "not configured": every operation is a no-op miss.
type Tier struct {
	store      ObjectStore
	recordType string
	assetLimit int64
	reporter   func(err error, context string)

	uploads chan<- uploadReq

	hits      prometheus.Counter
	misses    prometheus.Counter
	errors    prometheus.Counter
	swallowed prometheus.Counter
}

// New returns a configured Tier. If cfg.Store is nil, New returns a
// nil *Tier (not configured).
func New(cfg Config, namespace string) *Tier {
	if cfg.Store == nil {
		return nil
	}

	numUploaders := cfg.NumUploaders
	if numUploaders <= 0 {
		numUploaders = 8
	}
	maxQueued := cfg.MaxQueuedUploads
	if maxQueued <= 0 {
		maxQueued = 1000
	}

	t := &Tier{
		store:      cfg.Store,
		recordType: cfg.RecordType,
		assetLimit: cfg.AssetLimit,
		reporter:   cfg.Reporter,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_remote_cache_hits_total",
			Help: "Hits against the remote cache tier.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_remote_cache_misses_total",
			Help: "Misses against the remote cache tier.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_remote_cache_errors_total",
			Help: "Transport errors from the remote cache tier.",
		}),
		swallowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: namespace + "_remote_cache_swallowed_errors_total",
			Help: "Permission/unknown-record errors swallowed by the remote cache tier.",
		}),
	}

	queue := make(chan uploadReq, maxQueued)
	for i := 0; i < numUploaders; i++ {
		go func() {
			for req := range queue {
				if err := t.store.Put(req.ctx, req.rec); err != nil {
					t.reportPutError(err, req.rec.ID)
				}
			}
		}()
	}
	t.uploads = queue

	return t
}

// RegisterMetrics registers the tier's Prometheus collectors. A nil
// *Tier is a no-op.
func (t *Tier) RegisterMetrics(reg prometheus.Registerer) error {
	if t == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{t.hits, t.misses, t.errors, t.swallowed} {
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

func (t *Tier) recordID(printableKey string) string {
	return fmt.Sprintf("%s:%s", t.recordType, printableKey)
}

// Get fetches the record for printableKey and returns its bytes and
// modification time if it exists and passes fresh. The returned
// modTime is the record's last-write time, which Cache uses as
// cached_at when promoting a remote hit into the local tiers. An
// absent record is a miss (nil error), not a failure. Decode/transport
// errors are reported and returned.
func (t *Tier) Get(ctx context.Context, printableKey string, fresh func(cachedAt time.Time) bool) ([]byte, time.Time, bool, error) {
	if t == nil {
		return nil, time.Time{}, false, nil
	}

	rec, err := t.store.Get(ctx, t.recordID(printableKey))
	if err != nil {
		if errors.Is(err, ErrUnknownRecord) {
			t.misses.Inc()
			return nil, time.Time{}, false, nil
		}
		t.errors.Inc()
		t.report(err, "remotetier: get "+printableKey)
		return nil, time.Time{}, false, err
	}

	if fresh != nil && !fresh(rec.ModTime) {
		t.misses.Inc()
		return nil, time.Time{}, false, nil
	}

	t.hits.Inc()
	return rec.Bytes(), rec.ModTime, true, nil
}

// Put enqueues a best-effort, asynchronous upsert of data under
// printableKey. Data smaller than AssetLimit is stored inline,
// otherwise as an asset; an AssetLimit of 0 stores everything inline.
// Permission errors are swallowed (reported
// only); Put itself never blocks on the network.
func (t *Tier) Put(ctx context.Context, printableKey string, data []byte) {
	if t == nil {
		return
	}

	rec := &Record{ID: t.recordID(printableKey)}
	if t.assetLimit > 0 && int64(len(data)) >= t.assetLimit {
		rec.Asset = data
	} else {
		rec.Inline = data
	}

	select {
	case t.uploads <- uploadReq{ctx: ctx, id: rec.ID, rec: rec}:
	default:
		t.report(fmt.Errorf("upload queue full"), "remotetier: put "+printableKey)
	}
}

func (t *Tier) reportPutError(err error, id string) {
	if errors.Is(err, ErrPermissionDenied) {
		t.swallowed.Inc()
		t.report(err, "remotetier: permission denied on put "+id)
		return
	}
	t.errors.Inc()
	t.report(err, "remotetier: put "+id)
}

// Remove deletes printableKey's remote record. An unknown-record error
// is swallowed; any other error is reported and returned.
func (t *Tier) Remove(ctx context.Context, printableKey string) error {
	if t == nil {
		return nil
	}
	err := t.store.Delete(ctx, t.recordID(printableKey))
	if err == nil || errors.Is(err, ErrUnknownRecord) {
		return nil
	}
	t.errors.Inc()
	t.report(err, "remotetier: remove "+printableKey)
	return err
}

// Clear deletes every record of this tier's record type. Per-record
// delete failures are reported, not returned; only a failure listing
// the record ids causes Clear to return an error.
func (t *Tier) Clear(ctx context.Context) error {
	if t == nil {
		return nil
	}

	ids, err := t.store.ListIDs(ctx, t.recordType)
	if err != nil {
		t.report(err, "remotetier: list for clear")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := t.store.Delete(gctx, id); err != nil {
				if errors.Is(err, ErrUnknownRecord) {
					return nil
				}
				t.report(err, "remotetier: clear delete "+id)
			}
			return nil
		})
	}
	return g.Wait()
}
