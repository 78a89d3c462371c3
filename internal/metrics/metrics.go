// Package metrics is a thin abstraction over Prometheus so a Document can be
// used with or without metrics: pass a *prometheus.Registry at construction
// to get labeled collectors, otherwise a no-op Sink is used and the hot
// path pays nothing for metric updates.
//
// Metric names follow Prometheus best practice, suffixed with "_total" for
// counters. All metrics are process-global (one Document per process in the
// common case); a multi-document process shares one Sink across documents.
//
// © 2025 arena-cache authors. MIT License.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the generic interface Document and its subpackages depend on;
// concrete backend (Prometheus vs noop) is not exposed past New.
type Sink interface {
	OpsApplied(kind string, n int)
	ChangeImported(ok bool)
	BytesFlushed(n int)
	BlockCacheHit()
	BlockCacheMiss()
	SnapshotExported(mode string, d time.Duration, bytes int)
	SnapshotImported(mode string, d time.Duration)
}

type noopSink struct{}

func (noopSink) OpsApplied(string, int)                    {}
func (noopSink) ChangeImported(bool)                        {}
func (noopSink) BytesFlushed(int)                           {}
func (noopSink) BlockCacheHit()                             {}
func (noopSink) BlockCacheMiss()                            {}
func (noopSink) SnapshotExported(string, time.Duration, int) {}
func (noopSink) SnapshotImported(string, time.Duration)      {}

type promSink struct {
	ops              *prometheus.CounterVec
	changesImported  *prometheus.CounterVec
	bytesFlushed     prometheus.Counter
	blockCacheHits   prometheus.Counter
	blockCacheMisses prometheus.Counter
	snapshotExports  *prometheus.CounterVec
	snapshotExportSz *prometheus.HistogramVec
	snapshotExportDur *prometheus.HistogramVec
	snapshotImportDur *prometheus.HistogramVec
}

func newPromSink(reg *prometheus.Registry) *promSink {
	p := &promSink{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loro", Name: "ops_applied_total", Help: "Operations applied to container state, by op kind.",
		}, []string{"kind"}),
		changesImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loro", Name: "changes_imported_total", Help: "Changes handed to Import, split by outcome.",
		}, []string{"outcome"}),
		bytesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Name: "changestore_bytes_flushed_total", Help: "Bytes written to the change store by FlushPeerChanges.",
		}),
		blockCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Subsystem: "blockcache", Name: "hits_total", Help: "Block cache hits.",
		}),
		blockCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loro", Subsystem: "blockcache", Name: "misses_total", Help: "Block cache misses.",
		}),
		snapshotExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loro", Name: "snapshot_exports_total", Help: "Export calls, by mode.",
		}, []string{"mode"}),
		snapshotExportSz: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loro", Name: "snapshot_export_bytes", Help: "Exported snapshot size in bytes, by mode.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"mode"}),
		snapshotExportDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loro", Name: "snapshot_export_seconds", Help: "Export call latency, by mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		snapshotImportDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loro", Name: "snapshot_import_seconds", Help: "Import call latency, by mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	reg.MustRegister(p.ops, p.changesImported, p.bytesFlushed, p.blockCacheHits, p.blockCacheMisses,
		p.snapshotExports, p.snapshotExportSz, p.snapshotExportDur, p.snapshotImportDur)
	return p
}

func (p *promSink) OpsApplied(kind string, n int) { p.ops.WithLabelValues(kind).Add(float64(n)) }

func (p *promSink) ChangeImported(ok bool) {
	outcome := "applied"
	if !ok {
		outcome = "pending"
	}
	p.changesImported.WithLabelValues(outcome).Inc()
}

func (p *promSink) BytesFlushed(n int)   { p.bytesFlushed.Add(float64(n)) }
func (p *promSink) BlockCacheHit()       { p.blockCacheHits.Inc() }
func (p *promSink) BlockCacheMiss()      { p.blockCacheMisses.Inc() }

func (p *promSink) SnapshotExported(mode string, d time.Duration, bytes int) {
	p.snapshotExports.WithLabelValues(mode).Inc()
	p.snapshotExportSz.WithLabelValues(mode).Observe(float64(bytes))
	p.snapshotExportDur.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *promSink) SnapshotImported(mode string, d time.Duration) {
	p.snapshotImportDur.WithLabelValues(mode).Observe(d.Seconds())
}

// New returns a no-op Sink when reg is nil, otherwise registers and returns a
// Prometheus-backed one. Panics via reg.MustRegister on name collision, same
// as prometheus's own convention.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return noopSink{}
	}
	return newPromSink(reg)
}
