package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewNilRegistryReturnsNoop(t *testing.T) {
	s := New(nil)
	if _, ok := s.(noopSink); !ok {
		t.Fatalf("New(nil) = %T, want noopSink", s)
	}
	// Must not panic on any call.
	s.OpsApplied("text_insert", 3)
	s.ChangeImported(true)
	s.BytesFlushed(128)
	s.BlockCacheHit()
	s.BlockCacheMiss()
	s.SnapshotExported("Updates", time.Millisecond, 64)
	s.SnapshotImported("Updates", time.Millisecond)
}

func counterVecValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestPromSinkRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	p, ok := s.(*promSink)
	if !ok {
		t.Fatalf("New(reg) = %T, want *promSink", s)
	}

	p.OpsApplied("map_set", 2)
	if got := counterVecValue(t, p.ops, "map_set"); got != 2 {
		t.Fatalf("ops_applied_total{kind=map_set} = %v, want 2", got)
	}

	p.ChangeImported(true)
	p.ChangeImported(false)
	if got := counterVecValue(t, p.changesImported, "applied"); got != 1 {
		t.Fatalf("changes_imported_total{outcome=applied} = %v, want 1", got)
	}
	if got := counterVecValue(t, p.changesImported, "pending"); got != 1 {
		t.Fatalf("changes_imported_total{outcome=pending} = %v, want 1", got)
	}

	p.BlockCacheHit()
	p.BlockCacheHit()
	p.BlockCacheMiss()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"loro_ops_applied_total",
		"loro_changes_imported_total",
		"loro_changestore_bytes_flushed_total",
		"loro_blockcache_hits_total",
		"loro_blockcache_misses_total",
		"loro_snapshot_exports_total",
		"loro_snapshot_export_bytes",
		"loro_snapshot_export_seconds",
		"loro_snapshot_import_seconds",
	} {
		if !found[name] {
			t.Fatalf("gather: missing registered metric %q", name)
		}
	}
}

func TestPromSinkDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic registering a second sink against the same registry")
		}
	}()
	New(reg)
}
