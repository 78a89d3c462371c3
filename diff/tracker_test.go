package diff

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/kvstore"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

func newLogFixture() (*arena.Arena, *oplog.Log) {
	ar := arena.New()
	store := oplog.NewChangeStore(kvstore.New(kvstore.NewBlockCache(1 << 20)))
	log := oplog.NewLog(store, ar)
	return ar, log
}

func TestTrackerReplayToEarlierFrontierOmitsLaterOps(t *testing.T) {
	ar, log := newLogFixture()
	idx := ar.RegisterContainer(arena.RootContainerID("t", arena.KindText))

	if _, err := log.AppendLocalChange(1, []oplog.Op{{Container: idx, Counter: 0, Content: oplog.TextInsert{Text: ar.InternText([]byte("ab"))}}}, 0, ""); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	cut := log.Frontiers().Clone()

	if _, err := log.AppendLocalChange(1, []oplog.Op{{Container: idx, Counter: 2, Content: oplog.TextInsert{Text: ar.InternText([]byte("cd"))}}}, 0, ""); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	tracker := NewTracker(log, ar)
	reg, err := tracker.ReplayTo(cut)
	if err != nil {
		t.Fatalf("replay to cut: %v", err)
	}
	v, ok := reg.Value(idx).(state.TextValue)
	if !ok || v.Text != "ab" {
		t.Fatalf("value at cut = %+v, ok=%v, want %q", v, ok, "ab")
	}

	regFull, err := tracker.ReplayTo(log.Frontiers())
	if err != nil {
		t.Fatalf("replay to current: %v", err)
	}
	vFull, ok := regFull.Value(idx).(state.TextValue)
	if !ok || vFull.Text != "abcd" {
		t.Fatalf("value at current = %+v, ok=%v, want %q", vFull, ok, "abcd")
	}
}

func TestTrackerReplayToEmptyFrontiersYieldsEmptyState(t *testing.T) {
	ar, log := newLogFixture()
	idx := ar.RegisterContainer(arena.RootContainerID("t", arena.KindText))
	if _, err := log.AppendLocalChange(1, []oplog.Op{{Container: idx, Counter: 0, Content: oplog.TextInsert{Text: ar.InternText([]byte("x"))}}}, 0, ""); err != nil {
		t.Fatalf("append: %v", err)
	}

	tracker := NewTracker(log, ar)
	reg, err := tracker.ReplayTo(nil)
	if err != nil {
		t.Fatalf("replay to nil frontiers: %v", err)
	}
	if v := reg.Value(idx); v != nil {
		if tv, ok := v.(state.TextValue); ok && tv.Text != "" {
			t.Fatalf("value at empty frontiers = %+v, want empty", tv)
		}
	}
}
