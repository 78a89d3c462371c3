package txn

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/kvstore"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

type fixture struct {
	ar  *arena.Arena
	log *oplog.Log
	reg *state.Registry
}

func newFixture() *fixture {
	ar := arena.New()
	store := oplog.NewChangeStore(kvstore.New(kvstore.NewBlockCache(1 << 20)))
	log := oplog.NewLog(store, ar)
	reg := state.NewRegistry(ar)
	return &fixture{ar: ar, log: log, reg: reg}
}

func (f *fixture) textIdx(name string) arena.Idx {
	return f.ar.RegisterContainer(arena.RootContainerID(name, arena.KindText))
}

func (f *fixture) mapIdx(name string) arena.Idx {
	return f.ar.RegisterContainer(arena.RootContainerID(name, arena.KindMap))
}

func (f *fixture) textValue(idx arena.Idx) string {
	v, ok := f.reg.Value(idx).(state.TextValue)
	if !ok {
		return ""
	}
	return v.Text
}

func TestTransactionApplyIsVisibleBeforeCommit(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")
	tx := Open(1, fx.log, fx.reg, fx.ar)

	if _, err := tx.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("hi"))}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fx.textValue(idx); got != "hi" {
		t.Fatalf("value before commit = %q, want %q (staged op should be visible)", got, "hi")
	}
}

func TestTransactionCommitAppendsChangeAndAdvancesFrontiers(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")
	tx := Open(1, fx.log, fx.reg, fx.ar)
	if _, err := tx.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("hi"))}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	before := fx.log.Frontiers().Clone()
	res, err := tx.Commit(1000, "msg")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	after := fx.log.Frontiers()
	if before.Equal(after) {
		t.Fatalf("frontiers unchanged after commit with buffered ops")
	}
	if !res.Diff.Local {
		t.Fatalf("commit diff Local = false, want true")
	}
	if len(res.Diff.Containers) != 1 {
		t.Fatalf("commit diff Containers = %d, want 1", len(res.Diff.Containers))
	}
	if len(res.Inverse) != 1 {
		t.Fatalf("commit Inverse = %d entries, want 1", len(res.Inverse))
	}
}

func TestTransactionCommitWithNoBufferedOpsIsNoop(t *testing.T) {
	fx := newFixture()
	tx := Open(1, fx.log, fx.reg, fx.ar)
	before := fx.log.Frontiers().Clone()
	res, err := tx.Commit(1000, "")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !before.Equal(fx.log.Frontiers()) {
		t.Fatalf("frontiers advanced on an empty commit")
	}
	if len(res.Diff.Containers) != 0 {
		t.Fatalf("empty commit produced %d container diffs, want 0", len(res.Diff.Containers))
	}
}

func TestTransactionAbortRevertsStagedOps(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")
	tx := Open(1, fx.log, fx.reg, fx.ar)
	if _, err := tx.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("hi"))}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fx.textValue(idx); got != "hi" {
		t.Fatalf("value before abort = %q, want %q", got, "hi")
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if got := fx.textValue(idx); got != "" {
		t.Fatalf("value after abort = %q, want empty", got)
	}
	if tx.Len() != 0 {
		t.Fatalf("buffered ops remain after abort: %d", tx.Len())
	}
}

func TestTransactionAbortRevertsInLIFOOrder(t *testing.T) {
	fx := newFixture()
	idx := fx.mapIdx("m")
	tx := Open(1, fx.log, fx.reg, fx.ar)
	if _, err := tx.Apply(idx, oplog.MapSet{Key: "k", Value: arena.Value{Kind: arena.ValueInt, I64: 1}}); err != nil {
		t.Fatalf("apply 1: %v", err)
	}
	if _, err := tx.Apply(idx, oplog.MapSet{Key: "k", Value: arena.Value{Kind: arena.ValueInt, I64: 2}}); err != nil {
		t.Fatalf("apply 2: %v", err)
	}
	v, _ := fx.reg.Value(idx).(map[string]arena.Value)
	if v["k"].I64 != 2 {
		t.Fatalf("m[k] before abort = %v, want 2", v["k"])
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	v, _ = fx.reg.Value(idx).(map[string]arena.Value)
	if val, present := v["k"]; present {
		t.Fatalf("m[k] after abort = %v, want unset", val)
	}
}

func TestNextCounterAdvancesPerBufferedOp(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")
	tx := Open(1, fx.log, fx.reg, fx.ar)
	c0 := tx.NextCounter()
	if _, err := tx.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("a"))}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	c1 := tx.NextCounter()
	if c1 != c0+1 {
		t.Fatalf("NextCounter after one apply = %d, want %d", c1, c0+1)
	}
}

func TestSetOriginPropagatesToCommitDiff(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")
	tx := Open(1, fx.log, fx.reg, fx.ar)
	tx.SetOrigin("import")
	if _, err := tx.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("a"))}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	res, err := tx.Commit(0, "")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Diff.Origin != "import" {
		t.Fatalf("Diff.Origin = %q, want %q", res.Diff.Origin, "import")
	}
}

func TestOpenTwoTransactionsSequentiallyOnSamePeerAdvancesLamport(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")

	tx1 := Open(1, fx.log, fx.reg, fx.ar)
	if _, err := tx1.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("a"))}); err != nil {
		t.Fatalf("apply 1: %v", err)
	}
	if _, err := tx1.Commit(0, ""); err != nil {
		t.Fatalf("commit 1: %v", err)
	}

	tx2 := Open(1, fx.log, fx.reg, fx.ar)
	if tx2.NextCounter() == 0 {
		t.Fatalf("second transaction's start counter did not advance past the first")
	}
}

func TestApplyReturnsOwnID(t *testing.T) {
	fx := newFixture()
	idx := fx.textIdx("t")
	tx := Open(id.Peer(5), fx.log, fx.reg, fx.ar)
	gotID, err := tx.Apply(idx, oplog.TextInsert{Text: fx.ar.InternText([]byte("a"))})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if gotID.Peer != 5 {
		t.Fatalf("ID.Peer = %d, want 5", gotID.Peer)
	}
}
