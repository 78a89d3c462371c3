package loro

import (
	"testing"

	"github.com/loro-dev/loro-go/diff"
	"github.com/loro-dev/loro-go/event"
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/oplog"
)

func TestDocumentTextInsertDeleteAndCommit(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	text := doc.GetText("t")
	if err := text.Insert(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := text.String(); got != "hello" {
		t.Fatalf("String() = %q, want %q", got, "hello")
	}
	if err := text.Delete(0, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := text.String(); got != "ello" {
		t.Fatalf("String() after delete = %q, want %q", got, "ello")
	}
}

func TestDocumentTextInsertAtInteriorPositionOfMultiByteRun(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	text := doc.GetText("t")
	if err := text.Insert(0, "hello"); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	if err := text.Insert(2, "XX"); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	if got := text.String(); got != "heXXllo" {
		t.Fatalf("String() = %q, want %q", got, "heXXllo")
	}
	if err := text.Delete(2, 1); err != nil {
		t.Fatalf("delete interior of multi-byte run: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 3: %v", err)
	}
	if got := text.String(); got != "heXllo" {
		t.Fatalf("String() after delete = %q, want %q", got, "heXllo")
	}
}

func TestDocumentTextMarkRendersStyledDelta(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	text := doc.GetText("t")
	if err := text.Insert(0, "hello world"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	boldVal := arena.Value{Kind: arena.ValueBool, Bool: true}
	if err := text.Mark(0, 5, "bold", boldVal, oplog.ExpandNone); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	v := text.Value()
	d := diff.RenderText(v)
	if len(d.Ops) != 2 {
		t.Fatalf("Ops = %+v, want 2 runs (bold hello, plain ` world`)", d.Ops)
	}
	if d.Ops[0].Insert != "hello" || d.Ops[0].Attributes["bold"].Bool != true {
		t.Fatalf("Ops[0] = %+v, want bold hello", d.Ops[0])
	}
	if d.Ops[1].Insert != " world" || d.Ops[1].Attributes != nil {
		t.Fatalf("Ops[1] = %+v, want unstyled ` world`", d.Ops[1])
	}
}

func TestDocumentTextMarkExpandAfterIncludesTextTypedAtEndBoundary(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	text := doc.GetText("t")
	if err := text.Insert(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	boldVal := arena.Value{Kind: arena.ValueBool, Bool: true}
	if err := text.Mark(0, 5, "bold", boldVal, oplog.ExpandAfter); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	// Typed immediately after the marked run's end — ExpandAfter means it
	// inherits the style.
	if err := text.Insert(5, "!"); err != nil {
		t.Fatalf("insert at boundary: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 3: %v", err)
	}

	d := diff.RenderText(text.Value())
	if len(d.Ops) != 1 {
		t.Fatalf("Ops = %+v, want a single bold run covering hello!", d.Ops)
	}
	if d.Ops[0].Insert != "hello!" || d.Ops[0].Attributes["bold"].Bool != true {
		t.Fatalf("Ops[0] = %+v, want bold hello!", d.Ops[0])
	}
}

func TestDocumentListInsertAndDelete(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	l := doc.GetList("l")
	if err := l.Insert(0, arena.Value{Kind: arena.ValueInt, I64: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := l.Insert(1, arena.Value{Kind: arena.ValueInt, I64: 2}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got := l.Value()
	if len(got) != 2 || got[0].I64 != 1 || got[1].I64 != 2 {
		t.Fatalf("Value() = %+v, want [1 2]", got)
	}
	if err := l.Delete(0, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := l.Value(); len(got) != 1 || got[0].I64 != 2 {
		t.Fatalf("Value() after delete = %+v, want [2]", got)
	}
}

func TestDocumentMovableListMoveAndSet(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	ml := doc.GetMovableList("ml")
	if err := ml.Insert(0, arena.Value{Kind: arena.ValueInt, I64: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ml.Insert(1, arena.Value{Kind: arena.ValueInt, I64: 2}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := ml.Move(0, 1); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got := ml.Value()
	if len(got) != 2 || got[0].I64 != 2 || got[1].I64 != 1 {
		t.Fatalf("Value() after move = %+v, want [2 1]", got)
	}
	if err := ml.Set(0, arena.Value{Kind: arena.ValueInt, I64: 99}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := ml.Value(); got[0].I64 != 99 {
		t.Fatalf("Value() after set = %+v, want first item 99", got)
	}
}

func TestDocumentMapSetGetAndDelete(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	m := doc.GetMap("m")
	if err := m.Set("k", arena.Value{Kind: arena.ValueString, Str: "v"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, ok := m.Get("k")
	if !ok || got.Str != "v" {
		t.Fatalf("Get(k) = (%+v, %v), want (v, true)", got, ok)
	}
	if err := m.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok := m.Get("k"); ok {
		t.Fatalf("Get(k) after delete = found, want absent")
	}
}

func TestDocumentCounterIncrement(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	c := doc.GetCounter("c")
	if err := c.Increment(3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := c.Increment(-1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := c.Value(); got != 2 {
		t.Fatalf("Value() = %v, want 2", got)
	}
}

func TestDocumentTreeCreateMoveAndMeta(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	tr := doc.GetTree("tree")
	root, err := tr.CreateNode(0, false)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	child, err := tr.CreateNode(root, true)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := tr.Meta(child).Set("label", arena.Value{Kind: arena.ValueString, Str: "leaf"}); err != nil {
		t.Fatalf("meta set: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	nodes := tr.Value()
	if len(nodes) != 1 || len(nodes[0].Children) != 1 {
		t.Fatalf("Value() = %+v, want one root with one child", nodes)
	}
	if got := nodes[0].Children[0].Meta["label"].Str; got != "leaf" {
		t.Fatalf("child meta label = %q, want %q", got, "leaf")
	}
}

func TestDocumentSubscribeRootReceivesCommit(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	var got event.DocDiff
	fired := 0
	doc.SubscribeRoot(func(dd event.DocDiff) {
		fired++
		got = dd
	})
	if err := doc.GetText("t").Insert(0, "x"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if len(got.Containers) != 1 {
		t.Fatalf("Containers = %+v, want one entry", got.Containers)
	}
}

func TestDocumentUndoManagerRevertsLastCommit(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	mgr := doc.NewUndoManager()
	text := doc.GetText("t")

	if err := text.Insert(0, "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := text.String(); got != "hello" {
		t.Fatalf("String() = %q, want %q", got, "hello")
	}

	if err := mgr.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := text.String(); got != "" {
		t.Fatalf("String() after undo = %q, want empty", got)
	}
	if err := mgr.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if got := text.String(); got != "hello" {
		t.Fatalf("String() after redo = %q, want %q", got, "hello")
	}
}

func TestDocumentCheckoutReadsHistoricalValueThenAttachReturnsLive(t *testing.T) {
	doc := NewDocument(WithPeerID(1))
	text := doc.GetText("t")
	if err := text.Insert(0, "a"); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	cut := doc.Frontiers()

	if err := text.Insert(1, "b"); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if err := doc.Commit(); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	if err := doc.Checkout(cut); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !doc.IsDetached() {
		t.Fatalf("IsDetached() = false after Checkout, want true")
	}
	if got := text.String(); got != "a" {
		t.Fatalf("String() while checked out = %q, want %q", got, "a")
	}
	doc.Attach()
	if doc.IsDetached() {
		t.Fatalf("IsDetached() = true after Attach, want false")
	}
	if got := text.String(); got != "ab" {
		t.Fatalf("String() after Attach = %q, want %q", got, "ab")
	}
}
