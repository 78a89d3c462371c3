package loro

import (
	"strings"
	"testing"

	"github.com/loro-dev/loro-go/encoding"
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
)

func mustCommit(t *testing.T, d *Document) {
	t.Helper()
	if err := d.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestExportUpdatesImportRoundTrip(t *testing.T) {
	a := NewDocument(WithPeerID(1))
	a.GetText("title").Insert(0, "hello")
	mustCommit(t, a)
	a.GetMap("meta").Set("author", arena.Value{Kind: arena.ValueString, Str: "ada"})
	mustCommit(t, a)

	blob, err := a.Export(encoding.ModeUpdates)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	b := NewDocument(WithPeerID(2))
	if err := b.Import(blob); err != nil {
		t.Fatalf("import: %v", err)
	}

	if got := b.GetText("title").String(); got != "hello" {
		t.Fatalf("title = %q, want %q", got, "hello")
	}
	author, ok := b.GetMap("meta").Get("author")
	if !ok || author.Str != "ada" {
		t.Fatalf("meta[author] = %v, ok=%v, want %q", author, ok, "ada")
	}
	if !b.VV().Equal(a.VV()) {
		t.Fatalf("vv after import = %v, want %v", b.VV(), a.VV())
	}
}

func TestExportUpdatesFromSkipsAlreadyKnown(t *testing.T) {
	a := NewDocument(WithPeerID(1))
	a.GetText("t").Insert(0, "abc")
	mustCommit(t, a)

	b := NewDocument(WithPeerID(2))
	first, err := a.Export(encoding.ModeUpdates)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := b.Import(first); err != nil {
		t.Fatalf("import: %v", err)
	}

	a.GetText("t").Insert(3, "def")
	mustCommit(t, a)

	delta, err := a.ExportUpdatesFrom(b.VV())
	if err != nil {
		t.Fatalf("export from: %v", err)
	}
	if err := b.Import(delta); err != nil {
		t.Fatalf("import delta: %v", err)
	}
	if got := b.GetText("t").String(); got != "abcdef" {
		t.Fatalf("t = %q, want %q", got, "abcdef")
	}
}

func TestImportBuffersOutOfOrderChangesUntilDepsArrive(t *testing.T) {
	a := NewDocument(WithPeerID(1))
	a.GetText("t").Insert(0, "a")
	mustCommit(t, a)
	snap1, err := a.Export(encoding.ModeUpdates)
	if err != nil {
		t.Fatalf("export 1: %v", err)
	}
	vv1 := a.VV().Clone()

	a.GetText("t").Insert(1, "b")
	mustCommit(t, a)
	tail, err := a.ExportUpdatesFrom(vv1)
	if err != nil {
		t.Fatalf("export tail: %v", err)
	}

	b := NewDocument(WithPeerID(2))
	// Import the second change before ever seeing the prefix it depends on:
	// it must stay pending, then apply once the prefix arrives.
	if err := b.Import(tail); err != nil {
		t.Fatalf("import tail: %v", err)
	}
	if got := b.GetText("t").String(); got != "" {
		t.Fatalf("t after tail only = %q, want %q (change still buffered)", got, "")
	}
	if err := b.Import(snap1); err != nil {
		t.Fatalf("import prefix: %v", err)
	}
	if got := b.GetText("t").String(); got != "ab" {
		t.Fatalf("t = %q, want %q", got, "ab")
	}
}

func TestExportShallowSnapshotRoundTripsMaterializedValue(t *testing.T) {
	a := NewDocument(WithPeerID(1))
	a.GetText("t").Insert(0, "hello world")
	mustCommit(t, a)
	a.GetMap("m").Set("k", arena.Value{Kind: arena.ValueInt, I64: 42})
	mustCommit(t, a)
	cut := a.Frontiers()
	a.GetText("t").Insert(11, "!")
	mustCommit(t, a)

	blob, err := a.ExportShallowSnapshot(cut)
	if err != nil {
		t.Fatalf("export shallow: %v", err)
	}

	b := NewDocument(WithPeerID(3))
	if err := b.Import(blob); err != nil {
		t.Fatalf("import shallow: %v", err)
	}
	if got := b.GetText("t").String(); got != "hello world" {
		t.Fatalf("t after shallow import = %q, want %q", got, "hello world")
	}
	k, ok := b.GetMap("m").Get("k")
	if !ok || k.I64 != 42 {
		t.Fatalf("m[k] = %v, ok=%v, want 42", k, ok)
	}
	if _, has := b.ShallowRootFrontiers(); !has {
		t.Fatalf("ShallowRootFrontiers: has=false, want true after shallow import")
	}

	// The tail change past the cut must still apply on top of the baseline.
	tail, err := a.ExportUpdatesFrom(a.FrontiersToVV(cut))
	if err != nil {
		t.Fatalf("export tail: %v", err)
	}
	if err := b.Import(tail); err != nil {
		t.Fatalf("import tail: %v", err)
	}
	if got := b.GetText("t").String(); got != "hello world!" {
		t.Fatalf("t after tail import = %q, want %q", got, "hello world!")
	}
}

func TestExportShallowSnapshotTrimsChangeStoreGenerations(t *testing.T) {
	a := NewDocument(WithPeerID(1))
	a.GetText("t").Insert(0, "hello")
	mustCommit(t, a)
	// Two prior compactions, so there are older generations to drop.
	a.kv.ExportAll()
	a.GetText("t").Insert(5, " world")
	mustCommit(t, a)
	a.kv.ExportAll()
	if got := len(a.kv.Generations()); got != 2 {
		t.Fatalf("Generations() before shallow export = %d, want 2", got)
	}

	cut := a.Frontiers()
	if _, err := a.ExportShallowSnapshot(cut); err != nil {
		t.Fatalf("export shallow: %v", err)
	}
	gens := a.kv.Generations()
	if len(gens) != 1 {
		t.Fatalf("Generations() after shallow export = %d, want 1 (only the newly rotated latest)", len(gens))
	}
}

func TestJSONUpdatesRoundTripAndRedact(t *testing.T) {
	a := NewDocument(WithPeerID(7))
	a.GetText("t").Insert(0, "secret")
	mustCommit(t, a)

	buf, err := a.ExportJSONUpdates(id.VersionVector{}, a.VV())
	if err != nil {
		t.Fatalf("export json: %v", err)
	}

	b := NewDocument(WithPeerID(8))
	if err := b.ImportJSONUpdates(buf); err != nil {
		t.Fatalf("import json: %v", err)
	}
	if got := b.GetText("t").String(); got != "secret" {
		t.Fatalf("t = %q, want %q", got, "secret")
	}

	redacted, err := encoding.RedactJSONUpdates(buf, id.VersionVector{}, a.VV())
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if strings.Contains(string(redacted), "secret") {
		t.Fatalf("redacted JSON still contains the original payload: %s", redacted)
	}
	if !strings.Contains(string(redacted), `"redacted": true`) {
		t.Fatalf("redacted JSON missing redacted marker: %s", redacted)
	}
}
