package arena

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/id"
)

func TestInternTextReturnsStableAddresses(t *testing.T) {
	a := New()
	r1 := a.InternText([]byte("hello"))
	r2 := a.InternText([]byte(" world"))

	if got := string(a.SliceText(r1)); got != "hello" {
		t.Fatalf("SliceText(r1) = %q, want %q", got, "hello")
	}
	if got := string(a.SliceText(r2)); got != " world" {
		t.Fatalf("SliceText(r2) = %q, want %q", got, " world")
	}
	// r1 must remain valid and unchanged after a later intern.
	if got := string(a.SliceText(r1)); got != "hello" {
		t.Fatalf("SliceText(r1) after r2 = %q, want unchanged %q", got, "hello")
	}
}

func TestInternTextOversizedBufferGetsDedicatedChunk(t *testing.T) {
	a := New()
	big := make([]byte, textChunkSize+1)
	for i := range big {
		big[i] = 'x'
	}
	r := a.InternText(big)
	if got := a.SliceText(r); len(got) != len(big) {
		t.Fatalf("SliceText len = %d, want %d", len(got), len(big))
	}
}

func TestTextRangeSubAddressesSameBacking(t *testing.T) {
	a := New()
	r := a.InternText([]byte("hello world"))
	sub := r.Sub(0, 5)
	if got := string(a.SliceText(sub)); got != "hello" {
		t.Fatalf("Sub(0,5) = %q, want %q", got, "hello")
	}
}

func TestSliceTextStringEmptyRangeIsEmpty(t *testing.T) {
	a := New()
	if got := a.SliceTextString(TextRange{}); got != "" {
		t.Fatalf("SliceTextString(zero range) = %q, want empty", got)
	}
}

func TestInternValueReturnsStableSlots(t *testing.T) {
	a := New()
	s1 := a.InternValue(Value{Kind: ValueInt, I64: 1})
	s2 := a.InternValue(Value{Kind: ValueInt, I64: 2})
	if got := a.GetValue(s1); got.I64 != 1 {
		t.Fatalf("GetValue(s1).I64 = %d, want 1", got.I64)
	}
	if got := a.GetValue(s2); got.I64 != 2 {
		t.Fatalf("GetValue(s2).I64 = %d, want 2", got.I64)
	}
}

func TestRegisterContainerIsIdempotent(t *testing.T) {
	a := New()
	cid := RootContainerID("doc", KindText)
	idx1 := a.RegisterContainer(cid)
	idx2 := a.RegisterContainer(cid)
	if idx1 != idx2 {
		t.Fatalf("RegisterContainer returned different indices for the same ID: %d != %d", idx1, idx2)
	}
	if a.ContainerCount() != 1 {
		t.Fatalf("ContainerCount() = %d, want 1", a.ContainerCount())
	}
}

func TestCIDToIdxReportsUnknownContainers(t *testing.T) {
	a := New()
	if _, ok := a.CIDToIdx(RootContainerID("missing", KindMap)); ok {
		t.Fatalf("CIDToIdx found a container that was never registered")
	}
	cid := RootContainerID("m", KindMap)
	idx := a.RegisterContainer(cid)
	got, ok := a.CIDToIdx(cid)
	if !ok || got != idx {
		t.Fatalf("CIDToIdx(cid) = (%d, %v), want (%d, true)", got, ok, idx)
	}
}

func TestParentAndAncestorsChain(t *testing.T) {
	a := New()
	root := a.RegisterContainer(RootContainerID("root", KindMap))
	child := a.RegisterContainer(NormalContainerID(id.ID{Peer: 1, Counter: 0}, KindText))
	grandchild := a.RegisterContainer(NormalContainerID(id.ID{Peer: 1, Counter: 1}, KindText))

	if _, ok := a.Parent(root); ok {
		t.Fatalf("root reported a parent before SetParent was ever called")
	}
	a.SetParent(child, root)
	a.SetParent(grandchild, child)

	p, ok := a.Parent(grandchild)
	if !ok || p != child {
		t.Fatalf("Parent(grandchild) = (%d, %v), want (%d, true)", p, ok, child)
	}
	ancestors := a.Ancestors(grandchild)
	if len(ancestors) != 2 || ancestors[0] != child || ancestors[1] != root {
		t.Fatalf("Ancestors(grandchild) = %v, want [%d %d]", ancestors, child, root)
	}
}

func TestIdxToCIDRoundTrip(t *testing.T) {
	a := New()
	cid := RootContainerID("t", KindText)
	idx := a.RegisterContainer(cid)
	if got := a.IdxToCID(idx); got != cid {
		t.Fatalf("IdxToCID(idx) = %+v, want %+v", got, cid)
	}
}
