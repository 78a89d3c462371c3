package id

import "testing"

func TestSpanLenAndContainsHandleBothDirections(t *testing.T) {
	fwd := Span{Peer: 1, Start: 2, End: 5}
	if fwd.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", fwd.Len())
	}
	if fwd.IsReversed() {
		t.Fatalf("forward span reported as reversed")
	}
	if !fwd.Contains(2) || !fwd.Contains(4) || fwd.Contains(5) {
		t.Fatalf("Contains() mismatch for forward span")
	}

	rev := Span{Peer: 1, Start: 5, End: 2}
	if rev.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 for reversed span", rev.Len())
	}
	if !rev.IsReversed() {
		t.Fatalf("reversed span not reported as reversed")
	}
	if !rev.Contains(3) || !rev.Contains(5) || rev.Contains(2) {
		t.Fatalf("Contains() mismatch for reversed span")
	}
}

func TestVersionVectorSetEndIsMonotonic(t *testing.T) {
	vv := VersionVector{}
	vv.SetEnd(1, 5)
	vv.SetEnd(1, 3)
	if got := vv.Get(1); got != 5 {
		t.Fatalf("Get(1) = %d, want 5 (SetEnd must not regress)", got)
	}
	vv.SetEnd(1, 9)
	if got := vv.Get(1); got != 9 {
		t.Fatalf("Get(1) = %d, want 9", got)
	}
}

func TestVersionVectorIncludesAndIncludesSpan(t *testing.T) {
	vv := VersionVector{1: 5}
	if !vv.Includes(ID{Peer: 1, Counter: 4}) {
		t.Fatalf("Includes(4) = false, want true")
	}
	if vv.Includes(ID{Peer: 1, Counter: 5}) {
		t.Fatalf("Includes(5) = true, want false (exclusive end)")
	}
	if !vv.IncludesSpan(Span{Peer: 1, Start: 0, End: 5}) {
		t.Fatalf("IncludesSpan([0,5)) = false, want true")
	}
	if vv.IncludesSpan(Span{Peer: 1, Start: 0, End: 6}) {
		t.Fatalf("IncludesSpan([0,6)) = true, want false")
	}
}

func TestVersionVectorMergeTakesComponentwiseMax(t *testing.T) {
	a := VersionVector{1: 3, 2: 7}
	b := VersionVector{1: 5, 3: 2}
	merged := a.Merge(b)
	if merged.Get(1) != 5 || merged.Get(2) != 7 || merged.Get(3) != 2 {
		t.Fatalf("Merge() = %+v, want {1:5 2:7 3:2}", merged)
	}
	// Merge must not mutate either input.
	if a.Get(1) != 3 || b.Get(2) != 0 {
		t.Fatalf("Merge() mutated an input vector")
	}
}

func TestVersionVectorEqualIgnoresExplicitZeros(t *testing.T) {
	a := VersionVector{1: 0, 2: 4}
	b := VersionVector{2: 4}
	if !a.Equal(b) {
		t.Fatalf("Equal() = false, want true (explicit zero entry is not a difference)")
	}
	c := VersionVector{2: 5}
	if a.Equal(c) {
		t.Fatalf("Equal() = true, want false")
	}
}

func TestFrontiersEqualIsOrderIndependent(t *testing.T) {
	a := Frontiers{{Peer: 2, Counter: 1}, {Peer: 1, Counter: 3}}
	b := Frontiers{{Peer: 1, Counter: 3}, {Peer: 2, Counter: 1}}
	if !a.Equal(b) {
		t.Fatalf("Equal() = false, want true for a permutation")
	}
	c := Frontiers{{Peer: 1, Counter: 3}}
	if a.Equal(c) {
		t.Fatalf("Equal() = true, want false for different length")
	}
}

func TestFrontiersSortedOrdersByPeerThenCounter(t *testing.T) {
	f := Frontiers{{Peer: 2, Counter: 0}, {Peer: 1, Counter: 9}, {Peer: 1, Counter: 2}}
	sorted := f.Sorted()
	want := Frontiers{{Peer: 1, Counter: 2}, {Peer: 1, Counter: 9}, {Peer: 2, Counter: 0}}
	if !sorted.Equal(want) {
		t.Fatalf("Sorted() = %+v, want %+v", sorted, want)
	}
	for i := 0; i+1 < len(sorted); i++ {
		if !sorted[i].Less(sorted[i+1]) {
			t.Fatalf("Sorted() not strictly increasing at %d: %+v", i, sorted)
		}
	}
}

func TestFrontiersContains(t *testing.T) {
	f := Frontiers{{Peer: 1, Counter: 1}}
	if !f.Contains(ID{Peer: 1, Counter: 1}) {
		t.Fatalf("Contains() = false, want true")
	}
	if f.Contains(ID{Peer: 1, Counter: 2}) {
		t.Fatalf("Contains() = true, want false")
	}
}

func TestNewLamportFromDepsTakesMax(t *testing.T) {
	if got := NewLamportFromDeps(nil); got != 0 {
		t.Fatalf("NewLamportFromDeps(nil) = %d, want 0", got)
	}
	if got := NewLamportFromDeps([]Lamport{3, 7, 2}); got != 7 {
		t.Fatalf("NewLamportFromDeps = %d, want 7", got)
	}
}

func TestOrderingString(t *testing.T) {
	cases := map[Ordering]string{Equal: "Equal", Less: "Less", Greater: "Greater", Concurrent: "Concurrent"}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Fatalf("Ordering(%d).String() = %q, want %q", o, got, want)
		}
	}
}
