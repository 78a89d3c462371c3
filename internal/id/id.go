// Package id defines the identity primitives shared across the engine: peer
// identifiers, per-peer counters, global IDs, ID spans, Lamport clocks,
// version vectors and frontiers.
//
// Every datum here is a value type; none of it owns a document. Comparisons
// and arithmetic are defined so that oplog and state packages can build the
// causal history on top without re-deriving these rules.
package id

import (
	"fmt"
	"sort"
)

// Peer is a 64-bit authorship identity. A client picks one per attached
// session and rerolls it when a detached checkout happens with
// detached-editing enabled.
type Peer uint64

// Counter is a 32-bit signed, per-peer monotonically increasing sequence
// number. Op and Change counters are expressed in this space.
type Counter int32

// Lamport is the 32-bit logical clock used for global tie-breaking. An op's
// lamport is max(dep.lamport+dep.len) over its dependencies (each dep's
// exclusive lamport end), 0 with no deps; ties are broken by Peer.
type Lamport uint32

// ID identifies a single op or the first op of a change: (peer, counter).
type ID struct {
	Peer    Peer
	Counter Counter
}

func (i ID) String() string { return fmt.Sprintf("%d@%d", i.Counter, i.Peer) }

// Less gives a total order across IDs, used for deterministic container
// traversal (e.g. iterating frontiers) when lamport is not in scope.
func (i ID) Less(o ID) bool {
	if i.Peer != o.Peer {
		return i.Peer < o.Peer
	}
	return i.Counter < o.Counter
}

// Span is the half-open ID span (peer, [start,end)). Spans may be reversed
// (Start>End, counted down) to encode reverse-direction deletions as one
// mergeable unit.
type Span struct {
	Peer  Peer
	Start Counter
	End   Counter
}

// Len returns the number of IDs the span covers, regardless of direction.
func (s Span) Len() int {
	if s.End >= s.Start {
		return int(s.End - s.Start)
	}
	return int(s.Start - s.End)
}

// IsReversed reports whether the span counts down (End < Start).
func (s Span) IsReversed() bool { return s.End < s.Start }

// IDStart returns the ID of the first element the span yields.
func (s Span) IDStart() ID { return ID{Peer: s.Peer, Counter: s.Start} }

// IDEnd returns the exclusive-bound ID of the span in forward orientation
// (the ID one past the span's last covered counter, going up).
func (s Span) IDEnd() ID {
	if s.IsReversed() {
		return ID{Peer: s.Peer, Counter: s.Start + 1}
	}
	return ID{Peer: s.Peer, Counter: s.End}
}

// Contains reports whether counter c lies within the span, independent of
// direction.
func (s Span) Contains(c Counter) bool {
	lo, hi := s.Start, s.End
	if s.IsReversed() {
		lo, hi = s.End+1, s.Start+1
	}
	return c >= lo && c < hi
}

// NewLamportFromDeps computes an op/change's lamport from its dependency
// spans: max over deps of (dep lamport + dep len), i.e. of each dep's
// exclusive lamport end, 0 as default when there are no deps.
func NewLamportFromDeps(depLamportEnds []Lamport) Lamport {
	var max Lamport
	for _, l := range depLamportEnds {
		if l > max {
			max = l
		}
	}
	return max
}

// VersionVector maps peer to an exclusive counter end: the set of IDs it
// represents is downward-closed, {(p,c) : c < vv[p]}.
type VersionVector map[Peer]Counter

// Clone returns an independent copy.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	for p, c := range vv {
		out[p] = c
	}
	return out
}

// Get returns the exclusive end for peer, 0 if absent.
func (vv VersionVector) Get(p Peer) Counter { return vv[p] }

// SetEnd sets the exclusive end for peer if it advances the vector
// (monotonic VV invariant, ).
func (vv VersionVector) SetEnd(p Peer, end Counter) {
	if cur, ok := vv[p]; !ok || end > cur {
		vv[p] = end
	}
}

// Includes reports whether id is covered by vv.
func (vv VersionVector) Includes(i ID) bool { return i.Counter < vv[i.Peer] }

// IncludesSpan reports whether the whole forward span is covered.
func (vv VersionVector) IncludesSpan(s Span) bool {
	lo, hi := s.Start, s.End
	if s.IsReversed() {
		lo, hi = s.End+1, s.Start+1
	}
	return hi <= vv[s.Peer] && lo >= 0
}

// Merge returns the component-wise maximum of vv and other, matching the
// usual VV-merge rule.
func (vv VersionVector) Merge(other VersionVector) VersionVector {
	out := vv.Clone()
	for p, c := range other {
		out.SetEnd(p, c)
	}
	return out
}

// Equal reports whether two version vectors represent the same downward
// closed ID set (ignoring explicit zero entries).
func (vv VersionVector) Equal(other VersionVector) bool {
	for p, c := range vv {
		if c != 0 && other[p] != c {
			return false
		}
	}
	for p, c := range other {
		if c != 0 && vv[p] != c {
			return false
		}
	}
	return true
}

// Frontiers is the minimal antichain of IDs summarising a version: the tips
// of the causal DAG. No element of a well-formed Frontiers is an ancestor of
// another.
type Frontiers []ID

// Clone returns an independent copy.
func (f Frontiers) Clone() Frontiers {
	out := make(Frontiers, len(f))
	copy(out, f)
	return out
}

// Sorted returns a copy sorted by (peer, counter) for deterministic
// comparison and encoding.
func (f Frontiers) Sorted() Frontiers {
	out := f.Clone()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Equal reports structural equality of two frontier sets (order-independent).
func (f Frontiers) Equal(o Frontiers) bool {
	if len(f) != len(o) {
		return false
	}
	a, b := f.Sorted(), o.Sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id appears verbatim in the frontier set.
func (f Frontiers) Contains(target ID) bool {
	for _, x := range f {
		if x == target {
			return true
		}
	}
	return false
}

// Ordering is the result of comparing two frontier sets by causal closure.
type Ordering int

const (
	Equal Ordering = iota
	Less
	Greater
	Concurrent
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "Equal"
	case Less:
		return "Less"
	case Greater:
		return "Greater"
	default:
		return "Concurrent"
	}
}
