// Package event implements a per-container diff
// subscriber set plus a root set, ancestor bubbling through the arena's
// parent map, and recursion-safe FIFO queueing so a subscriber that edits
// the document is not re-entered until the outermost emission finishes.
package event

import (
	"github.com/loro-dev/loro-go/diff"
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
)

// ContainerDiff is one container's delta plus the path the event dispatcher
// resolved to reach it, bubbled up for ancestor subscribers.
type ContainerDiff struct {
	Idx  arena.Idx
	Kind arena.ContainerKind
	Path []PathStep
	// Exactly one of the following is set, selected by Kind.
	Text        *diff.TextDelta
	List        *diff.ListDelta
	MovableList *diff.MovableListDelta
	Map         *diff.MapDelta
	Tree        *diff.TreeDelta
	Counter     *diff.CounterDelta
}

// PathStep is one hop on the path from the document root to a container,
// the key (map key / list index / tree child slot) it was reached through.
type PathStep struct {
	Container arena.Idx
	Key       string
	HasKey    bool
}

// DocDiff is the batched event a commit or import produces — // "subscribers are invoked once with a single batched diff event spanning
// all imported changes, not once per change".
type DocDiff struct {
	From, To id.Frontiers
	Local    bool
	Origin   string
	Containers []ContainerDiff
}

// FromAccumulator builds a DocDiff's container list from acc, attaching
// each container's resolved ancestor path.
func FromAccumulator(ar *arena.Arena, acc *diff.Accumulator) []ContainerDiff {
	var out []ContainerDiff
	for _, idx := range acc.Order() {
		cd := ContainerDiff{Idx: idx, Kind: ar.IdxToCID(idx).Kind, Path: pathTo(ar, idx)}
		if d, ok := acc.Text(idx); ok {
			cd.Text = d
		}
		if d, ok := acc.List(idx); ok {
			cd.List = d
		}
		if d, ok := acc.MovableList(idx); ok {
			cd.MovableList = d
		}
		if d, ok := acc.Map(idx); ok {
			cd.Map = d
		}
		if d, ok := acc.Tree(idx); ok {
			cd.Tree = d
		}
		if d, ok := acc.Counter(idx); ok {
			cd.Counter = d
		}
		out = append(out, cd)
	}
	return out
}

// pathTo walks idx's ancestor chain root-to-leaf. Keys are not resolved to
// a child's map-key/list-index since that needs per-kind state inspection
// the arena doesn't carry; callers needing the exact key look it up in the
// parent container's own current value. This still satisfies bubbling: an
// ancestor subscriber learns which of its descendants changed and through
// which chain of containers.
func pathTo(ar *arena.Arena, idx arena.Idx) []PathStep {
	chain := ar.Ancestors(idx)
	out := make([]PathStep, 0, len(chain)+1)
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, PathStep{Container: chain[i]})
	}
	out = append(out, PathStep{Container: idx})
	return out
}
