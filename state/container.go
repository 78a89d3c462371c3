// Package state implements the seven container state machines — text,
// list, movable list, map, tree, counter, and unknown — behind a uniform
// contract: ApplyLocal, ApplyRemote and Value (the Container interface
// below). Diffs are computed by package diff and snapshots are encoded by
// package encoding, not by the containers themselves.
package state

import (
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// CausalContext is the version vector the op's change was appended under.
// ApplyRemote receives it, but no container kind in this package reads it.
type CausalContext struct {
	VV id.VersionVector
}

// Delta is one container's structured change, the diff calculator's output
// unit. Concrete shape depends on the container kind;
// each container type returns its own delta value from Diff via the `any`
// escape hatch, and the event dispatcher (package event) knows how to
// interpret each concrete type.
type Delta = any

// Container is the contract every state machine kind implements.
type Container interface {
	Idx() arena.Idx
	Kind() arena.ContainerKind

	// ApplyLocal applies op (authored by peer, at the given lamport tick) as
	// a brand-new local op (one this container has never seen) and returns
	// its inverse for the transaction undo/abort path.
	ApplyLocal(peer id.Peer, lamport id.Lamport, op oplog.Op) (inverse oplog.OpContent, err error)

	// ApplyRemote integrates op (authored by peer, at the given lamport
	// tick), which may be concurrent with ops already applied; lamport
	// drives Fugue ordering and, together with peer, the
	// map/tree/movable-list last-writer-wins comparisons. cc carries the
	// op's causal context.
	ApplyRemote(peer id.Peer, lamport id.Lamport, op oplog.Op, cc CausalContext) error

	// Value materialises the container's current, causally-visible state.
	Value(ar *arena.Arena) any
}

// TextValue is Container.Value's return shape for a text container: the
// live UTF-8 bytes plus the style spans currently in effect.
type TextValue struct {
	Text   string
	Styles []StyleSpan
}

// StyleSpan is one materialised style run. Expand controls whether text
// inserted exactly at StartPos/EndPos inherits the style.
type StyleSpan struct {
	Key      string
	Value    arena.Value
	Expand   oplog.MarkExpand
	StartPos int
	EndPos   int
	HasEnd   bool
}
