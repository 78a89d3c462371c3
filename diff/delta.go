// Package diff turns applied ops into the structured, per-container deltas
// consumed by event subscribers. It implements only the "fast path" —
// containers are mutated directly and the resulting deltas collected
// inline — because both of this engine's real data flows (a transaction
// commit, an ordered remote import) only ever extend the document's
// frontiers forward; the full retreat/forward replay an arbitrary-frontier
// checkout needs is reserved for Checkout, implemented separately in
// tracker.go. See DESIGN.md.
package diff

import "github.com/loro-dev/loro-go/internal/arena"

// TextOp is one Quill-style delta operation: exactly one of Retain, Insert,
// or Delete is meaningful, matching (c)'s
// `{insert:"Hello", attributes:{bold:true}}` shape.
type TextOp struct {
	Retain     int
	Insert     string
	Attributes map[string]arena.Value
	Delete     int
}

// TextDelta is a text container's diff: a sequence of retain/insert/delete
// ops applied in order against the pre-op document to produce the post-op
// one.
type TextDelta struct {
	Ops []TextOp
}

func (d *TextDelta) retain(n int) {
	if n <= 0 {
		return
	}
	if len(d.Ops) > 0 && d.Ops[len(d.Ops)-1].Delete == 0 && d.Ops[len(d.Ops)-1].Insert == "" {
		d.Ops[len(d.Ops)-1].Retain += n
		return
	}
	d.Ops = append(d.Ops, TextOp{Retain: n})
}

func (d *TextDelta) insert(text string, attrs map[string]arena.Value) {
	d.Ops = append(d.Ops, TextOp{Insert: text, Attributes: attrs})
}

func (d *TextDelta) delete(n int) {
	if n <= 0 {
		return
	}
	if len(d.Ops) > 0 && d.Ops[len(d.Ops)-1].Insert == "" && d.Ops[len(d.Ops)-1].Retain == 0 {
		d.Ops[len(d.Ops)-1].Delete += n
		return
	}
	d.Ops = append(d.Ops, TextOp{Delete: n})
}

// ListOp mirrors TextOp for list/movable-list containers: Insert carries
// whole values instead of bytes. Movable-list repositions are not ListOps;
// they are reported separately in MovableListDelta.Moves.
type ListOp struct {
	Retain int
	Insert []arena.Value
	Delete int
}

type ListDelta struct {
	Ops []ListOp
}

func (d *ListDelta) retain(n int) {
	if n <= 0 {
		return
	}
	if len(d.Ops) > 0 && d.Ops[len(d.Ops)-1].Delete == 0 && len(d.Ops[len(d.Ops)-1].Insert) == 0 {
		d.Ops[len(d.Ops)-1].Retain += n
		return
	}
	d.Ops = append(d.Ops, ListOp{Retain: n})
}

func (d *ListDelta) insert(v arena.Value) {
	d.Ops = append(d.Ops, ListOp{Insert: []arena.Value{v}})
}

func (d *ListDelta) delete(n int) {
	if n <= 0 {
		return
	}
	if len(d.Ops) > 0 && len(d.Ops[len(d.Ops)-1].Insert) == 0 && d.Ops[len(d.Ops)-1].Retain == 0 {
		d.Ops[len(d.Ops)-1].Delete += n
		return
	}
	d.Ops = append(d.Ops, ListOp{Delete: n})
}

// MovableListMoveOp records an element's reposition, reported separately
// from ListDelta's insert/delete/retain vocabulary since a move is neither.
type MovableListMoveOp struct {
	FromRetain int
	ToRetain   int
}

// MovableListDelta combines the list-shaped view (insert/delete of
// elements) with moves and value overwrites, the three ways // movable list changes.
type MovableListDelta struct {
	List  ListDelta
	Moves []MovableListMoveOp
	Sets  []ListSetOp
}

type ListSetOp struct {
	Retain int
	Value  arena.Value
}

// MapDelta reports each key whose winner changed, the new winning value
// (ValueKind == arena.ValueNull for "now unset").
type MapDelta struct {
	Updated map[string]arena.Value
}

// TreeDiffKind tags one structural tree change.
type TreeDiffKind uint8

const (
	TreeCreated TreeDiffKind = iota
	TreeMoved
	TreeDeleted
)

// TreeNodeDiff is one node-level tree change.
type TreeNodeDiff struct {
	Kind      TreeDiffKind
	Target    arena.Idx
	Parent    arena.Idx
	HasParent bool
	FracIndex string
}

type TreeDelta struct {
	Nodes []TreeNodeDiff
}

// CounterDelta reports the net change applied, not the resulting total —
// callers wanting the total call Value() themselves.
type CounterDelta struct {
	Delta float64
}
