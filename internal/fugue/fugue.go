// Package fugue implements the origin-based sequence CRDT ordering rule
// used for text and list containers: a new item carries
// (origin_left, origin_right), the IDs of its neighbours at insertion time,
// and concurrent inserts at the same position are ordered by lamport then
// peer.
//
// Both the text and list containers, and the movable list's position
// sequence, are this same algorithm over different payload types, so it
// lives once here and internal/rbtree.Tree[*Elem[T]] underneath it.
package fugue

import (
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/rbtree"
)

// Elem is one sequence node: a payload plus its origin anchors and the
// (lamport, peer) used to break concurrent-insert ties.
type Elem[T any] struct {
	ID      id.ID
	Lamport id.Lamport

	HasOriginLeft  bool
	OriginLeft     id.ID
	HasOriginRight bool
	OriginRight    id.ID

	Deleted bool
	Value   T
}

// Seq is an ordered sequence of Elem[T], indexed both by position (via the
// backing treap) and by ID (via a handle map), so origin lookups during
// remote integration are O(log n) rather than a linear scan.
type Seq[T any] struct {
	tree    *rbtree.Tree[*Elem[T]]
	handles map[id.ID]rbtree.Handle[*Elem[T]]
}

func New[T any]() *Seq[T] {
	return &Seq[T]{tree: rbtree.New[*Elem[T]](), handles: make(map[id.ID]rbtree.Handle[*Elem[T]])}
}

// Len returns the number of elements, including tombstoned ones.
func (s *Seq[T]) Len() int { return s.tree.Len() }

func (s *Seq[T]) rankOf(target id.ID) (int, bool) {
	h, ok := s.handles[target]
	if !ok {
		return 0, false
	}
	return s.tree.Rank(h), true
}

// RankOf returns target's current absolute position in the sequence
// (including tombstoned elements before it), in O(log n).
func (s *Seq[T]) RankOf(target id.ID) (int, bool) { return s.rankOf(target) }

// VisiblePos converts a user-facing visible index (counting only
// non-tombstoned elements) into an absolute tree position, so an insert at
// visible position p lands immediately after the p'th live element and
// after any tombstones that follow it.
func (s *Seq[T]) VisiblePos(visible int) int {
	seen := 0
	pos := 0
	s.tree.ForEach(func(i int, e *Elem[T]) bool {
		if seen == visible && !e.Deleted {
			pos = i
			return false
		}
		if !e.Deleted {
			seen++
		}
		pos = i + 1
		return true
	})
	return pos
}

// IDAtVisible returns the ID of the visible-th (0-based, tombstones not
// counted) live element, used by container handles to resolve a user-facing
// index into the element a delete/move/set op should target.
func (s *Seq[T]) IDAtVisible(visible int) (id.ID, bool) {
	var out id.ID
	found := false
	seen := 0
	s.tree.ForEach(func(_ int, e *Elem[T]) bool {
		if e.Deleted {
			return true
		}
		if seen == visible {
			out, found = e.ID, true
			return false
		}
		seen++
		return true
	})
	return out, found
}

// VisibleRankOf returns target's position counting only live elements
// strictly before it (tombstones excluded), used by the diff calculator to
// report a Quill-style retain count for an op targeting this element.
func (s *Seq[T]) VisibleRankOf(target id.ID) (int, bool) {
	h, ok := s.handles[target]
	if !ok {
		return 0, false
	}
	abs := s.tree.Rank(h)
	seen := 0
	s.tree.ForEach(func(i int, e *Elem[T]) bool {
		if i >= abs {
			return false
		}
		if !e.Deleted {
			seen++
		}
		return true
	})
	return seen, true
}

// OriginsForInsertAt returns the (origin_left, origin_right) anchors for an
// element about to be locally inserted at absolute tree position pos —
// the IDs of its immediate left and right neighbours, if any.
func (s *Seq[T]) OriginsForInsertAt(pos int) (left id.ID, hasLeft bool, right id.ID, hasRight bool) {
	if pos > 0 {
		left, hasLeft = s.tree.Get(pos-1).ID, true
	}
	if pos < s.tree.Len() {
		right, hasRight = s.tree.Get(pos).ID, true
	}
	return
}

// InsertLocal appends elem immediately after origin_left/before origin_right
// as already decided by the caller (a purely local insert has no concurrent
// candidates to reorder against).
func (s *Seq[T]) InsertLocal(pos int, elem *Elem[T]) {
	h := s.tree.InsertHandle(pos, elem)
	s.handles[elem.ID] = h
}

// less implements the Fugue concurrent-insert tie-break: higher (lamport,
// peer) sorts first (i.e. closer to origin_left), matching // "ordered by lamport then peer".
func less[T any](a, b *Elem[T]) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return a.ID.Peer > b.ID.Peer
}

// IntegrateRemote finds elem's correct absolute position under concurrent
// inserts and inserts it there, implementing Fugue
// integration rule: scan the open interval between origin_left and
// origin_right for elements that were themselves inserted with an
// origin_left at or after elem's origin_left (i.e. genuine concurrent
// siblings), and place elem before the first sibling that loses the
// (lamport, peer) tie-break.
//
// This is a simplified form of the full Fugue algorithm: true Fugue also
// distinguishes which *side* a concurrent sibling's origin_left chain
// points back to, to prevent interleaving separate concurrent runs that
// happen to share an origin. That refinement is not implemented; ties are
// broken purely by (lamport, peer) without origin-side disambiguation. See
// DESIGN.md.
func (s *Seq[T]) IntegrateRemote(elem *Elem[T]) int {
	left := 0
	if elem.HasOriginLeft {
		if p, ok := s.rankOf(elem.OriginLeft); ok {
			left = p + 1
		}
	}
	right := s.tree.Len()
	if elem.HasOriginRight {
		if p, ok := s.rankOf(elem.OriginRight); ok {
			right = p
		}
	}
	pos := left
	for pos < right {
		cand := s.tree.Get(pos)
		if !less[T](cand, elem) {
			break
		}
		pos++
	}
	h := s.tree.InsertHandle(pos, elem)
	s.handles[elem.ID] = h
	return pos
}

// ReplaceWithParts removes the element at id target and inserts parts in
// its place, preserving their relative order. Used by text's partial-delete
// path to split one inserted run into up to three sub-runs (untouched
// prefix, deleted middle, untouched suffix) while keeping each sub-run's
// own stable ID for future origin lookups.
func (s *Seq[T]) ReplaceWithParts(target id.ID, parts []*Elem[T]) bool {
	h, ok := s.handles[target]
	if !ok {
		return false
	}
	pos := s.tree.Rank(h)
	s.tree.DeleteHandle(h)
	delete(s.handles, target)
	for i, p := range parts {
		ph := s.tree.InsertHandle(pos+i, p)
		s.handles[p.ID] = ph
	}
	return true
}

// Get returns the element at id target, if present.
func (s *Seq[T]) Get(target id.ID) (*Elem[T], bool) {
	h, ok := s.handles[target]
	if !ok {
		return nil, false
	}
	return s.tree.Value(h), true
}

// MarkDeleted tombstones the element at id target; it stays in the
// sequence (so later origin lookups keep working) but drops out of Value().
func (s *Seq[T]) MarkDeleted(target id.ID) bool {
	e, ok := s.Get(target)
	if !ok || e.Deleted {
		return false
	}
	e.Deleted = true
	return true
}

// ForEachLive visits every non-tombstoned element in sequence order.
func (s *Seq[T]) ForEachLive(fn func(pos int, e *Elem[T]) bool) {
	visible := 0
	s.tree.ForEach(func(_ int, e *Elem[T]) bool {
		if e.Deleted {
			return true
		}
		ok := fn(visible, e)
		visible++
		return ok
	})
}

// ForEachAll visits every element, including tombstoned ones, in sequence
// order — used by encode_snapshot to preserve origin anchors faithfully.
func (s *Seq[T]) ForEachAll(fn func(e *Elem[T]) bool) {
	s.tree.ForEach(func(_ int, e *Elem[T]) bool { return fn(e) })
}
