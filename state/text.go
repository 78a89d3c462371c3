package state

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/fugue"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// markRun is one resolved style span: the key/value it applies, its
// expansion policy, and the byte anchoring its boundaries. startAnchor (with
// startHasAnchor false meaning "the very start of the text") is the byte the
// span starts immediately after; endAnchor is the same for the span's end,
// meaningful only once hasEnd is true. startID is the opening TextMark op's
// own ID, carried only so the matching TextMarkEnd can find this run by its
// StartID field — it plays no part in position resolution.
type markRun struct {
	key            string
	value          arena.Value
	expand         oplog.MarkExpand
	startID        id.ID
	startAnchor    id.ID
	startHasAnchor bool
	hasEnd         bool
	endAnchor      id.ID
	endHasAnchor   bool
}

// Text implements the text container: a Fugue-ordered sequence
// of interned byte runs plus paired style-anchor ops.
type Text struct {
	idx   arena.Idx
	ar    *arena.Arena
	seq   *fugue.Seq[arena.TextRange]
	marks []markRun
}

func NewText(idx arena.Idx, ar *arena.Arena) *Text {
	return &Text{idx: idx, ar: ar, seq: fugue.New[arena.TextRange]()}
}

func (t *Text) Idx() arena.Idx            { return t.idx }
func (t *Text) Kind() arena.ContainerKind { return arena.KindText }

// Len returns the number of live (non-tombstoned) bytes.
func (t *Text) Len() int {
	n := 0
	t.seq.ForEachLive(func(_ int, e *fugue.Elem[arena.TextRange]) bool {
		n += e.Value.Len()
		return true
	})
	return n
}

// liveElemAtVisibleByte walks live elements in sequence order and returns
// whichever one covers visible byte offset b, plus b's offset within that
// element's own run. found is false when b lands exactly at the end of the
// last live run (or the text is entirely empty); elem is then the last live
// element seen (nil if none), with offset equal to its length.
func (t *Text) liveElemAtVisibleByte(b int) (elem *fugue.Elem[arena.TextRange], offset int, found bool) {
	seen := 0
	t.seq.ForEachLive(func(_ int, e *fugue.Elem[arena.TextRange]) bool {
		n := e.Value.Len()
		if b < seen+n {
			elem, offset, found = e, b-seen, true
			return false
		}
		seen += n
		elem, offset = e, n
		return true
	})
	return elem, offset, found
}

// OriginsAt returns the Fugue origin anchors for a local insert about to
// happen at visible byte offset visiblePos, for the transaction layer to
// stamp onto a new TextInsert op before it is appended to the log. The
// anchors are the literal byte IDs immediately before and at visiblePos (the
// bytes that end up on either side of the new content); each is forced into
// its own addressable element first via ensureBoundaryAt, the same way a
// delete landing mid-run already splits to get a stable target. Anchoring on
// the exact byte (not just some containing fragment) matters beyond
// placement: mark-expansion (applyExpand) recognises an insert landing on a
// mark boundary by comparing origins against the mark's own byte anchor.
func (t *Text) OriginsAt(visiblePos int) (left id.ID, hasLeft bool, right id.ID, hasRight bool) {
	if visiblePos > 0 {
		if leftID, ok := t.IDAt(visiblePos - 1); ok {
			if err := t.ensureBoundaryAt(leftID); err == nil {
				left, hasLeft = leftID, true
			}
		}
	}
	if rightID, ok := t.IDAt(visiblePos); ok {
		if err := t.ensureBoundaryAt(rightID); err == nil {
			right, hasRight = rightID, true
		}
	}
	return left, hasLeft, right, hasRight
}

// IDAt returns the ID of the visible-th live byte, for a handle to address
// a delete or mark at a user-facing byte offset. The returned ID may fall
// inside an existing multi-byte run (it is not forced to split one) — a
// delete target resolves it through ensureBoundaryAt, a mark anchor through
// posAfterAnchor.
func (t *Text) IDAt(visiblePos int) (id.ID, bool) {
	elem, offset, found := t.liveElemAtVisibleByte(visiblePos)
	if !found || elem == nil {
		return id.ID{}, false
	}
	return id.ID{Peer: elem.ID.Peer, Counter: elem.ID.Counter + id.Counter(offset)}, true
}

// VisibleRankOf returns target's live-only byte position — the number of
// live bytes strictly before the byte addressed by target — for the diff
// calculator to report a Quill-style retain count. target is always a real
// element's own ID by the time this is called (a fresh insert's self ID, or
// a delete target already split into its own element by ensureBoundaryAt).
func (t *Text) VisibleRankOf(target id.ID) (int, bool) {
	abs, ok := t.seq.RankOf(target)
	if !ok {
		return 0, false
	}
	seen := 0
	i := 0
	t.seq.ForEachAll(func(e *fugue.Elem[arena.TextRange]) bool {
		if i == abs {
			return false
		}
		if !e.Deleted {
			seen += e.Value.Len()
		}
		i++
		return true
	})
	return seen, true
}

// posAfterAnchor returns the live-byte position immediately after the byte
// addressed by anchor (0 if !hasAnchor, meaning the very start of the
// text), for resolving a TextMark/TextMarkEnd's style boundary to a
// rendered position. Unlike VisibleRankOf, anchor need not be a real
// element's own ID: it may address an arbitrary byte inside a run that was
// never independently split, so this scans for the covering run directly.
func (t *Text) posAfterAnchor(anchor id.ID, hasAnchor bool) (int, bool) {
	if !hasAnchor {
		return 0, true
	}
	seen := 0
	found := false
	t.seq.ForEachAll(func(e *fugue.Elem[arena.TextRange]) bool {
		n := e.Value.Len()
		if e.ID.Peer == anchor.Peer && anchor.Counter >= e.ID.Counter && anchor.Counter < e.ID.Counter+id.Counter(n) {
			if !e.Deleted {
				seen += int(anchor.Counter-e.ID.Counter) + 1
			}
			found = true
			return false
		}
		if !e.Deleted {
			seen += n
		}
		return true
	})
	if !found {
		return 0, false
	}
	return seen, true
}

func expandIncludesBefore(e oplog.MarkExpand) bool { return e == oplog.ExpandBefore || e == oplog.ExpandBoth }
func expandIncludesAfter(e oplog.MarkExpand) bool  { return e == oplog.ExpandAfter || e == oplog.ExpandBoth }

// applyExpand re-anchors any mark whose boundary sits exactly where the just
// integrated insert (self, content c) landed, per that mark's expansion
// policy. A boundary's anchor is defined as the byte immediately preceding
// it (posAfterAnchor returns the position right after it); an insert placed
// immediately after that same byte therefore lands exactly at the boundary,
// and whether it ends up inside or outside the styled span is exactly what
// Expand controls. Left alone, a start anchor keeps the new element inside
// the span and an end anchor keeps it outside; the anchor is moved onto the
// new element only to flip that — a start boundary when Expand excludes
// text inserted before the span, an end boundary when Expand includes text
// inserted after it.
func (t *Text) applyExpand(self id.ID, c oplog.TextInsert) {
	for i := range t.marks {
		m := &t.marks[i]
		atStart := (c.HasLeft && m.startHasAnchor && c.OriginLeft == m.startAnchor) ||
			(!c.HasLeft && !m.startHasAnchor)
		if atStart && !expandIncludesBefore(m.expand) {
			m.startAnchor, m.startHasAnchor = self, true
		}
		if m.hasEnd {
			atEnd := c.HasLeft && m.endHasAnchor && c.OriginLeft == m.endAnchor
			if atEnd && expandIncludesAfter(m.expand) {
				m.endAnchor = self
			}
		}
	}
}

func (t *Text) ApplyLocal(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return t.apply(peer, lamport, op, true, CausalContext{})
}

func (t *Text) ApplyRemote(peer id.Peer, lamport id.Lamport, op oplog.Op, cc CausalContext) error {
	_, err := t.apply(peer, lamport, op, false, cc)
	return err
}

func (t *Text) apply(peer id.Peer, lamport id.Lamport, op oplog.Op, local bool, _ CausalContext) (oplog.OpContent, error) {
	self := op.ID(peer)
	switch c := op.Content.(type) {
	case oplog.TextInsert:
		// A remote op's origins may address a byte inside a run this peer
		// has never split before; force the split now so rankOf (used by
		// IntegrateRemote below) can resolve it. A local op's origins were
		// already resolved through OriginsAt, which split eagerly, so this
		// is a no-op on that path.
		if c.HasLeft {
			if err := t.ensureBoundaryAt(c.OriginLeft); err != nil {
				return nil, err
			}
		}
		if c.HasRight {
			if err := t.ensureBoundaryAt(c.OriginRight); err != nil {
				return nil, err
			}
		}
		elem := &fugue.Elem[arena.TextRange]{
			ID:             self,
			Lamport:        lamport,
			HasOriginLeft:  c.HasLeft,
			OriginLeft:     c.OriginLeft,
			HasOriginRight: c.HasRight,
			OriginRight:    c.OriginRight,
			Value:          c.Text,
		}
		if local {
			t.seq.InsertLocal(t.localInsertPos(c), elem)
		} else {
			t.seq.IntegrateRemote(elem)
		}
		t.applyExpand(self, c)
		return oplog.TextDelete{Target: elem.ID, Len: c.Text.Len()}, nil
	case oplog.TextDelete:
		if err := t.deleteRange(c.Target, c.Len); err != nil {
			return nil, err
		}
		return oplog.TextUndelete{Target: c.Target, Len: c.Len}, nil
	case oplog.TextUndelete:
		t.undeleteRange(c.Target, c.Len)
		return nil, nil
	case oplog.TextMark:
		t.marks = append(t.marks, markRun{
			key: c.Key, value: c.Value, expand: c.Expand,
			startID: self, startAnchor: c.Anchor, startHasAnchor: c.HasAnchor,
		})
		return oplog.TextMarkEnd{Key: c.Key, StartID: self}, nil
	case oplog.TextMarkEnd:
		for i := range t.marks {
			if t.marks[i].key == c.Key && t.marks[i].startID == c.StartID && !t.marks[i].hasEnd {
				t.marks[i].hasEnd = true
				t.marks[i].endAnchor = c.Anchor
				t.marks[i].endHasAnchor = c.HasAnchor
				break
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("state: text container got non-text op %T", op.Content)
	}
}

// localInsertPos is only meaningful for locally authored ops: the caller
// already chose the correct origin pair, so the element belongs immediately
// after origin_left (position 0 if it has none).
func (t *Text) localInsertPos(c oplog.TextInsert) int {
	if !c.HasLeft {
		return 0
	}
	if pos, ok := t.seq.RankOf(c.OriginLeft); ok {
		return pos + 1
	}
	return t.seq.Len()
}

// ensureBoundaryAt splits whichever run currently covers target, if any,
// so that afterwards some run's own ID is exactly target. A TextDelete's
// Target may address a byte in the middle of an earlier multi-byte insert
// run (runs are inserted as one unit but addressed per-byte), so deletion
// must be able to carve out an arbitrary sub-range.
func (t *Text) ensureBoundaryAt(target id.ID) error {
	if _, ok := t.seq.Get(target); ok {
		return nil
	}
	var covering *fugue.Elem[arena.TextRange]
	t.seq.ForEachAll(func(e *fugue.Elem[arena.TextRange]) bool {
		if e.ID.Peer == target.Peer && target.Counter > e.ID.Counter && target.Counter < e.ID.Counter+id.Counter(e.Value.Len()) {
			covering = e
			return false
		}
		return true
	})
	if covering == nil {
		return fmt.Errorf("state: text id %v not found", target)
	}
	cut := int(target.Counter - covering.ID.Counter)
	left := &fugue.Elem[arena.TextRange]{
		ID: covering.ID, Lamport: covering.Lamport, HasOriginLeft: covering.HasOriginLeft, OriginLeft: covering.OriginLeft,
		HasOriginRight: true, OriginRight: target, Deleted: covering.Deleted, Value: covering.Value.Sub(0, cut),
	}
	right := &fugue.Elem[arena.TextRange]{
		ID: target, Lamport: covering.Lamport, HasOriginLeft: true, OriginLeft: covering.ID,
		HasOriginRight: covering.HasOriginRight, OriginRight: covering.OriginRight, Deleted: covering.Deleted, Value: covering.Value.Sub(cut, covering.Value.Len()),
	}
	t.seq.ReplaceWithParts(covering.ID, []*fugue.Elem[arena.TextRange]{left, right})
	return nil
}

// deleteRange tombstones the [target, target+len) run, splitting any
// element that only partially overlaps the deleted range so that
// surviving bytes keep their own stable IDs.
func (t *Text) deleteRange(target id.ID, length int) error {
	remaining := length
	cursor := target
	for remaining > 0 {
		if err := t.ensureBoundaryAt(cursor); err != nil {
			return err
		}
		elem, ok := t.seq.Get(cursor)
		if !ok {
			return fmt.Errorf("state: text delete target %v not found", cursor)
		}
		runLen := elem.Value.Len()
		cut := runLen
		if cut > remaining {
			cut = remaining
		}
		if cut == runLen {
			elem.Deleted = true
		} else {
			// split: [0,cut) is deleted, [cut,runLen) survives under a
			// fresh sub-ID continuing this element's counter space.
			left := &fugue.Elem[arena.TextRange]{
				ID: elem.ID, Lamport: elem.Lamport, HasOriginLeft: elem.HasOriginLeft,
				OriginLeft: elem.OriginLeft, HasOriginRight: true, OriginRight: id.ID{Peer: elem.ID.Peer, Counter: elem.ID.Counter + id.Counter(cut)},
				Deleted: true, Value: elem.Value.Sub(0, cut),
			}
			right := &fugue.Elem[arena.TextRange]{
				ID: id.ID{Peer: elem.ID.Peer, Counter: elem.ID.Counter + id.Counter(cut)}, Lamport: elem.Lamport,
				HasOriginLeft: true, OriginLeft: left.ID, HasOriginRight: elem.HasOriginRight, OriginRight: elem.OriginRight,
				Deleted: false, Value: elem.Value.Sub(cut, runLen),
			}
			t.seq.ReplaceWithParts(elem.ID, []*fugue.Elem[arena.TextRange]{left, right})
		}
		remaining -= cut
		cursor = id.ID{Peer: cursor.Peer, Counter: cursor.Counter + id.Counter(cut)}
	}
	return nil
}

// undeleteRange reverses deleteRange for a still-open local transaction:
// deleteRange always leaves element boundaries split exactly at [target,
// target+length), so walking that range and clearing Deleted is sufficient.
func (t *Text) undeleteRange(target id.ID, length int) {
	remaining := length
	cursor := target
	for remaining > 0 {
		elem, ok := t.seq.Get(cursor)
		if !ok {
			return
		}
		elem.Deleted = false
		remaining -= elem.Value.Len()
		cursor = id.ID{Peer: cursor.Peer, Counter: cursor.Counter + id.Counter(elem.Value.Len())}
	}
}

func (t *Text) Value(ar *arena.Arena) any {
	var buf []byte
	t.seq.ForEachLive(func(_ int, e *fugue.Elem[arena.TextRange]) bool {
		buf = append(buf, ar.SliceText(e.Value)...)
		return true
	})
	out := TextValue{Text: string(buf)}
	for _, m := range t.marks {
		span := StyleSpan{Key: m.key, Value: m.value, Expand: m.expand}
		if p, ok := t.posAfterAnchor(m.startAnchor, m.startHasAnchor); ok {
			span.StartPos = p
		}
		if m.hasEnd {
			if p, ok := t.posAfterAnchor(m.endAnchor, m.endHasAnchor); ok {
				span.EndPos = p
				span.HasEnd = true
			}
		}
		out.Styles = append(out.Styles, span)
	}
	return out
}

