package state

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/fugue"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// List implements the list container: the same Fugue ordering
// as Text, one arena.Value per item instead of a byte range, and no
// styles. Unlike text runs, each list item is always exactly one element
// (ListInsert never batches more than one value per op), so deletion never
// needs to split an element — it only ever tombstones whole items.
type List struct {
	idx arena.Idx
	seq *fugue.Seq[arena.Value]
}

func NewList(idx arena.Idx) *List {
	return &List{idx: idx, seq: fugue.New[arena.Value]()}
}

func (l *List) Idx() arena.Idx            { return l.idx }
func (l *List) Kind() arena.ContainerKind { return arena.KindList }

func (l *List) Len() int {
	n := 0
	l.seq.ForEachLive(func(_ int, _ *fugue.Elem[arena.Value]) bool { n++; return true })
	return n
}

// OriginsAt returns the Fugue origin anchors for a local insert about to
// happen at visible item index visiblePos.
func (l *List) OriginsAt(visiblePos int) (left id.ID, hasLeft bool, right id.ID, hasRight bool) {
	pos := l.seq.VisiblePos(visiblePos)
	return l.seq.OriginsForInsertAt(pos)
}

// IDAt returns the ID of the visible-th live item.
func (l *List) IDAt(visiblePos int) (id.ID, bool) { return l.seq.IDAtVisible(visiblePos) }

// VisibleRankOf returns target's live-only position.
func (l *List) VisibleRankOf(target id.ID) (int, bool) { return l.seq.VisibleRankOf(target) }

func (l *List) ApplyLocal(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return l.apply(peer, lamport, op, true)
}

func (l *List) ApplyRemote(peer id.Peer, lamport id.Lamport, op oplog.Op, _ CausalContext) error {
	_, err := l.apply(peer, lamport, op, false)
	return err
}

func (l *List) apply(peer id.Peer, lamport id.Lamport, op oplog.Op, local bool) (oplog.OpContent, error) {
	self := op.ID(peer)
	switch c := op.Content.(type) {
	case oplog.ListInsert:
		elem := &fugue.Elem[arena.Value]{
			ID: self, Lamport: lamport, HasOriginLeft: c.HasLeft, OriginLeft: c.OriginLeft,
			HasOriginRight: c.HasRight, OriginRight: c.OriginRight, Value: c.Value,
		}
		if local {
			pos := 0
			if c.HasLeft {
				if p, ok := l.seq.RankOf(c.OriginLeft); ok {
					pos = p + 1
				}
			}
			l.seq.InsertLocal(pos, elem)
		} else {
			l.seq.IntegrateRemote(elem)
		}
		return oplog.ListDelete{Target: self, Len: 1}, nil
	case oplog.ListDelete:
		cursor := c.Target
		for i := 0; i < c.Len; i++ {
			if !l.seq.MarkDeleted(cursor) {
				return nil, fmt.Errorf("state: list delete target %v not found", cursor)
			}
			cursor = id.ID{Peer: cursor.Peer, Counter: cursor.Counter + 1}
		}
		return oplog.ListUndelete{Target: c.Target, Len: c.Len}, nil
	case oplog.ListUndelete:
		cursor := c.Target
		for i := 0; i < c.Len; i++ {
			if e, ok := l.seq.Get(cursor); ok {
				e.Deleted = false
			}
			cursor = id.ID{Peer: cursor.Peer, Counter: cursor.Counter + 1}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("state: list container got non-list op %T", op.Content)
	}
}

func (l *List) Value(ar *arena.Arena) any {
	var out []arena.Value
	l.seq.ForEachLive(func(_ int, e *fugue.Elem[arena.Value]) bool {
		out = append(out, e.Value)
		return true
	})
	return out
}
