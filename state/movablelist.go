package state

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/fugue"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// element is the movable list's per-item record: the position it currently
// sits at, and the (lamport, peer) of whichever Move/Set last won the
// last-writer-wins race for PosID/Value respectively.
type element struct {
	posID     id.ID
	posLamport id.Lamport
	value     arena.Value
	valueID   id.ID
	valueLamport id.Lamport
}

// MovableList implements the movable list container: a Fugue sequence of
// positions (created once, tombstoned but never removed) decoupled from a
// map of elements that point at their current position.
type MovableList struct {
	idx       arena.Idx
	positions *fugue.Seq[id.ID] // value = the element ID currently bound to this position, zero id.ID if unbound
	elements  map[id.ID]*element
}

func NewMovableList(idx arena.Idx) *MovableList {
	return &MovableList{idx: idx, positions: fugue.New[id.ID](), elements: make(map[id.ID]*element)}
}

func (m *MovableList) Idx() arena.Idx            { return m.idx }
func (m *MovableList) Kind() arena.ContainerKind { return arena.KindMovableList }

// OriginsAt returns the Fugue origin anchors for a new position about to be
// created by a local insert at visible item index visiblePos.
func (m *MovableList) OriginsAt(visiblePos int) (left id.ID, hasLeft bool, right id.ID, hasRight bool) {
	pos := m.positions.VisiblePos(visiblePos)
	return m.positions.OriginsForInsertAt(pos)
}

// ElementAt returns the element ID bound to the visible-th live position,
// for a handle to address a delete/move/set at a user-facing index.
func (m *MovableList) ElementAt(visiblePos int) (id.ID, bool) {
	var out id.ID
	found := false
	seen := 0
	m.positions.ForEachLive(func(_ int, e *fugue.Elem[id.ID]) bool {
		if e.Value == (id.ID{}) {
			return true
		}
		if seen == visiblePos {
			out, found = e.Value, true
			return false
		}
		seen++
		return true
	})
	return out, found
}

func (m *MovableList) ApplyLocal(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return m.apply(peer, lamport, op, true)
}

func (m *MovableList) ApplyRemote(peer id.Peer, lamport id.Lamport, op oplog.Op, _ CausalContext) error {
	_, err := m.apply(peer, lamport, op, false)
	return err
}

// ElementVisibleRank returns elementID's current position among bound live
// elements, for the diff calculator to report a retain count.
func (m *MovableList) ElementVisibleRank(elementID id.ID) (int, bool) {
	found := -1
	seen := 0
	m.positions.ForEachLive(func(_ int, e *fugue.Elem[id.ID]) bool {
		if e.Value == (id.ID{}) {
			return true
		}
		if e.Value == elementID {
			found = seen
			return false
		}
		seen++
		return true
	})
	if found < 0 {
		return 0, false
	}
	return found, true
}

// ElementPosID returns elementID's current bound position ID, for the diff
// calculator to detect whether a Move actually relocated it.
func (m *MovableList) ElementPosID(elementID id.ID) (id.ID, bool) {
	el, ok := m.elements[elementID]
	if !ok {
		return id.ID{}, false
	}
	return el.posID, true
}

// ElementValue returns elementID's current value, for the diff calculator
// to detect whether a Set actually changed it.
func (m *MovableList) ElementValue(elementID id.ID) (arena.Value, bool) {
	el, ok := m.elements[elementID]
	if !ok {
		return arena.Value{}, false
	}
	return el.value, true
}

func (m *MovableList) apply(peer id.Peer, lamport id.Lamport, op oplog.Op, local bool) (oplog.OpContent, error) {
	self := op.ID(peer)
	switch c := op.Content.(type) {
	case oplog.MovableListInsert:
		posElem := &fugue.Elem[id.ID]{
			ID: self, Lamport: lamport, HasOriginLeft: c.HasLeft, OriginLeft: c.OriginLeft,
			HasOriginRight: c.HasRight, OriginRight: c.OriginRight, Value: self,
		}
		if local {
			pos := 0
			if c.HasLeft {
				if p, ok := m.positions.RankOf(c.OriginLeft); ok {
					pos = p + 1
				}
			}
			m.positions.InsertLocal(pos, posElem)
		} else {
			m.positions.IntegrateRemote(posElem)
		}
		m.elements[self] = &element{posID: self, posLamport: lamport, value: c.Value, valueID: self, valueLamport: lamport}
		return oplog.MovableListDelete{Target: self}, nil

	case oplog.MovableListMove:
		el, ok := m.elements[c.Element]
		if !ok {
			return nil, fmt.Errorf("state: movable-list move of unknown element %v", c.Element)
		}
		if !wins(lamport, peer, el.posLamport, el.posID.Peer) {
			return nil, nil // a higher (lamport,peer) move already won
		}
		newPos := &fugue.Elem[id.ID]{
			ID: self, Lamport: lamport, HasOriginLeft: c.HasLeft, OriginLeft: c.OriginLeft,
			HasOriginRight: c.HasRight, OriginRight: c.OriginRight, Value: c.Element,
		}
		if local {
			pos := 0
			if c.HasLeft {
				if p, ok := m.positions.RankOf(c.OriginLeft); ok {
					pos = p + 1
				}
			}
			m.positions.InsertLocal(pos, newPos)
		} else {
			m.positions.IntegrateRemote(newPos)
		}
		if oldPos, ok := m.positions.Get(el.posID); ok {
			oldPos.Value = id.ID{} // unbind the old position
		}
		el.posID, el.posLamport = self, lamport
		return oplog.MovableListMove{Element: c.Element}, nil

	case oplog.MovableListSet:
		el, ok := m.elements[c.Element]
		if !ok {
			return nil, fmt.Errorf("state: movable-list set of unknown element %v", c.Element)
		}
		if !wins(lamport, peer, el.valueLamport, el.valueID.Peer) {
			return nil, nil
		}
		prev := el.value
		el.value, el.valueID, el.valueLamport = c.Value, self, lamport
		return oplog.MovableListSet{Element: c.Element, Value: prev}, nil

	case oplog.MovableListDelete:
		el, ok := m.elements[c.Target]
		if !ok {
			return nil, fmt.Errorf("state: movable-list delete of unknown element %v", c.Target)
		}
		m.positions.MarkDeleted(el.posID)
		delete(m.elements, c.Target)
		return oplog.MovableListUndelete{Target: c.Target, PosID: el.posID, Value: el.value, ValueID: el.valueID}, nil

	case oplog.MovableListUndelete:
		if e, ok := m.positions.Get(c.PosID); ok {
			e.Deleted = false
		}
		m.elements[c.Target] = &element{posID: c.PosID, posLamport: lamport, value: c.Value, valueID: c.ValueID, valueLamport: lamport}
		return nil, nil

	default:
		return nil, fmt.Errorf("state: movable-list container got unexpected op %T", op.Content)
	}
}

// wins reports whether (lamport,peer) strictly beats the incumbent
// (lamport,peer) under "highest (lamport,peer) wins" rule.
func wins(lamport id.Lamport, peer id.Peer, incumbentLamport id.Lamport, incumbentPeer id.Peer) bool {
	if lamport != incumbentLamport {
		return lamport > incumbentLamport
	}
	return peer > incumbentPeer
}

// MovableListValue is Container.Value's return shape: one entry per live
// position that is bound to an element, in Fugue order (positions a Move
// abandoned are skipped).
type MovableListValue struct {
	Items []arena.Value
}

func (m *MovableList) Value(ar *arena.Arena) any {
	var out []arena.Value
	m.positions.ForEachLive(func(_ int, e *fugue.Elem[id.ID]) bool {
		if e.Value == (id.ID{}) {
			return true // unbound: an old position a Move abandoned
		}
		if el, ok := m.elements[e.Value]; ok {
			out = append(out, el.value)
		}
		return true
	})
	return MovableListValue{Items: out}
}
