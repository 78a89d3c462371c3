package loro

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/fracindex"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

// TextHandle is a user-facing reference to one text container.
type TextHandle struct {
	doc *Document
	idx arena.Idx
}

func (h *TextHandle) text() *state.Text {
	return h.doc.activeReg().GetOrCreate(h.idx).(*state.Text)
}

// String returns the container's current plain text.
func (h *TextHandle) String() string {
	return h.text().Value(h.doc.ar).(state.TextValue).Text
}

// Value returns the text plus its style spans.
func (h *TextHandle) Value() state.TextValue {
	return h.text().Value(h.doc.ar).(state.TextValue)
}

// Len returns the number of visible (non-deleted) UTF-8 bytes.
func (h *TextHandle) Len() int { return h.text().Len() }

// Insert places s at visible byte offset pos.
func (h *TextHandle) Insert(pos int, s string) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	t := tx.Registry().GetOrCreate(h.idx).(*state.Text)
	left, hasLeft, right, hasRight := t.OriginsAt(pos)
	tr := h.doc.ar.InternText([]byte(s))
	content := oplog.TextInsert{Text: tr, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight}
	_, err = tx.Apply(h.idx, content)
	return err
}

// Delete removes length visible bytes starting at byte offset pos.
func (h *TextHandle) Delete(pos, length int) error {
	if length <= 0 {
		return nil
	}
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	t := tx.Registry().GetOrCreate(h.idx).(*state.Text)
	target, ok := t.IDAt(pos)
	if !ok {
		return fmt.Errorf("loro: text delete: position %d out of range", pos)
	}
	_, err = tx.Apply(h.idx, oplog.TextDelete{Target: target, Len: length})
	return err
}

// Mark applies a style attribute over [start,end) (end == -1 for "to the
// current end of the text").
func (h *TextHandle) Mark(start, end int, key string, value arena.Value, expand oplog.MarkExpand) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	t := tx.Registry().GetOrCreate(h.idx).(*state.Text)
	startAnchor, startHas := anchorBefore(t, start)
	startID, err := tx.Apply(h.idx, oplog.TextMark{Key: key, Value: value, Expand: expand, Anchor: startAnchor, HasAnchor: startHas})
	if err != nil {
		return err
	}
	if end < 0 {
		return nil
	}
	endAnchor, endHas := anchorBefore(t, end)
	_, err = tx.Apply(h.idx, oplog.TextMarkEnd{Key: key, StartID: startID, Anchor: endAnchor, HasAnchor: endHas})
	return err
}

func anchorBefore(t *state.Text, pos int) (id.ID, bool) {
	if pos <= 0 {
		return id.ID{}, false
	}
	anchor, ok := t.IDAt(pos - 1)
	return anchor, ok
}

// ListHandle is a user-facing reference to one append-only list container.
type ListHandle struct {
	doc *Document
	idx arena.Idx
}

func (h *ListHandle) list() *state.List {
	return h.doc.activeReg().GetOrCreate(h.idx).(*state.List)
}

// Value returns every live item, in order.
func (h *ListHandle) Value() []arena.Value {
	return h.list().Value(h.doc.ar).([]arena.Value)
}

func (h *ListHandle) Len() int { return h.list().Len() }

func (h *ListHandle) Insert(pos int, v arena.Value) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	l := tx.Registry().GetOrCreate(h.idx).(*state.List)
	left, hasLeft, right, hasRight := l.OriginsAt(pos)
	_, err = tx.Apply(h.idx, oplog.ListInsert{Value: v, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight})
	return err
}

func (h *ListHandle) Delete(pos, length int) error {
	if length <= 0 {
		return nil
	}
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	l := tx.Registry().GetOrCreate(h.idx).(*state.List)
	target, ok := l.IDAt(pos)
	if !ok {
		return fmt.Errorf("loro: list delete: position %d out of range", pos)
	}
	_, err = tx.Apply(h.idx, oplog.ListDelete{Target: target, Len: length})
	return err
}

// MovableListHandle is a user-facing reference to one movable list
// container: items can additionally be moved or overwritten in place.
type MovableListHandle struct {
	doc *Document
	idx arena.Idx
}

func (h *MovableListHandle) movable() *state.MovableList {
	return h.doc.activeReg().GetOrCreate(h.idx).(*state.MovableList)
}

func (h *MovableListHandle) Value() []arena.Value {
	return h.movable().Value(h.doc.ar).(state.MovableListValue).Items
}

func (h *MovableListHandle) Insert(pos int, v arena.Value) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	ml := tx.Registry().GetOrCreate(h.idx).(*state.MovableList)
	left, hasLeft, right, hasRight := ml.OriginsAt(pos)
	_, err = tx.Apply(h.idx, oplog.MovableListInsert{Value: v, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight})
	return err
}

func (h *MovableListHandle) Delete(pos int) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	ml := tx.Registry().GetOrCreate(h.idx).(*state.MovableList)
	target, ok := ml.ElementAt(pos)
	if !ok {
		return fmt.Errorf("loro: movable-list delete: position %d out of range", pos)
	}
	_, err = tx.Apply(h.idx, oplog.MovableListDelete{Target: target})
	return err
}

func (h *MovableListHandle) Move(from, to int) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	ml := tx.Registry().GetOrCreate(h.idx).(*state.MovableList)
	element, ok := ml.ElementAt(from)
	if !ok {
		return fmt.Errorf("loro: movable-list move: position %d out of range", from)
	}
	left, hasLeft, right, hasRight := ml.OriginsAt(to)
	_, err = tx.Apply(h.idx, oplog.MovableListMove{Element: element, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight})
	return err
}

func (h *MovableListHandle) Set(pos int, v arena.Value) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	ml := tx.Registry().GetOrCreate(h.idx).(*state.MovableList)
	element, ok := ml.ElementAt(pos)
	if !ok {
		return fmt.Errorf("loro: movable-list set: position %d out of range", pos)
	}
	_, err = tx.Apply(h.idx, oplog.MovableListSet{Element: element, Value: v})
	return err
}

// MapHandle is a user-facing reference to one map container.
type MapHandle struct {
	doc *Document
	idx arena.Idx
}

func (h *MapHandle) theMap() *state.Map {
	return h.doc.activeReg().GetOrCreate(h.idx).(*state.Map)
}

// Value returns every key not currently unset to null, i.e. the map's
// visible contents.
func (h *MapHandle) Value() map[string]arena.Value {
	return h.theMap().Value(h.doc.ar).(map[string]arena.Value)
}

func (h *MapHandle) Get(key string) (arena.Value, bool) {
	v, ok := h.theMap().Winner(key)
	if !ok || v.Kind == arena.ValueNull {
		return arena.Value{}, false
	}
	return v, true
}

func (h *MapHandle) Set(key string, v arena.Value) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	_, err = tx.Apply(h.idx, oplog.MapSet{Key: key, Value: v})
	return err
}

// Delete unsets key (a Set with a null value,  "Map").
func (h *MapHandle) Delete(key string) error {
	return h.Set(key, arena.Value{Kind: arena.ValueNull})
}

// CounterHandle is a user-facing reference to one counter container.
type CounterHandle struct {
	doc *Document
	idx arena.Idx
}

func (h *CounterHandle) Value() float64 {
	c := h.doc.activeReg().GetOrCreate(h.idx).(*state.Counter)
	return c.Value(h.doc.ar).(float64)
}

func (h *CounterHandle) Increment(delta float64) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	_, err = tx.Apply(h.idx, oplog.CounterIncrement{Delta: delta})
	return err
}

// TreeHandle is a user-facing reference to one tree container.
type TreeHandle struct {
	doc *Document
	idx arena.Idx
}

func (h *TreeHandle) tree() *state.Tree {
	return h.doc.activeReg().GetOrCreate(h.idx).(*state.Tree)
}

// Value returns the forest of currently-alive nodes with their meta maps
// joined in (Tree.Value itself only carries structure, not key/value pairs,
// since it has no registry reference to the node's meta-map container).
func (h *TreeHandle) Value() []state.TreeNodeValue {
	nodes := h.tree().Value(h.doc.ar).([]state.TreeNodeValue)
	h.fillMeta(nodes)
	return nodes
}

func (h *TreeHandle) fillMeta(nodes []state.TreeNodeValue) {
	for i := range nodes {
		if m, ok := h.doc.activeReg().Get(h.metaIdxOf(nodes[i].Idx)); ok {
			nodes[i].Meta = m.(*state.Map).Value(h.doc.ar).(map[string]arena.Value)
		}
		h.fillMeta(nodes[i].Children)
	}
}

func (h *TreeHandle) metaIdxOf(node arena.Idx) arena.Idx {
	cid := h.doc.ar.IdxToCID(node)
	metaIdx, _ := h.doc.ar.CIDToIdx(arena.NormalContainerID(cid.Create, arena.KindMap))
	return metaIdx
}

// CreateNode creates a new root-level node (hasParent false) or a child of
// parent, at the end of its sibling list.
func (h *TreeHandle) CreateNode(parent arena.Idx, hasParent bool) (arena.Idx, error) {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return 0, err
	}
	t := tx.Registry().GetOrCreate(h.idx).(*state.Tree)
	siblings := t.ChildrenOf(parent, hasParent)
	frac := nextFracIndex(t, siblings)
	newID, err := tx.Apply(h.idx, oplog.TreeCreate{Parent: parent, HasParent: hasParent, FractionalIndex: frac})
	if err != nil {
		return 0, err
	}
	newIdx, ok := h.doc.ar.CIDToIdx(arena.NormalContainerID(newID, arena.KindTree))
	if !ok {
		return 0, fmt.Errorf("loro: tree create: node container not registered")
	}
	return newIdx, nil
}

// Move reparents node under newParent, appending it as the new last child.
func (h *TreeHandle) Move(node, newParent arena.Idx, hasNewParent bool) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	t := tx.Registry().GetOrCreate(h.idx).(*state.Tree)
	siblings := t.ChildrenOf(newParent, hasNewParent)
	frac := nextFracIndex(t, siblings)
	_, err = tx.Apply(h.idx, oplog.TreeMove{Target: node, NewParent: newParent, HasNewParent: hasNewParent, FractionalIndex: frac})
	return err
}

func (h *TreeHandle) Delete(node arena.Idx) error {
	tx, err := h.doc.ensureTxn()
	if err != nil {
		return err
	}
	_, err = tx.Apply(h.idx, oplog.TreeDelete{Target: node})
	return err
}

// Meta returns a MapHandle over node's associated metadata container:
// every tree node owns a child map for arbitrary fields.
func (h *TreeHandle) Meta(node arena.Idx) *MapHandle {
	return &MapHandle{doc: h.doc, idx: h.metaIdxOf(node)}
}

func nextFracIndex(t *state.Tree, siblings []arena.Idx) string {
	if len(siblings) == 0 {
		return fracindex.First(4, peerRand)
	}
	last := siblings[len(siblings)-1]
	return fracindex.Between(t.FracIndexOf(last), "", 4, peerRand)
}
