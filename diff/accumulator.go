package diff

import "github.com/loro-dev/loro-go/internal/arena"

// Accumulator collects per-container deltas as ops are applied, preserving
// the order containers were first touched so event emission (package event)
// can report them in a stable order.
type Accumulator struct {
	order   []arena.Idx
	seen    map[arena.Idx]bool
	text    map[arena.Idx]*TextDelta
	list    map[arena.Idx]*ListDelta
	movable map[arena.Idx]*MovableListDelta
	mp      map[arena.Idx]*MapDelta
	tree    map[arena.Idx]*TreeDelta
	counter map[arena.Idx]*CounterDelta
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		seen:    make(map[arena.Idx]bool),
		text:    make(map[arena.Idx]*TextDelta),
		list:    make(map[arena.Idx]*ListDelta),
		movable: make(map[arena.Idx]*MovableListDelta),
		mp:      make(map[arena.Idx]*MapDelta),
		tree:    make(map[arena.Idx]*TreeDelta),
		counter: make(map[arena.Idx]*CounterDelta),
	}
}

func (a *Accumulator) touch(idx arena.Idx) {
	if !a.seen[idx] {
		a.seen[idx] = true
		a.order = append(a.order, idx)
	}
}

// Order returns containers in first-touched order.
func (a *Accumulator) Order() []arena.Idx { return append([]arena.Idx(nil), a.order...) }

// Empty reports whether nothing was fed.
func (a *Accumulator) Empty() bool { return len(a.order) == 0 }

func (a *Accumulator) text_(idx arena.Idx) *TextDelta {
	a.touch(idx)
	d, ok := a.text[idx]
	if !ok {
		d = &TextDelta{}
		a.text[idx] = d
	}
	return d
}

func (a *Accumulator) list_(idx arena.Idx) *ListDelta {
	a.touch(idx)
	d, ok := a.list[idx]
	if !ok {
		d = &ListDelta{}
		a.list[idx] = d
	}
	return d
}

func (a *Accumulator) movable_(idx arena.Idx) *MovableListDelta {
	a.touch(idx)
	d, ok := a.movable[idx]
	if !ok {
		d = &MovableListDelta{}
		a.movable[idx] = d
	}
	return d
}

func (a *Accumulator) map_(idx arena.Idx) *MapDelta {
	a.touch(idx)
	d, ok := a.mp[idx]
	if !ok {
		d = &MapDelta{Updated: make(map[string]arena.Value)}
		a.mp[idx] = d
	}
	return d
}

func (a *Accumulator) tree_(idx arena.Idx) *TreeDelta {
	a.touch(idx)
	d, ok := a.tree[idx]
	if !ok {
		d = &TreeDelta{}
		a.tree[idx] = d
	}
	return d
}

func (a *Accumulator) counter_(idx arena.Idx) *CounterDelta {
	a.touch(idx)
	d, ok := a.counter[idx]
	if !ok {
		d = &CounterDelta{}
		a.counter[idx] = d
	}
	return d
}

// Text returns idx's accumulated text delta, if any ops touched it.
func (a *Accumulator) Text(idx arena.Idx) (*TextDelta, bool) { d, ok := a.text[idx]; return d, ok }

// List returns idx's accumulated list delta.
func (a *Accumulator) List(idx arena.Idx) (*ListDelta, bool) { d, ok := a.list[idx]; return d, ok }

// MovableList returns idx's accumulated movable-list delta.
func (a *Accumulator) MovableList(idx arena.Idx) (*MovableListDelta, bool) {
	d, ok := a.movable[idx]
	return d, ok
}

// Map returns idx's accumulated map delta.
func (a *Accumulator) Map(idx arena.Idx) (*MapDelta, bool) { d, ok := a.mp[idx]; return d, ok }

// Tree returns idx's accumulated tree delta.
func (a *Accumulator) Tree(idx arena.Idx) (*TreeDelta, bool) { d, ok := a.tree[idx]; return d, ok }

// Counter returns idx's accumulated counter delta.
func (a *Accumulator) Counter(idx arena.Idx) (*CounterDelta, bool) {
	d, ok := a.counter[idx]
	return d, ok
}
