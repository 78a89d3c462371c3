package event

import "github.com/loro-dev/loro-go/internal/arena"

// Callback receives one container's diff, already resolved to the
// container the subscription was registered against (which may be an
// ancestor of the container that actually changed).
type Callback func(ContainerDiff, DocDiff)

// RootCallback receives the whole batched document diff.
type RootCallback func(DocDiff)

type subscription struct {
	id   int
	cb   Callback
	root RootCallback
}

// Subscription is the handle returned by Subscribe/SubscribeRoot.
type Subscription struct {
	d      *Dispatcher
	idx    arena.Idx
	isRoot bool
	id     int
}

// Unsubscribe removes the callback. If called from inside an active
// emission it is honoured only after that emission finishes.
func (s *Subscription) Unsubscribe() {
	if s.isRoot {
		s.d.unsubscribeRoot(s.id)
		return
	}
	s.d.unsubscribe(s.idx, s.id)
}

// Dispatcher is one document's event fan-out: a subscriber set per
// container index plus a root set, with ancestor bubbling and recursion-safe
// queueing.
type Dispatcher struct {
	ar       *arena.Arena
	byIdx    map[arena.Idx][]subscription
	root     []subscription
	nextID   int
	depth    int
	pending  []DocDiff
	toRemove []removal
}

type removal struct {
	idx    arena.Idx
	isRoot bool
	id     int
}

func NewDispatcher(ar *arena.Arena) *Dispatcher {
	return &Dispatcher{ar: ar, byIdx: make(map[arena.Idx][]subscription)}
}

// Subscribe registers cb against idx; cb also fires for diffs on any
// descendant of idx, bubbled up with the descendant's resolved path.
func (d *Dispatcher) Subscribe(idx arena.Idx, cb Callback) *Subscription {
	d.nextID++
	id := d.nextID
	d.byIdx[idx] = append(d.byIdx[idx], subscription{id: id, cb: cb})
	return &Subscription{d: d, idx: idx, id: id}
}

// SubscribeRoot registers cb for every DocDiff, regardless of which
// containers it touches.
func (d *Dispatcher) SubscribeRoot(cb RootCallback) *Subscription {
	d.nextID++
	id := d.nextID
	d.root = append(d.root, subscription{id: id, root: cb})
	return &Subscription{d: d, isRoot: true, id: id}
}

func (d *Dispatcher) unsubscribe(idx arena.Idx, id int) {
	if d.depth > 0 {
		d.toRemove = append(d.toRemove, removal{idx: idx, id: id})
		return
	}
	d.removeNow(idx, id)
}

func (d *Dispatcher) unsubscribeRoot(id int) {
	if d.depth > 0 {
		d.toRemove = append(d.toRemove, removal{isRoot: true, id: id})
		return
	}
	d.removeNow(0, id)
}

func (d *Dispatcher) removeNow(idx arena.Idx, id int) {
	subs := d.byIdx[idx]
	for i, s := range subs {
		if s.id == id {
			d.byIdx[idx] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
	for i, s := range d.root {
		if s.id == id {
			d.root = append(d.root[:i], d.root[i+1:]...)
			return
		}
	}
}

// Emit dispatches diff to every interested subscriber, bubbling each
// container diff to its ancestors' subscribers. Re-entrant Emit calls (a
// subscriber callback that triggers another commit) are queued and drained
// by the outermost call only, so emission stays recursion-safe.
func (d *Dispatcher) Emit(dd DocDiff) {
	if d.depth > 0 {
		d.pending = append(d.pending, dd)
		return
	}
	d.depth++
	d.deliver(dd)
	for len(d.pending) > 0 {
		next := d.pending[0]
		d.pending = d.pending[1:]
		d.deliver(next)
	}
	d.depth--
	d.flushRemovals()
}

func (d *Dispatcher) deliver(dd DocDiff) {
	for _, s := range d.root {
		s.root(dd)
	}
	notified := make(map[int]bool)
	for _, cdiff := range dd.Containers {
		for i := len(cdiff.Path) - 1; i >= 0; i-- {
			target := cdiff.Path[i].Container
			for _, s := range d.byIdx[target] {
				if notified[s.id] {
					continue
				}
				notified[s.id] = true
				s.cb(cdiff, dd)
			}
		}
	}
}

func (d *Dispatcher) flushRemovals() {
	if d.depth > 0 {
		return
	}
	pending := d.toRemove
	d.toRemove = nil
	for _, r := range pending {
		if r.isRoot {
			d.removeNow(0, r.id)
		} else {
			d.removeNow(r.idx, r.id)
		}
	}
}
