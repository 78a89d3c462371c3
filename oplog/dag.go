package oplog

import (
	"fmt"
	"sort"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
)

// peerChanges is one peer's changes in counter order; the invariant
// enforced by Append is that entry i's End() equals entry i+1's Start.
type peerChanges struct {
	changes []*Change
}

func (p *peerChanges) find(counter id.Counter) (*Change, bool) {
	i := sort.Search(len(p.changes), func(i int) bool { return p.changes[i].End() > counter })
	if i == len(p.changes) || !p.changes[i].ContainsCounter(counter) {
		return nil, false
	}
	return p.changes[i], true
}

// Log is the causal history: the DAG of changes plus the running version
// vector and frontiers, and the change store used to spill old blocks to
// compressed bytes.
type Log struct {
	byPeer map[id.Peer]*peerChanges

	vv        id.VersionVector
	frontiers id.Frontiers

	lastTimestamp map[id.Peer]int64

	store *ChangeStore
	arena *arena.Arena

	startVVCache map[*Change]id.VersionVector

	// Shallow-root floor: set by SeedShallowRoot when this
	// log was built from a shallow snapshot rather than full history. Zero
	// values when the log holds its full history from counter 0, so every
	// computation below that consults them is a no-op in the common case.
	shallowFrom      id.VersionVector
	shallowLamport   id.Lamport
	shallowFrontiers id.Frontiers
	hasShallowRoot   bool
}

// NewLog constructs an empty log backed by store (may be nil to keep
// everything resident in memory, e.g. in tests) and ar, the document's
// shared arena used to resolve text op payloads during block hydration.
func NewLog(store *ChangeStore, ar *arena.Arena) *Log {
	return &Log{
		byPeer:        make(map[id.Peer]*peerChanges),
		vv:            id.VersionVector{},
		lastTimestamp: make(map[id.Peer]int64),
		store:         store,
		arena:         ar,
		startVVCache:  make(map[*Change]id.VersionVector),
	}
}

// SeedShallowRoot fast-forwards a freshly constructed, empty Log to vv/
// frontiers without any of the changes that produced them being resident or
// ever importable again — the effect of importing a shallow snapshot.
// lamport is the Lamport value already reached at the cut, used to keep
// future local changes' lamports correctly ahead of history this log no
// longer holds.
func (l *Log) SeedShallowRoot(vv id.VersionVector, frontiers id.Frontiers, lamport id.Lamport) {
	l.vv = vv.Clone()
	l.frontiers = frontiers.Clone()
	l.shallowFrom = vv.Clone()
	l.shallowLamport = lamport
	l.shallowFrontiers = frontiers.Clone()
	l.hasShallowRoot = true
}

// ShallowRootFrontiers reports the frontiers this log's history was cut at,
// if it was seeded from a shallow snapshot.
func (l *Log) ShallowRootFrontiers() (id.Frontiers, bool) {
	return l.shallowFrontiers, l.hasShallowRoot
}

// VV returns the log's current version vector (exclusive counter ends). Callers must not
// mutate the returned map.
func (l *Log) VV() id.VersionVector { return l.vv }

// Frontiers returns the log's current DAG tips. Callers must not mutate the
// returned slice.
func (l *Log) Frontiers() id.Frontiers { return l.frontiers }

// peer lazily creates the per-peer change vector.
func (l *Log) peer(p id.Peer) *peerChanges {
	pc, ok := l.byPeer[p]
	if !ok {
		pc = &peerChanges{}
		l.byPeer[p] = pc
	}
	return pc
}

// GetChange implements a binary search within the
// peer's change vector, falling back to change-store block hydration when
// the change is not resident (e.g. right after constructing a Log from
// imported bytes).
func (l *Log) GetChange(target id.ID) (*Change, bool) {
	pc := l.peer(target.Peer)
	if c, ok := pc.find(target.Counter); ok {
		return c, true
	}
	if l.store == nil {
		return nil, false
	}
	hydrated, err := l.store.HydrateCovering(l.arena, target)
	if err != nil || len(hydrated) == 0 {
		return nil, false
	}
	l.absorbHydrated(target.Peer, hydrated)
	return pc.find(target.Counter)
}

// absorbHydrated merges freshly hydrated changes into the peer's resident
// vector, preserving sorted, non-overlapping order.
func (l *Log) absorbHydrated(p id.Peer, changes []*Change) {
	pc := l.peer(p)
	existing := make(map[id.Counter]bool, len(pc.changes))
	for _, c := range pc.changes {
		existing[c.Start] = true
	}
	for _, c := range changes {
		if !existing[c.Start] {
			pc.changes = append(pc.changes, c)
		}
	}
	sort.Slice(pc.changes, func(i, j int) bool { return pc.changes[i].Start < pc.changes[j].Start })
}

// NextCounter returns the next free counter for peer (0 if the peer has
// never committed).
func (l *Log) NextCounter(p id.Peer) id.Counter {
	return l.vv.Get(p)
}

// nextTimestamp assigns a monotone-non-decreasing-per-peer timestamp,
// matching "assign timestamp (monotone non-decreasing per
// peer, overridable by commit options)".
func (l *Log) nextTimestamp(p id.Peer, proposed int64) int64 {
	if last, ok := l.lastTimestamp[p]; ok && proposed < last {
		proposed = last
	}
	l.lastTimestamp[p] = proposed
	return proposed
}

// lamportForDeps computes a change's lamport from its explicit deps plus the
// implicit self-dep on the peer's own previous change.
func (l *Log) lamportForDeps(p id.Peer, start id.Counter, deps id.Frontiers) id.Lamport {
	ends := []id.Lamport{l.shallowLamport}
	if start > 0 {
		if prev, ok := l.GetChange(id.ID{Peer: p, Counter: start - 1}); ok {
			ends = append(ends, prev.LamportEnd())
		}
	}
	for _, d := range deps {
		if dc, ok := l.GetChange(d); ok {
			// lamport contribution is the dep's lamport at exactly that ID,
			// i.e. dc.Lamport + (d.Counter - dc.Start) + 1.
			ends = append(ends, dc.Lamport+id.Lamport(d.Counter-dc.Start)+1)
		}
	}
	return id.NewLamportFromDeps(ends)
}

// PendingChangeContext computes the (start, deps, lamport) triple a change
// authored right now by p would get, without appending anything. The
// transaction layer calls this at Open() time so buffered local ops can be
// applied to state with their final lamport already known, rather than
// deferred to commit.
func (l *Log) PendingChangeContext(p id.Peer) (start id.Counter, deps id.Frontiers, lamport id.Lamport) {
	start = l.NextCounter(p)
	deps = l.frontiersExcludingPeer(p)
	lamport = l.lamportForDeps(p, start, deps)
	return
}

// AppendLocalChange builds and appends a change authored locally by peer,
// deriving lamport from the current frontiers (the change's deps) plus the
// implicit self-dep, and a monotone timestamp. It updates vv and frontiers
// and returns the finished Change.
func (l *Log) AppendLocalChange(p id.Peer, ops []Op, timestamp int64, commitMsg string) (*Change, error) {
	start, deps, lamport := l.PendingChangeContext(p)
	c := &Change{
		Peer:      p,
		Start:     start,
		Ops:       ops,
		Deps:      deps,
		Lamport:   lamport,
		Timestamp: l.nextTimestamp(p, timestamp),
		CommitMsg: commitMsg,
	}
	if err := l.Append(c); err != nil {
		return nil, err
	}
	return c, nil
}

// frontiersExcludingPeer returns the current frontiers with any ID
// belonging to p removed, since that edge becomes the implicit self-dep
// rather than an explicit one.
func (l *Log) frontiersExcludingPeer(p id.Peer) id.Frontiers {
	var out id.Frontiers
	for _, f := range l.frontiers {
		if f.Peer != p {
			out = append(out, f)
		}
	}
	return out
}

// Append inserts an already-constructed remote or local change into the log,
// validating the contiguous-counter invariant, updating vv and frontiers.
func (l *Log) Append(c *Change) error {
	pc := l.peer(c.Peer)
	if len(pc.changes) > 0 {
		last := pc.changes[len(pc.changes)-1]
		if c.Start != last.End() {
			return fmt.Errorf("oplog: change for peer %d starts at %d, want %d", c.Peer, c.Start, last.End())
		}
	} else if floor := l.shallowFrom.Get(c.Peer); c.Start != floor {
		return fmt.Errorf("oplog: peer %d's first change must start at %d, got %d", c.Peer, floor, c.Start)
	}
	pc.changes = append(pc.changes, c)

	l.vv.SetEnd(c.Peer, c.End())

	newFrontiers := l.frontiersExcludingPeer(c.Peer)
	for _, d := range c.Deps {
		newFrontiers = removeID(newFrontiers, d)
	}
	newFrontiers = append(newFrontiers, id.ID{Peer: c.Peer, Counter: c.End() - 1})
	l.frontiers = newFrontiers

	if l.lastTimestamp[c.Peer] < c.Timestamp {
		l.lastTimestamp[c.Peer] = c.Timestamp
	}
	return nil
}

// Flush writes every resident change for peer into the change store as one
// or more blocks. It is safe to call repeatedly; blocks are
// keyed by their first counter, so re-flushing just overwrites the same
// key. A nil store makes this a no-op, matching an in-memory-only log.
func (l *Log) Flush(peer id.Peer) error {
	if l.store == nil {
		return nil
	}
	pc := l.peer(peer)
	return l.store.FlushPeerChanges(l.arena, peer, pc.changes)
}

// FlushAll flushes every peer currently resident in the log.
func (l *Log) FlushAll() error {
	for p := range l.byPeer {
		if err := l.Flush(p); err != nil {
			return err
		}
	}
	return nil
}

// AllChanges returns every resident change across every peer, in no
// particular cross-peer order (each peer's own changes stay counter-order).
// Used by export.
func (l *Log) AllChanges() []*Change {
	return l.ChangesFrom(id.VersionVector{})
}

// ChangesFrom returns every change needed to bring a document at vv up to
// this log's current version: for each peer, the resident changes after
// vv's cut, splitting the one change (if any) that straddles the cut so the
// result starts exactly at vv ( "Updates: ... oplog-delta
// covering (from_vv, current_vv)").
func (l *Log) ChangesFrom(vv id.VersionVector) []*Change {
	var out []*Change
	for p := range l.vv {
		cut := vv.Get(p)
		pc := l.peer(p)
		for _, c := range pc.changes {
			if c.End() <= cut {
				continue
			}
			if c.Start >= cut {
				out = append(out, c)
				continue
			}
			out = append(out, l.splitChangeAt(c, cut))
		}
	}
	return out
}

// splitChangeAt returns the suffix of c starting at cut as a new Change.
// The fragment's only dependency is the implicit self-dep on (peer,
// cut-1), which already transitively carries c's original explicit deps,
// so Deps is left empty.
func (l *Log) splitChangeAt(c *Change, cut id.Counter) *Change {
	before, after := SplitOps(c.Peer, c.Ops, c.Start, cut)
	lamportOffset := id.Lamport(0)
	for _, op := range before {
		lamportOffset += id.Lamport(ContentSpan(op.Content))
	}
	return &Change{
		Peer:      c.Peer,
		Start:     cut,
		Ops:       after,
		Lamport:   c.Lamport + lamportOffset,
		Timestamp: c.Timestamp,
	}
}

func removeID(f id.Frontiers, target id.ID) id.Frontiers {
	var out id.Frontiers
	for _, x := range f {
		if x != target {
			out = append(out, x)
		}
	}
	return out
}

// changeStartVV returns (and memoizes) the version vector covering
// everything causally before c's first op: the merge of its deps' closures
// and its own peer's previous change.
func (l *Log) changeStartVV(c *Change) id.VersionVector {
	if v, ok := l.startVVCache[c]; ok {
		return v
	}
	base := l.shallowFrom.Clone()
	if c.Start > 0 {
		if prev, ok := l.GetChange(id.ID{Peer: c.Peer, Counter: c.Start - 1}); ok {
			base = l.vvAt(prev, c.Start-1).Clone()
		}
	}
	for _, dep := range c.Deps {
		if dc, ok := l.GetChange(dep); ok {
			base = base.Merge(l.vvAt(dc, dep.Counter))
		}
	}
	l.startVVCache[c] = base
	return base
}

// vvAt returns the version vector that includes exactly everything up to
// and including (c.Peer, counter).
func (l *Log) vvAt(c *Change, counter id.Counter) id.VersionVector {
	v := l.changeStartVV(c).Clone()
	v.SetEnd(c.Peer, counter+1)
	return v
}

// FrontiersToVV computes the union of the
// per-id ancestral version vectors.
func (l *Log) FrontiersToVV(f id.Frontiers) id.VersionVector {
	out := id.VersionVector{}
	for _, x := range f {
		if c, ok := l.GetChange(x); ok {
			out = out.Merge(l.vvAt(c, x.Counter))
		}
	}
	return out
}

// VVToFrontiers computes the minimal set
// of IDs whose downward closure is exactly {x : x < vv}.
func (l *Log) VVToFrontiers(vv id.VersionVector) id.Frontiers {
	candidates := make([]id.ID, 0, len(vv))
	for p, end := range vv {
		if end > 0 {
			candidates = append(candidates, id.ID{Peer: p, Counter: end - 1})
		}
	}
	var out id.Frontiers
	for _, cand := range candidates {
		dominated := false
		for _, other := range candidates {
			if other == cand {
				continue
			}
			if oc, ok := l.GetChange(other); ok {
				if l.vvAt(oc, other.Counter).Includes(cand) {
					dominated = true
					break
				}
			}
		}
		if !dominated {
			out = append(out, cand)
		}
	}
	return out.Sorted()
}

// FindCommonAncestor finds the lowest common ancestor as the
// frontiers of the per-peer-componentwise-minimum of a and b's version
// vectors — the causal meet of the two versions.
func (l *Log) FindCommonAncestor(a, b id.Frontiers) id.Frontiers {
	va, vb := l.FrontiersToVV(a), l.FrontiersToVV(b)
	meet := id.VersionVector{}
	for p, ea := range va {
		eb := vb[p]
		if eb < ea {
			ea = eb
		}
		if ea > 0 {
			meet[p] = ea
		}
	}
	return l.VVToFrontiers(meet)
}

// CmpFrontiers compares two frontiers for causal ordering.
func (l *Log) CmpFrontiers(a, b id.Frontiers) id.Ordering {
	if a.Equal(b) {
		return id.Equal
	}
	va, vb := l.FrontiersToVV(a), l.FrontiersToVV(b)
	if vvLessOrEqual(va, vb) {
		return id.Less
	}
	if vvLessOrEqual(vb, va) {
		return id.Greater
	}
	return id.Concurrent
}

func vvLessOrEqual(a, b id.VersionVector) bool {
	for p, ea := range a {
		if ea > b[p] {
			return false
		}
	}
	return true
}
