// Package arena implements the document-scoped interner: interned text
// bytes, list/map scalar values, container IDs (bidirectional with dense
// container indices) and parent links.
//
// An earlier design wrapped Go's experimental goexperiment.arenas
// allocator behind New/NewValue/MakeSlice/Free, but that package requires
// a non-stock toolchain build tag, which this module cannot depend on.
// This implementation keeps the same contract — stable addresses once a
// slot is assigned, append-only growth, no Free at all (storage is released
// only when the whole arena is dropped) — but builds it with plain growable chunk
// buffers instead of the experimental allocator, so a stock `go build`
// works. See DESIGN.md for this substitution.
//
// Stable-address invariant: once Arena.InternText/InternValue/RegisterContainer
// returns a slot or index, the bytes/value at that slot never move and
// later appends never invalidate earlier slices.
//
// © 2025 arena-cache authors. MIT License.
package arena

import (
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/unsafehelpers"
)

const textChunkSize = 64 << 10 // 64KiB per chunk

// TextRange addresses a stable, immutable byte range inside the arena's
// text store. Ranges are never invalidated by later InternText calls.
type TextRange struct {
	chunk int
	start int
	end   int
}

func (r TextRange) Len() int { return r.end - r.start }

// Sub returns the sub-range [from,to) of r, addressing the same stable
// backing bytes. Used to split one interned run into sub-runs without
// copying, e.g. when a partial delete only tombstones part of an insert.
func (r TextRange) Sub(from, to int) TextRange {
	return TextRange{chunk: r.chunk, start: r.start + from, end: r.start + to}
}

// Value is a scalar payload stored for list/map/tree entries. It is a closed
// union over the primitive kinds the engine needs; containers never nest raw
// Go values beyond this set.
type Value struct {
	Kind ValueKind
	Bool bool
	I64  int64
	F64  float64
	Str  string
	Bin  []byte
	// ContainerID is set when Kind == ValueContainer: the value is itself a
	// handle to a child container.
	ContainerID ContainerID
}

type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
	ValueBytes
	ValueContainer
)

// ContainerKind enumerates every container state machine kind the engine
// supports.
type ContainerKind uint8

const (
	KindText ContainerKind = iota
	KindList
	KindMovableList
	KindMap
	KindTree
	KindCounter
	KindUnknown
)

// ContainerID is either a root container (Name + Kind) or a normal container
// identified by the ID of the op that created it.
type ContainerID struct {
	IsRoot bool
	Name   string // valid when IsRoot
	Create id.ID  // valid when !IsRoot
	Kind   ContainerKind
}

func RootContainerID(name string, kind ContainerKind) ContainerID {
	return ContainerID{IsRoot: true, Name: name, Kind: kind}
}

func NormalContainerID(create id.ID, kind ContainerKind) ContainerID {
	return ContainerID{IsRoot: false, Create: create, Kind: kind}
}

func (c ContainerID) key() string {
	if c.IsRoot {
		return "r:" + string(rune(c.Kind)) + c.Name
	}
	return "n:" + string(rune(c.Kind)) + c.Create.String()
}

// Idx is a dense, never-reused 32-bit container index.
type Idx uint32

type containerSlot struct {
	cid       ContainerID
	parent    Idx
	hasParent bool
}

// Arena is the document-scoped interner. It is not safe for concurrent
// mutation; callers must serialize access, the same way a sharded cache
// serializes access to each shard.
type Arena struct {
	textChunks [][]byte

	values [][]Value // slot-indexed; each call to InternValue appends one slot group

	containersByIdx []containerSlot
	containersByCID map[string]Idx
}

// New constructs an empty arena.
func New() *Arena {
	return &Arena{
		containersByCID: make(map[string]Idx),
	}
}

// InternText appends buf into the text store and returns a stable range
// addressing it. Existing ranges remain valid and their backing bytes never
// move.
func (a *Arena) InternText(buf []byte) TextRange {
	if len(buf) == 0 {
		return TextRange{}
	}
	if len(a.textChunks) == 0 {
		a.textChunks = append(a.textChunks, make([]byte, 0, textChunkSize))
	}
	last := len(a.textChunks) - 1
	if len(buf) > textChunkSize {
		// larger than a chunk: give it its own dedicated chunk so earlier
		// slices remain stable.
		dedicated := make([]byte, len(buf))
		copy(dedicated, buf)
		a.textChunks = append(a.textChunks, dedicated)
		return TextRange{chunk: len(a.textChunks) - 1, start: 0, end: len(buf)}
	}
	if cap(a.textChunks[last])-len(a.textChunks[last]) < len(buf) {
		a.textChunks = append(a.textChunks, make([]byte, 0, textChunkSize))
		last++
	}
	chunk := &a.textChunks[last]
	start := len(*chunk)
	*chunk = append(*chunk, buf...)
	return TextRange{chunk: last, start: start, end: start + len(buf)}
}

// SliceText returns the immutable byte slice a TextRange addresses. The
// returned slice must not be mutated by the caller.
func (a *Arena) SliceText(r TextRange) []byte {
	if r.end == r.start {
		return nil
	}
	return a.textChunks[r.chunk][r.start:r.end]
}

// SliceTextString is a zero-copy string view, using unsafehelpers.BytesToString
// for hot paths (e.g. text value()).
func (a *Arena) SliceTextString(r TextRange) string {
	b := a.SliceText(r)
	if len(b) == 0 {
		return ""
	}
	return unsafehelpers.BytesToString(b)
}

// ValueSlot is a stable handle returned by InternValue.
type ValueSlot struct {
	group int
	index int
}

// InternValue appends a value and returns a stable slot; like TextRange,
// previously returned slots are never invalidated.
func (a *Arena) InternValue(v Value) ValueSlot {
	if len(a.values) == 0 {
		a.values = append(a.values, make([]Value, 0, 256))
	}
	g := len(a.values) - 1
	if len(a.values[g]) == cap(a.values[g]) {
		a.values = append(a.values, make([]Value, 0, 256))
		g++
	}
	a.values[g] = append(a.values[g], v)
	return ValueSlot{group: g, index: len(a.values[g]) - 1}
}

func (a *Arena) GetValue(s ValueSlot) Value { return a.values[s.group][s.index] }

// RegisterContainer interns a container ID, returning its dense index. If
// the container is already known, the existing index is returned
// idempotently — containers are created once, the first time they are named
// or targeted.
func (a *Arena) RegisterContainer(cid ContainerID) Idx {
	if idx, ok := a.containersByCID[cid.key()]; ok {
		return idx
	}
	idx := Idx(len(a.containersByIdx))
	a.containersByIdx = append(a.containersByIdx, containerSlot{cid: cid})
	a.containersByCID[cid.key()] = idx
	return idx
}

// IdxToCID resolves a dense index back to its container ID.
func (a *Arena) IdxToCID(idx Idx) ContainerID { return a.containersByIdx[idx].cid }

// CIDToIdx looks up an existing container by ID; ok is false if it has never
// been registered.
func (a *Arena) CIDToIdx(cid ContainerID) (Idx, bool) {
	idx, ok := a.containersByCID[cid.key()]
	return idx, ok
}

// SetParent records idx's parent container, used for event bubbling and
// path resolution.
func (a *Arena) SetParent(idx, parent Idx) {
	a.containersByIdx[idx].parent = parent
	a.containersByIdx[idx].hasParent = true
}

// Parent returns idx's parent container and whether it has one.
func (a *Arena) Parent(idx Idx) (Idx, bool) {
	s := a.containersByIdx[idx]
	return s.parent, s.hasParent
}

// Ancestors returns the chain of ancestor indices from idx's parent up to a
// root container, used by event path resolution (the tree container runs
// its own cycle check over its node map).
func (a *Arena) Ancestors(idx Idx) []Idx {
	var out []Idx
	cur := idx
	for {
		p, ok := a.Parent(cur)
		if !ok {
			return out
		}
		out = append(out, p)
		cur = p
	}
}

// ContainerCount returns the number of distinct containers ever registered.
func (a *Arena) ContainerCount() int { return len(a.containersByIdx) }
