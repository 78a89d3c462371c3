// Package oplog owns the append-only causal history: ops, changes, the DAG
// built over them, and the change store that lets that history spill to a
// compressed binary block format. // ownership rule, the op log is the only thing that owns the change store
// and the DAG; container state lives in the state package and is driven by
// replaying ops this package produces.
package oplog

import (
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
)

// OpKind tags the content union every Op carries.
type OpKind uint8

const (
	OpTextInsert OpKind = iota
	OpTextDelete
	OpTextMark
	OpTextMarkEnd
	OpListInsert
	OpListDelete
	OpMovableListInsert
	OpMovableListDelete
	OpMovableListMove
	OpMovableListSet
	OpMapSet
	OpTreeCreate
	OpTreeMove
	OpTreeDelete
	OpCounterIncrement
	OpUnknown

	// The following kinds are never appended to the op log or sent over the
	// wire; they are transient inverse contents a container hands back from
	// ApplyLocal so txn.Abort can reverse a delete within a still-open
	// transaction ( "the state machines expose an inverse(op)
	// derivation sufficient for this").
	OpTextUndelete
	OpListUndelete
	OpMovableListUndelete
	OpTreeUndelete
)

// OpContent is the tagged-union payload of one Op. Concrete content types
// live alongside their container kind below; the state package type-switches
// on Kind() to know which one it received.
type OpContent interface {
	Kind() OpKind
}

// TextInsert carries the text bytes to insert plus the Fugue origin pair
// used to place it deterministically among concurrent inserts.
type TextInsert struct {
	Text       arena.TextRange
	OriginLeft id.ID
	HasLeft    bool
	OriginRight id.ID
	HasRight    bool
}

func (TextInsert) Kind() OpKind { return OpTextInsert }

// TextDelete tombstones a run of previously inserted text, addressed by the
// ID of its first inserted character and a length (may span several
// original inserts if they were contiguous).
type TextDelete struct {
	Target id.ID
	Len    int
}

func (TextDelete) Kind() OpKind { return OpTextDelete }

// MarkExpand controls whether text inserted exactly at a style boundary
// inherits that style.
type MarkExpand uint8

const (
	ExpandNone MarkExpand = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

// TextMark starts a style span, anchored immediately after the element
// identified by Anchor (zero value with HasAnchor false anchors at the very
// start of the text). Its matching TextMarkEnd carries the same Key and is
// linked by StartID.
type TextMark struct {
	Key       string
	Value     arena.Value
	Expand    MarkExpand
	Anchor    id.ID
	HasAnchor bool
}

func (TextMark) Kind() OpKind { return OpTextMark }

// TextMarkEnd closes the style span opened at StartID, anchored immediately
// after Anchor the same way TextMark is.
type TextMarkEnd struct {
	Key       string
	StartID   id.ID
	Anchor    id.ID
	HasAnchor bool
}

func (TextMarkEnd) Kind() OpKind { return OpTextMarkEnd }

// ListInsert places value at a Fugue-ordered position, same origin rule as
// TextInsert.
type ListInsert struct {
	Value       arena.Value
	OriginLeft  id.ID
	HasLeft     bool
	OriginRight id.ID
	HasRight    bool
}

func (ListInsert) Kind() OpKind { return OpListInsert }

// ListDelete tombstones Len consecutive list items, starting with the one
// created at Target (each list item owns one counter).
type ListDelete struct {
	Target id.ID
	Len    int
}

func (ListDelete) Kind() OpKind { return OpListDelete }

// MovableListInsert creates both a new Fugue position and a new element
// pointing at it.
type MovableListInsert struct {
	Value       arena.Value
	OriginLeft  id.ID
	HasLeft     bool
	OriginRight id.ID
	HasRight    bool
}

func (MovableListInsert) Kind() OpKind { return OpMovableListInsert }

// MovableListDelete tombstones a position and drops its element.
type MovableListDelete struct {
	Target id.ID
}

func (MovableListDelete) Kind() OpKind { return OpMovableListDelete }

// MovableListMove repoints an existing element (identified by its creating
// ID) at a freshly created position; on concurrent moves of the same
// element the highest (lamport, peer) of the move op wins.
type MovableListMove struct {
	Element     id.ID
	OriginLeft  id.ID
	HasLeft     bool
	OriginRight id.ID
	HasRight    bool
}

func (MovableListMove) Kind() OpKind { return OpMovableListMove }

// MovableListSet overwrites an element's value under the same
// highest-(lamport,peer)-wins rule as Move.
type MovableListSet struct {
	Element id.ID
	Value   arena.Value
}

func (MovableListSet) Kind() OpKind { return OpMovableListSet }

// MapSet assigns key within a map container. A nil Value (ValueKind ==
// arena.ValueNull with no payload) represents a deletion — maps keep every
// concurrent write and resolve the winner by (lamport, peer).
type MapSet struct {
	Key   string
	Value arena.Value
}

func (MapSet) Kind() OpKind { return OpMapSet }

// TreeCreate makes a new tree node as a child of Parent (zero Idx with
// HasParent false for a new root-level node) at the given fractional index.
type TreeCreate struct {
	Parent      arena.Idx
	HasParent   bool
	FractionalIndex string
}

func (TreeCreate) Kind() OpKind { return OpTreeCreate }

// TreeMove reparents Target under NewParent, LWW on (lamport, peer); cycle
// prevention is enforced by the state machine, not by this content type.
type TreeMove struct {
	Target          arena.Idx
	NewParent       arena.Idx
	HasNewParent    bool
	FractionalIndex string
}

func (TreeMove) Kind() OpKind { return OpTreeMove }

// TreeDelete marks Target (and, implicitly, its subtree) as deleted.
type TreeDelete struct {
	Target arena.Idx
}

func (TreeDelete) Kind() OpKind { return OpTreeDelete }

// CounterIncrement is a commutative add of Delta to the counter container's
// running sum.
type CounterIncrement struct {
	Delta float64
}

func (CounterIncrement) Kind() OpKind { return OpCounterIncrement }

// Unknown preserves a future/unrecognised op verbatim: a numeric kind tag
// plus raw bytes, re-exported byte-for-byte.
type Unknown struct {
	RawKind uint32
	Payload []byte
}

func (Unknown) Kind() OpKind { return OpUnknown }

// TextUndelete reverses a TextDelete within the same still-open transaction,
// restoring [Target, Target+Len) to live (not-deleted) status.
type TextUndelete struct {
	Target id.ID
	Len    int
}

func (TextUndelete) Kind() OpKind { return OpTextUndelete }

// ListUndelete reverses a ListDelete the same way.
type ListUndelete struct {
	Target id.ID
	Len    int
}

func (ListUndelete) Kind() OpKind { return OpListUndelete }

// MovableListUndelete reverses a MovableListDelete, restoring the element
// record and un-tombstoning its bound position.
type MovableListUndelete struct {
	Target  id.ID
	PosID   id.ID
	Value   arena.Value
	ValueID id.ID
}

func (MovableListUndelete) Kind() OpKind { return OpMovableListUndelete }

// TreeUndelete reverses a TreeDelete, restoring Target to alive.
type TreeUndelete struct {
	Target arena.Idx
}

func (TreeUndelete) Kind() OpKind { return OpTreeUndelete }

// Op is one operation inside a Change, targeting a single container.
type Op struct {
	Container arena.Idx
	Counter   id.Counter
	Content   OpContent
}

// ContentSpan reports how many counter/lamport ticks content occupies.
// Every op kind takes exactly one tick except TextInsert, which takes one
// per inserted byte: TextDelete addresses an arbitrary byte within a run as
// (Target, Len) via plain counter arithmetic, which only holds if each byte
// of an insert owns its own counter.
func ContentSpan(content OpContent) int {
	if ti, ok := content.(TextInsert); ok {
		if n := ti.Text.Len(); n > 0 {
			return n
		}
	}
	return 1
}

// SplitOps splits a counter-contiguous run of ops (the first starting at
// start, for peer) into the prefix ending exactly at cut and the suffix
// starting exactly at cut. cut is assumed to fall within [start, start+span)
// for the whole run. If cut lands inside a single op's span (only possible
// for TextInsert, whose span is its byte length), that op is fractured the
// same way a covering text run is split for a delete that lands mid-insert:
// the prefix gets a fresh OriginRight anchored at the cut, the suffix gets a
// fresh OriginLeft anchored at the same point.
func SplitOps(peer id.Peer, ops []Op, start id.Counter, cut id.Counter) (before, after []Op) {
	cursor := start
	for i, op := range ops {
		span := id.Counter(ContentSpan(op.Content))
		if cut == cursor {
			before = append([]Op{}, ops[:i]...)
			after = append([]Op{}, ops[i:]...)
			return before, after
		}
		if cut < cursor+span {
			ti := op.Content.(TextInsert)
			n := int(cut - cursor)
			boundary := id.ID{Peer: peer, Counter: cut}
			left := Op{Container: op.Container, Counter: op.Counter, Content: TextInsert{
				Text: ti.Text.Sub(0, n), OriginLeft: ti.OriginLeft, HasLeft: ti.HasLeft,
				OriginRight: boundary, HasRight: true,
			}}
			right := Op{Container: op.Container, Counter: cut, Content: TextInsert{
				Text: ti.Text.Sub(n, ti.Text.Len()), OriginLeft: boundary, HasLeft: true,
				OriginRight: ti.OriginRight, HasRight: ti.HasRight,
			}}
			before = append(append([]Op{}, ops[:i]...), left)
			after = append([]Op{right}, ops[i+1:]...)
			return before, after
		}
		cursor += span
	}
	return append([]Op{}, ops...), nil
}

// ID returns the op's own identity, using the change's peer (an Op does not
// carry its peer directly — it is always addressed through its owning
// Change).
func (o Op) ID(peer id.Peer) id.ID { return id.ID{Peer: peer, Counter: o.Counter} }
