package encoding

import (
	"errors"
	"fmt"
	"sort"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

// seedPeer authors every synthetic baseline op a shallow-root or
// accelerator state blob carries. It is fixed and reserved rather than
// randomly rolled so that decoding is deterministic; a real peer landing on
// this exact value would have to win a 64-bit coin flip, which DESIGN.md
// records as an accepted, vanishingly unlikely risk rather than something
// this package detects or guards against.
const seedPeer id.Peer = 0xA11CE5EED00D0000

// ErrUnknownContainerInShallowState is returned when a document asked to
// export a shallow snapshot still has a live container of kind Unknown:
// there is no baseline-op encoding for an opaque payload, so the export
// is refused rather than silently dropping it.
var ErrUnknownContainerInShallowState = errors.New("encoding: shallow-root state export refuses a live Unknown container")

// seeder reconstructs a causally-fresh baseline for a set of root
// containers by replaying each one's materialised Value() as a sequence of
// ops authored by seedPeer into a scratch arena and registry, isolated from
// the document being exported. The resulting ops, once decoded into the
// importing document's real arena via the same portable ContainerID scheme
// oplog.EncodeChanges/DecodeChanges already use for every other change,
// reconstruct the same materialised values: any later op with a higher
// lamport always outranks these under each container's own conflict rule,
// so this never corrupts a version later than the cut it describes.
type seeder struct {
	ar  *arena.Arena
	reg *state.Registry
	ctr id.Counter
	ops []oplog.Op
}

func newSeeder() *seeder {
	ar := arena.New()
	return &seeder{ar: ar, reg: state.NewRegistry(ar)}
}

func (s *seeder) emit(containerIdx arena.Idx, content oplog.OpContent) (id.ID, error) {
	op := oplog.Op{Container: containerIdx, Counter: s.ctr, Content: content}
	if err := s.reg.ApplyRemoteOp(seedPeer, id.Lamport(s.ctr), op, state.CausalContext{}); err != nil {
		return id.ID{}, fmt.Errorf("encoding: seed op %d: %w", s.ctr, err)
	}
	s.ops = append(s.ops, op)
	out := op.ID(seedPeer)
	s.ctr++
	return out, nil
}

func (s *seeder) seedRoot(name string, kind arena.ContainerKind, value any) error {
	idx := s.ar.RegisterContainer(arena.RootContainerID(name, kind))
	switch kind {
	case arena.KindText:
		return s.seedText(idx, value.(state.TextValue))
	case arena.KindList:
		return s.seedSeq(idx, false, value.([]arena.Value))
	case arena.KindMovableList:
		return s.seedSeq(idx, true, value.(state.MovableListValue).Items)
	case arena.KindMap:
		return s.seedMap(idx, value.(map[string]arena.Value))
	case arena.KindTree:
		return s.seedTree(idx, value.([]state.TreeNodeValue), 0, false)
	case arena.KindCounter:
		return s.seedCounter(idx, value.(float64))
	default:
		return ErrUnknownContainerInShallowState
	}
}

func (s *seeder) seedText(idx arena.Idx, v state.TextValue) error {
	var base id.ID
	haveBase := false
	if len(v.Text) > 0 {
		tr := s.ar.InternText([]byte(v.Text))
		id_, err := s.emit(idx, oplog.TextInsert{Text: tr})
		if err != nil {
			return err
		}
		base, haveBase = id_, true
	}
	anchorAt := func(pos int) (id.ID, bool) {
		if pos <= 0 || !haveBase {
			return id.ID{}, false
		}
		return id.ID{Peer: seedPeer, Counter: base.Counter + id.Counter(pos-1)}, true
	}
	for _, sp := range v.Styles {
		anchor, hasAnchor := anchorAt(sp.StartPos)
		startID, err := s.emit(idx, oplog.TextMark{Key: sp.Key, Value: sp.Value, Expand: oplog.ExpandNone, Anchor: anchor, HasAnchor: hasAnchor})
		if err != nil {
			return err
		}
		if sp.HasEnd {
			endAnchor, hasEndAnchor := anchorAt(sp.EndPos)
			if _, err := s.emit(idx, oplog.TextMarkEnd{Key: sp.Key, StartID: startID, Anchor: endAnchor, HasAnchor: hasEndAnchor}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) seedSeq(idx arena.Idx, movable bool, items []arena.Value) error {
	var prev id.ID
	hasPrev := false
	for _, v := range items {
		var content oplog.OpContent
		if movable {
			content = oplog.MovableListInsert{Value: v, OriginLeft: prev, HasLeft: hasPrev}
		} else {
			content = oplog.ListInsert{Value: v, OriginLeft: prev, HasLeft: hasPrev}
		}
		id_, err := s.emit(idx, content)
		if err != nil {
			return err
		}
		prev, hasPrev = id_, true
	}
	return nil
}

func (s *seeder) seedMap(idx arena.Idx, m map[string]arena.Value) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := s.emit(idx, oplog.MapSet{Key: k, Value: m[k]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) seedCounter(idx arena.Idx, sum float64) error {
	if sum == 0 {
		return nil
	}
	_, err := s.emit(idx, oplog.CounterIncrement{Delta: sum})
	return err
}

// seedTree replays nodes (already sorted by fractional index by Tree.Value)
// under parent (ignored when hasParent is false), recursing depth-first so
// each node's own synthetic creation ID is known before its children and its
// meta map are seeded against it.
func (s *seeder) seedTree(treeIdx arena.Idx, nodes []state.TreeNodeValue, parent arena.Idx, hasParent bool) error {
	for _, n := range nodes {
		selfID, err := s.emit(treeIdx, oplog.TreeCreate{Parent: parent, HasParent: hasParent, FractionalIndex: n.FracIndex})
		if err != nil {
			return err
		}
		nodeIdx, ok := s.ar.CIDToIdx(arena.NormalContainerID(selfID, arena.KindTree))
		if !ok {
			return fmt.Errorf("encoding: tree seed: node container for %v not registered", selfID)
		}
		if len(n.Meta) > 0 {
			metaIdx, ok := s.ar.CIDToIdx(arena.NormalContainerID(selfID, arena.KindMap))
			if !ok {
				return fmt.Errorf("encoding: tree seed: meta container for %v not registered", selfID)
			}
			if err := s.seedMap(metaIdx, n.Meta); err != nil {
				return err
			}
		}
		if len(n.Children) > 0 {
			if err := s.seedTree(treeIdx, n.Children, nodeIdx, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// change returns the accumulated ops as a single synthetic Change, or nil
// if nothing was seeded (an empty document at the cut).
func (s *seeder) change() *oplog.Change {
	if len(s.ops) == 0 {
		return nil
	}
	return &oplog.Change{Peer: seedPeer, Start: 0, Ops: s.ops, Lamport: 0, Timestamp: 0, CommitMsg: "shallow-root-state"}
}

// rootRef names one root container discovered in the source arena.
type rootRef struct {
	name string
	kind arena.ContainerKind
}

// liveRoots enumerates every root container the arena knows about, in a
// stable order (by kind, then name) so repeated exports of the same state produce
// byte-identical output.
func liveRoots(ar *arena.Arena) []rootRef {
	var out []rootRef
	for i := 0; i < ar.ContainerCount(); i++ {
		cid := ar.IdxToCID(arena.Idx(i))
		if cid.IsRoot {
			out = append(out, rootRef{name: cid.Name, kind: cid.Kind})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].name < out[j].name
	})
	return out
}

// seedState builds the synthetic baseline change reconstructing every root
// container's value as reg (sharing arena ar) currently materialises it.
// The returned change is nil if reg holds no containers at all.
func seedState(ar *arena.Arena, reg *state.Registry) (*oplog.Change, *arena.Arena, error) {
	s := newSeeder()
	for _, r := range liveRoots(ar) {
		idx, ok := ar.CIDToIdx(arena.RootContainerID(r.name, r.kind))
		if !ok {
			continue
		}
		v := reg.Value(idx)
		if v == nil {
			continue
		}
		if err := s.seedRoot(r.name, r.kind, v); err != nil {
			return nil, nil, err
		}
	}
	return s.change(), s.ar, nil
}
