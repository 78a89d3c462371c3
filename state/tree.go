package state

import (
	"fmt"
	"sort"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// treeNode is one tree container node, addressed by its own arena.Idx
// (registered the moment its TreeCreate op is applied) rather than by a
// separately-tracked ID, so Target/NewParent fields on later ops can
// address it the same way any other container is addressed.
type treeNode struct {
	idx           arena.Idx
	meta          arena.Idx // the node's associated meta-map container
	parent        arena.Idx
	hasParent     bool
	parentLamport id.Lamport
	parentPeer    id.Peer
	fracIndex     string
	deleted       bool
}

// Tree implements the tree container: creation-ID-addressed
// nodes, LWW parent pointers with cycle prevention, and fractional-index
// sibling ordering.
type Tree struct {
	idx   arena.Idx
	ar    *arena.Arena
	nodes map[arena.Idx]*treeNode
}

func NewTree(idx arena.Idx, ar *arena.Arena) *Tree {
	return &Tree{idx: idx, ar: ar, nodes: make(map[arena.Idx]*treeNode)}
}

func (t *Tree) Idx() arena.Idx            { return t.idx }
func (t *Tree) Kind() arena.ContainerKind { return arena.KindTree }

func (t *Tree) ApplyLocal(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return t.apply(peer, lamport, op)
}

func (t *Tree) ApplyRemote(peer id.Peer, lamport id.Lamport, op oplog.Op, _ CausalContext) error {
	_, err := t.apply(peer, lamport, op)
	return err
}

func (t *Tree) apply(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	self := op.ID(peer)
	switch c := op.Content.(type) {
	case oplog.TreeCreate:
		nodeIdx := t.ar.RegisterContainer(arena.NormalContainerID(self, arena.KindTree))
		metaIdx := t.ar.RegisterContainer(arena.NormalContainerID(self, arena.KindMap))
		node := &treeNode{idx: nodeIdx, meta: metaIdx, parent: c.Parent, hasParent: c.HasParent, fracIndex: c.FractionalIndex, parentLamport: lamport, parentPeer: peer}
		t.nodes[nodeIdx] = node
		if c.HasParent {
			t.ar.SetParent(nodeIdx, c.Parent)
		}
		return oplog.TreeDelete{Target: nodeIdx}, nil

	case oplog.TreeMove:
		node, ok := t.nodes[c.Target]
		if !ok {
			return nil, fmt.Errorf("state: tree move of unknown node %v", c.Target)
		}
		if c.HasNewParent && t.wouldCycle(c.Target, c.NewParent) {
			return nil, nil // cycle prevention: move ignored
		}
		if !wins(lamport, peer, node.parentLamport, node.parentPeer) {
			return nil, nil
		}
		prevParent, prevHas, prevFrac := node.parent, node.hasParent, node.fracIndex
		node.parent, node.hasParent, node.fracIndex = c.NewParent, c.HasNewParent, c.FractionalIndex
		node.parentLamport, node.parentPeer = lamport, peer
		if c.HasNewParent {
			t.ar.SetParent(c.Target, c.NewParent)
		}
		return oplog.TreeMove{Target: c.Target, NewParent: prevParent, HasNewParent: prevHas, FractionalIndex: prevFrac}, nil

	case oplog.TreeDelete:
		node, ok := t.nodes[c.Target]
		if !ok {
			return nil, fmt.Errorf("state: tree delete of unknown node %v", c.Target)
		}
		node.deleted = true
		return oplog.TreeUndelete{Target: c.Target}, nil

	case oplog.TreeUndelete:
		if node, ok := t.nodes[c.Target]; ok {
			node.deleted = false
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("state: tree container got unexpected op %T", op.Content)
	}
}

// wouldCycle reports whether reparenting node under newParent would make
// node its own ancestor.
func (t *Tree) wouldCycle(node, newParent arena.Idx) bool {
	cur := newParent
	for {
		if cur == node {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok || !n.hasParent {
			return false
		}
		cur = n.parent
	}
}

// isAlive reports whether node and every one of its ancestors is
// non-deleted.
func (t *Tree) isAlive(idx arena.Idx) bool {
	for {
		n, ok := t.nodes[idx]
		if !ok || n.deleted {
			return false
		}
		if !n.hasParent {
			return true
		}
		idx = n.parent
	}
}

// TreeNodeValue is one materialised node in Container.Value's output.
type TreeNodeValue struct {
	Idx         arena.Idx
	Parent      arena.Idx
	HasParent   bool
	FracIndex   string
	Meta        map[string]arena.Value
	Children    []TreeNodeValue
}

// ChildrenOf returns the currently-alive children of parent (or of the
// forest roots when hasParent is false), sorted by fractional index — used
// by a handle to pick a new sibling's fractional index on create/move.
func (t *Tree) ChildrenOf(parent arena.Idx, hasParent bool) []arena.Idx {
	var out []arena.Idx
	for idx, n := range t.nodes {
		if !t.isAlive(idx) {
			continue
		}
		if n.hasParent != hasParent || (hasParent && n.parent != parent) {
			continue
		}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return t.nodes[out[i]].fracIndex < t.nodes[out[j]].fracIndex })
	return out
}

// FracIndexOf returns node's current fractional index string.
func (t *Tree) FracIndexOf(node arena.Idx) string {
	if n, ok := t.nodes[node]; ok {
		return n.fracIndex
	}
	return ""
}

// IsAlive reports whether node (and all its ancestors) is currently alive.
func (t *Tree) IsAlive(node arena.Idx) bool { return t.isAlive(node) }

// ParentOf returns node's current parent pointer, for the diff calculator
// to detect whether a TreeMove actually changed anything.
func (t *Tree) ParentOf(node arena.Idx) (parent arena.Idx, hasParent bool, ok bool) {
	n, exists := t.nodes[node]
	if !exists {
		return 0, false, false
	}
	return n.parent, n.hasParent, true
}

func (t *Tree) Value(ar *arena.Arena) any {
	childrenOf := make(map[arena.Idx][]arena.Idx)
	var roots []arena.Idx
	for idx, n := range t.nodes {
		if !t.isAlive(idx) {
			continue
		}
		if n.hasParent && t.isAlive(n.parent) {
			childrenOf[n.parent] = append(childrenOf[n.parent], idx)
		} else {
			roots = append(roots, idx)
		}
	}
	sortByFracIndex := func(idxs []arena.Idx) {
		sort.Slice(idxs, func(i, j int) bool { return t.nodes[idxs[i]].fracIndex < t.nodes[idxs[j]].fracIndex })
	}
	var build func(idx arena.Idx) TreeNodeValue
	build = func(idx arena.Idx) TreeNodeValue {
		kids := childrenOf[idx]
		sortByFracIndex(kids)
		n := t.nodes[idx]
		out := TreeNodeValue{Idx: idx, Parent: n.parent, HasParent: n.hasParent, FracIndex: n.fracIndex, Meta: make(map[string]arena.Value)}
		for _, k := range kids {
			out.Children = append(out.Children, build(k))
		}
		return out
	}
	sortByFracIndex(roots)
	result := make([]TreeNodeValue, 0, len(roots))
	for _, r := range roots {
		result = append(result, build(r))
	}
	return result
}
