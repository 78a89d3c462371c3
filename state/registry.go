package state

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// Registry owns every container state machine for one document, creating
// them lazily the first time an op addresses a not-yet-seen arena.Idx
// (containers are created once, idempotently, — the arena
// already enforces that at the ID level; this just mirrors it at the state
// level).
type Registry struct {
	ar         *arena.Arena
	containers map[arena.Idx]Container
}

func NewRegistry(ar *arena.Arena) *Registry {
	return &Registry{ar: ar, containers: make(map[arena.Idx]Container)}
}

// GetOrCreate returns the container state machine for idx, constructing it
// from the arena's recorded ContainerID the first time it is touched.
func (r *Registry) GetOrCreate(idx arena.Idx) Container {
	if c, ok := r.containers[idx]; ok {
		return c
	}
	cid := r.ar.IdxToCID(idx)
	var c Container
	switch cid.Kind {
	case arena.KindText:
		c = NewText(idx, r.ar)
	case arena.KindList:
		c = NewList(idx)
	case arena.KindMovableList:
		c = NewMovableList(idx)
	case arena.KindMap:
		c = NewMap(idx)
	case arena.KindTree:
		c = NewTree(idx, r.ar)
	case arena.KindCounter:
		c = NewCounter(idx)
	default:
		c = NewUnknown(idx, uint32(cid.Kind))
	}
	r.containers[idx] = c
	return c
}

// Get returns an already-created container, if any.
func (r *Registry) Get(idx arena.Idx) (Container, bool) {
	c, ok := r.containers[idx]
	return c, ok
}

// ApplyLocalOp dispatches a single freshly authored op to its container.
func (r *Registry) ApplyLocalOp(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return r.GetOrCreate(op.Container).ApplyLocal(peer, lamport, op)
}

// ApplyRemoteOp dispatches a single op originating from (or replayed from)
// the op log to its container.
func (r *Registry) ApplyRemoteOp(peer id.Peer, lamport id.Lamport, op oplog.Op, cc CausalContext) error {
	return r.GetOrCreate(op.Container).ApplyRemote(peer, lamport, op, cc)
}

// ApplyChange replays every op in c against the registry, deriving each
// op's lamport from the change's starting lamport plus its cumulative
// counter/lamport span within the change (an op spans more than one tick
// when its content does, e.g. a multi-byte TextInsert).
func (r *Registry) ApplyChange(c *oplog.Change, cc CausalContext) error {
	lamport := c.Lamport
	for i, op := range c.Ops {
		if err := r.ApplyRemoteOp(c.Peer, lamport, op, cc); err != nil {
			return fmt.Errorf("state: apply change %v op %d: %w", c.IDStart(), i, err)
		}
		lamport += id.Lamport(oplog.ContentSpan(op.Content))
	}
	return nil
}

// Value materialises idx's current container value, nil if it has never
// been touched.
func (r *Registry) Value(idx arena.Idx) any {
	c, ok := r.containers[idx]
	if !ok {
		return nil
	}
	return c.Value(r.ar)
}
