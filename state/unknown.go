package state

import (
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// Unknown implements the "Unknown" kind: any container kind this
// build doesn't recognise is kept as an opaque tagged blob per op, stored
// and re-exported verbatim rather than interpreted.
type Unknown struct {
	idx   arena.Idx
	kind  uint32
	blobs []oplog.Unknown
}

func NewUnknown(idx arena.Idx, kind uint32) *Unknown {
	return &Unknown{idx: idx, kind: kind}
}

func (u *Unknown) Idx() arena.Idx            { return u.idx }
func (u *Unknown) Kind() arena.ContainerKind { return arena.KindUnknown }

func (u *Unknown) ApplyLocal(_ id.Peer, _ id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return u.apply(op)
}

func (u *Unknown) ApplyRemote(_ id.Peer, _ id.Lamport, op oplog.Op, _ CausalContext) error {
	_, err := u.apply(op)
	return err
}

func (u *Unknown) apply(op oplog.Op) (oplog.OpContent, error) {
	c := op.Content.(oplog.Unknown)
	u.blobs = append(u.blobs, c)
	return nil, nil // opaque ops are not individually invertible
}

// Value returns the raw, ordered payload blobs kept for this container.
// Unknown containers are refused when listed as alive during
// shallow-snapshot export rather than materialised further.
func (u *Unknown) Value(ar *arena.Arena) any { return u.blobs }
