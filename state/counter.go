package state

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// Counter implements the counter container: a commutative sum
// of f64 deltas, identical under any application order.
type Counter struct {
	idx arena.Idx
	sum float64
}

func NewCounter(idx arena.Idx) *Counter {
	return &Counter{idx: idx}
}

func (c *Counter) Idx() arena.Idx            { return c.idx }
func (c *Counter) Kind() arena.ContainerKind { return arena.KindCounter }

func (c *Counter) ApplyLocal(_ id.Peer, _ id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return c.apply(op)
}

func (c *Counter) ApplyRemote(_ id.Peer, _ id.Lamport, op oplog.Op, _ CausalContext) error {
	_, err := c.apply(op)
	return err
}

func (c *Counter) apply(op oplog.Op) (oplog.OpContent, error) {
	inc, ok := op.Content.(oplog.CounterIncrement)
	if !ok {
		return nil, fmt.Errorf("state: counter container got non-counter op %T", op.Content)
	}
	c.sum += inc.Delta
	return oplog.CounterIncrement{Delta: -inc.Delta}, nil
}

func (c *Counter) Value(ar *arena.Arena) any { return c.sum }
