package state

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

// mapWrite is one concurrent write to a key: every concurrent write is
// kept (not just the winner), so that a later causal reordering (checkout)
// can recompute the winner without replay.
type mapWrite struct {
	id      id.ID
	lamport id.Lamport
	value   arena.Value
}

// Map implements the map container: last-writer-wins on (lamport, peer)
// per key, retaining every concurrent write so value() can always
// recompute the current winner.
type Map struct {
	idx   arena.Idx
	writes map[string][]mapWrite
}

func NewMap(idx arena.Idx) *Map {
	return &Map{idx: idx, writes: make(map[string][]mapWrite)}
}

func (m *Map) Idx() arena.Idx            { return m.idx }
func (m *Map) Kind() arena.ContainerKind { return arena.KindMap }

func (m *Map) ApplyLocal(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	return m.apply(peer, lamport, op)
}

func (m *Map) ApplyRemote(peer id.Peer, lamport id.Lamport, op oplog.Op, _ CausalContext) error {
	_, err := m.apply(peer, lamport, op)
	return err
}

func (m *Map) apply(peer id.Peer, lamport id.Lamport, op oplog.Op) (oplog.OpContent, error) {
	c, ok := op.Content.(oplog.MapSet)
	if !ok {
		return nil, fmt.Errorf("state: map container got non-map op %T", op.Content)
	}
	for i, w := range m.writes[c.Key] {
		if w.id == op.ID(peer) {
			// The same op ID arriving again is Transaction.Abort reverting
			// this very write: drop it so the previous winner stands.
			ws := m.writes[c.Key]
			m.writes[c.Key] = append(ws[:i:i], ws[i+1:]...)
			if len(m.writes[c.Key]) == 0 {
				delete(m.writes, c.Key)
			}
			return nil, nil
		}
	}
	prevWinner, hadPrev := m.winner(c.Key)
	m.writes[c.Key] = append(m.writes[c.Key], mapWrite{id: op.ID(peer), lamport: lamport, value: c.Value})
	if hadPrev {
		return oplog.MapSet{Key: c.Key, Value: prevWinner.value}, nil
	}
	return oplog.MapSet{Key: c.Key, Value: arena.Value{Kind: arena.ValueNull}}, nil
}

// winner returns the current (lamport,peer)-greatest write for key.
func (m *Map) winner(key string) (mapWrite, bool) {
	ws := m.writes[key]
	if len(ws) == 0 {
		return mapWrite{}, false
	}
	best := ws[0]
	for _, w := range ws[1:] {
		if wins(w.lamport, w.id.Peer, best.lamport, best.id.Peer) {
			best = w
		}
	}
	return best, true
}

// Winner returns key's current (lamport,peer)-greatest value, for the diff
// calculator to report post-op.
func (m *Map) Winner(key string) (arena.Value, bool) {
	w, ok := m.winner(key)
	if !ok {
		return arena.Value{}, false
	}
	return w.value, true
}

func (m *Map) Value(ar *arena.Arena) any {
	out := make(map[string]arena.Value, len(m.writes))
	for key := range m.writes {
		if w, ok := m.winner(key); ok && w.value.Kind != arena.ValueNull {
			out[key] = w.value
		}
	}
	return out
}
