package oplog

import (
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
)

// EncodeChanges serialises changes (a contiguous run from one peer) into one
// change-store block body.
func EncodeChanges(ar *arena.Arena, changes []*Change) []byte {
	w := &opWriter{}
	w.uvarint(uint64(len(changes)))
	for _, c := range changes {
		w.varint(int64(c.Start))
		w.varint(c.Timestamp)
		w.uvarint(uint64(c.Lamport))
		w.stringField(c.CommitMsg)
		w.uvarint(uint64(len(c.Deps)))
		for _, d := range c.Deps {
			w.idFieldAlways(d)
		}
		w.uvarint(uint64(len(c.Ops)))
		for _, op := range c.Ops {
			w.containerRefFieldAlways(ar, op.Container)
			encodeOpContent(w, ar, op.Content)
		}
	}
	return w.buf.Bytes()
}

// DecodeChanges is the inverse of EncodeChanges, interning any text payloads
// into ar and reconstructing peer as the block's owning peer (the change
// store's block key already carries peer, so it is not re-encoded per
// change).
func DecodeChanges(ar *arena.Arena, peer id.Peer, buf []byte) ([]*Change, error) {
	r := &opReader{buf: buf}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	changes := make([]*Change, 0, n)
	for i := uint64(0); i < n; i++ {
		startV, err := r.varint()
		if err != nil {
			return nil, err
		}
		start := id.Counter(startV)
		ts, err := r.varint()
		if err != nil {
			return nil, err
		}
		lamportV, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		msg, err := r.stringField()
		if err != nil {
			return nil, err
		}
		depsCount, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		deps := make(id.Frontiers, 0, depsCount)
		for j := uint64(0); j < depsCount; j++ {
			d, err := r.idFieldAlways()
			if err != nil {
				return nil, err
			}
			deps = append(deps, d)
		}
		opsCount, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		ops := make([]Op, 0, opsCount)
		counter := start
		for j := uint64(0); j < opsCount; j++ {
			containerIdx, err := r.containerRefFieldAlways(ar)
			if err != nil {
				return nil, err
			}
			kindB, err := r.byteField()
			if err != nil {
				return nil, err
			}
			content, err := decodeOpContent(r, ar, OpKind(kindB))
			if err != nil {
				return nil, err
			}
			ops = append(ops, Op{
				Container: containerIdx,
				Counter:   counter,
				Content:   content,
			})
			counter += id.Counter(ContentSpan(content))
		}
		changes = append(changes, &Change{
			Peer:      peer,
			Start:     start,
			Ops:       ops,
			Deps:      deps,
			Lamport:   id.Lamport(lamportV),
			Timestamp: ts,
			CommitMsg: msg,
		})
	}
	return changes, nil
}
