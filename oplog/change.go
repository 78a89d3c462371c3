package oplog

import "github.com/loro-dev/loro-go/internal/id"

// Change is a maximal run of ops by one peer sharing one dep set, one
// lamport start, one timestamp, and one optional commit message. Ops inside a change are consecutive in counter.
type Change struct {
	Peer      id.Peer
	Start     id.Counter // counter of the first op
	Ops       []Op
	Deps      id.Frontiers // never contains an ID from Peer: that edge is implicit
	Lamport   id.Lamport
	Timestamp int64
	CommitMsg string
}

// Len is the number of ops the change covers (not the counter span length:
// a TextInsert op occupies more than one counter, see Span).
func (c *Change) Len() int { return len(c.Ops) }

// Span is the number of counters (equivalently lamport ticks) the change's
// ops occupy in total.
func (c *Change) Span() int {
	n := 0
	for _, op := range c.Ops {
		n += ContentSpan(op.Content)
	}
	return n
}

// End is the exclusive counter bound one past the change's last op.
func (c *Change) End() id.Counter { return c.Start + id.Counter(c.Span()) }

// IDStart is the ID of the change's first op.
func (c *Change) IDStart() id.ID { return id.ID{Peer: c.Peer, Counter: c.Start} }

// IDSpan is the forward ID span the change covers.
func (c *Change) IDSpan() id.Span { return id.Span{Peer: c.Peer, Start: c.Start, End: c.End()} }

// LamportEnd is the exclusive lamport bound one past the change's last op,
// used when computing a dependent change's lamport.
func (c *Change) LamportEnd() id.Lamport { return c.Lamport + id.Lamport(c.Span()) }

// ContainsCounter reports whether counter cnt falls inside this change.
func (c *Change) ContainsCounter(cnt id.Counter) bool {
	return cnt >= c.Start && cnt < c.End()
}

// OpAt returns the op whose counter span covers cnt, assumed to be within
// range.
func (c *Change) OpAt(cnt id.Counter) Op {
	cursor := c.Start
	for _, op := range c.Ops {
		span := id.Counter(ContentSpan(op.Content))
		if cnt < cursor+span {
			return op
		}
		cursor += span
	}
	return c.Ops[len(c.Ops)-1]
}
