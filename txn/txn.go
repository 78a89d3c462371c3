// Package txn implements the transaction layer: local ops are
// staged and applied to state immediately (so reads inside the same
// transaction see pending writes), and only committed into the op log as
// one change when Commit is called. Abort reverts every buffered op's
// effect on state by replaying its inverse in LIFO order.
package txn

import (
	"errors"
	"fmt"

	"github.com/loro-dev/loro-go/diff"
	"github.com/loro-dev/loro-go/event"
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

// ErrNoOpenTransaction is a contract violation : committing
// or aborting without an open transaction.
var ErrNoOpenTransaction = errors.New("txn: no open transaction")

// ErrAlreadyOpen is a contract violation error taxonomy
// ("transaction-already-open").
var ErrAlreadyOpen = errors.New("txn: a transaction is already open")

type bufferedOp struct {
	op      oplog.Op
	lamport id.Lamport
	inverse oplog.OpContent
}

// Transaction stages local ops against one document's log, registry, and
// arena. The caller (the root document type) is responsible for enforcing
// that at most one Transaction is open at a time.
type Transaction struct {
	peer id.Peer
	log  *oplog.Log
	reg  *state.Registry
	ar   *arena.Arena
	calc *diff.Calculator

	start   id.Counter
	deps    id.Frontiers
	lamport id.Lamport

	acc      *diff.Accumulator
	buffered []bufferedOp

	origin string
}

// Open begins a transaction for peer over the given log/registry/arena,
// fixing the change's eventual (start, deps, lamport) up front so buffered
// ops are applied to state with their final lamport already known.
func Open(peer id.Peer, log *oplog.Log, reg *state.Registry, ar *arena.Arena) *Transaction {
	start, deps, lamport := log.PendingChangeContext(peer)
	return &Transaction{
		peer: peer, log: log, reg: reg, ar: ar,
		calc: diff.NewCalculator(reg, ar),
		acc:  diff.NewAccumulator(),
		start: start, deps: deps, lamport: lamport,
	}
}

// SetOrigin tags the eventual commit diff's Origin field.
func (t *Transaction) SetOrigin(origin string) { t.origin = origin }

// NextCounter returns the counter the next buffered op will receive,
// letting a handle construct self-referential content (e.g. an insert
// whose own ID a later op in the same transaction needs to target). Ops
// occupy more than one counter when their content spans more than one tick
// (a TextInsert spans its byte length), so this walks the buffered ops
// rather than just counting them.
func (t *Transaction) NextCounter() id.Counter {
	counter := t.start
	for _, b := range t.buffered {
		counter += id.Counter(oplog.ContentSpan(b.op.Content))
	}
	return counter
}

// Peer returns the transaction's authoring peer.
func (t *Transaction) Peer() id.Peer { return t.peer }

// Registry exposes the live state registry so handles can read current
// values (including this transaction's own uncommitted writes).
func (t *Transaction) Registry() *state.Registry { return t.reg }

// Arena exposes the shared arena so handles can intern text/values.
func (t *Transaction) Arena() *arena.Arena { return t.ar }

// Apply stages and immediately applies one local op, returning its own ID.
func (t *Transaction) Apply(container arena.Idx, content oplog.OpContent) (id.ID, error) {
	counter := t.NextCounter()
	lamport := t.lamport + id.Lamport(counter-t.start)
	op := oplog.Op{Container: container, Counter: counter, Content: content}
	inverse, err := t.calc.ApplyLocal(t.acc, t.peer, lamport, op)
	if err != nil {
		return id.ID{}, err
	}
	t.buffered = append(t.buffered, bufferedOp{op: op, lamport: lamport, inverse: inverse})
	return op.ID(t.peer), nil
}

// Len reports how many ops are currently buffered.
func (t *Transaction) Len() int { return len(t.buffered) }

// InverseOp is one buffered op's effect-reverting counterpart, surfaced to
// undo.
type InverseOp struct {
	Container arena.Idx
	Lamport   id.Lamport
	Content   oplog.OpContent
}

// CommitResult bundles a commit's document diff with the buffered ops'
// inverses, in LIFO (undo-ready) order.
type CommitResult struct {
	Diff    event.DocDiff
	Inverse []InverseOp
}

// Commit flushes every buffered op into one change, appended to the log,
// and returns the resulting document diff built from the same deltas
// collected while staging.
func (t *Transaction) Commit(timestamp int64, message string) (CommitResult, error) {
	fromFrontiers := t.log.Frontiers().Clone()
	if len(t.buffered) == 0 {
		dd := event.DocDiff{From: fromFrontiers, To: fromFrontiers, Local: true, Origin: t.origin}
		return CommitResult{Diff: dd}, nil
	}
	ops := make([]oplog.Op, len(t.buffered))
	inverse := make([]InverseOp, 0, len(t.buffered))
	for i := len(t.buffered) - 1; i >= 0; i-- {
		b := t.buffered[i]
		if b.inverse != nil {
			inverse = append(inverse, InverseOp{Container: b.op.Container, Lamport: b.lamport, Content: b.inverse})
		}
	}
	for i, b := range t.buffered {
		ops[i] = b.op
	}
	if _, err := t.log.AppendLocalChange(t.peer, ops, timestamp, message); err != nil {
		return CommitResult{}, fmt.Errorf("txn: commit: %w", err)
	}
	dd := event.DocDiff{
		From: fromFrontiers, To: t.log.Frontiers().Clone(),
		Local: true, Origin: t.origin,
		Containers: event.FromAccumulator(t.ar, t.acc),
	}
	t.buffered = nil
	return CommitResult{Diff: dd, Inverse: inverse}, nil
}

// Abort reverts every buffered op's effect on state, most-recent first,
// and discards the transaction's own diff.
func (t *Transaction) Abort() error {
	for i := len(t.buffered) - 1; i >= 0; i-- {
		b := t.buffered[i]
		if b.inverse == nil {
			continue // apply returned no inverse (e.g. an Unknown op, a TextMarkEnd, or an ignored move/set)
		}
		inverseOp := oplog.Op{Container: b.op.Container, Counter: b.op.Counter, Content: b.inverse}
		if _, err := t.reg.ApplyLocalOp(t.peer, b.lamport, inverseOp); err != nil {
			return fmt.Errorf("txn: abort: reverting op %d: %w", i, err)
		}
	}
	t.buffered = nil
	return nil
}
