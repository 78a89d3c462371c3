package loro

import (
	"errors"
	"fmt"

	"github.com/loro-dev/loro-go/diff"
	"github.com/loro-dev/loro-go/encoding"
	"github.com/loro-dev/loro-go/event"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

// Export-side integration errors.
var (
	ErrDecodeFailed       = errors.New("loro: import: malformed blob")
	ErrFrontiersNotFound  = errors.New("loro: frontiers not found in this document's history")
	ErrShallowHistoryGone = errors.New("loro: cannot export history older than this document's shallow root")
)

// Export serialises the document under the given mode.
// ModeShallowSnapshot is not supported here — use ExportShallowSnapshot,
// which additionally needs the cut frontiers.
func (d *Document) Export(mode encoding.Mode) ([]byte, error) {
	switch mode {
	case encoding.ModeSnapshot:
		if d.hasShallowRoot {
			return nil, ErrShallowHistoryGone
		}
		return encoding.EncodeSnapshot(d.ar, d.log), nil
	case encoding.ModeUpdates:
		return encoding.EncodeUpdates(d.ar, d.log, id.VersionVector{}), nil
	default:
		return nil, fmt.Errorf("loro: export: unsupported mode %v", mode)
	}
}

// ExportUpdatesFrom serialises every change not yet covered by from. If from reaches behind this document's shallow root, the
// gap cannot be reconstructed and the call fails.
func (d *Document) ExportUpdatesFrom(from id.VersionVector) ([]byte, error) {
	if d.hasShallowRoot {
		shallowVV := d.log.FrontiersToVV(d.shallowRootFrontiers)
		for p, c := range shallowVV {
			if from.Get(p) < c {
				return nil, ErrShallowHistoryGone
			}
		}
	}
	return encoding.EncodeUpdates(d.ar, d.log, from), nil
}

// ExportShallowSnapshot cuts the document's history at f: everything before
// f is dropped from the returned blob in favour of a reconstructed baseline
// state, everything from f onward is carried verbatim.
func (d *Document) ExportShallowSnapshot(f id.Frontiers) ([]byte, error) {
	if d.tx != nil {
		return nil, ErrTransactionOpen
	}
	tracker := diff.NewTracker(d.log, d.ar)
	cutReg, err := tracker.ReplayTo(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrontiersNotFound, err)
	}
	blob, err := encoding.EncodeShallowSnapshot(d.ar, d.log, f, cutReg, d.liveReg)
	if err != nil {
		return nil, err
	}
	d.trimChangeStoreGenerations()
	return blob, nil
}

// trimChangeStoreGenerations folds the change store's mutable tree into a
// fresh SSTable generation and drops every earlier one. Cutting a shallow
// snapshot is exactly the proof generation.go's own doc comment asks for
// before a generation can be dropped: every change block the earlier
// generations held is now either covered by the new generation's compaction
// or has fallen behind the shallow root entirely, so nothing still
// addressable can point at them.
func (d *Document) trimChangeStoreGenerations() {
	d.kv.ExportAll()
	gens := d.kv.Generations()
	ids := make([]uint64, 0, len(gens))
	for _, g := range gens {
		ids = append(ids, g.ID())
	}
	for _, gid := range ids {
		d.kv.DropGeneration(gid)
	}
}

// ShallowRootFrontiers reports the frontiers this document's history was cut
// at, if it was built (directly or transitively) from a shallow snapshot.
func (d *Document) ShallowRootFrontiers() (id.Frontiers, bool) {
	return d.shallowRootFrontiers, d.hasShallowRoot
}

// Import decodes and integrates buf, which may be any of the three export
// modes. Deps not yet satisfied by this document's vv are buffered and
// applied automatically once a later import (or this one) supplies them.
// A malformed blob leaves the document completely unchanged.
func (d *Document) Import(buf []byte) error {
	if d.tx != nil {
		return ErrTransactionOpen
	}
	decoded, err := encoding.Decode(d.ar, buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	if decoded.Mode == encoding.ModeShallowSnapshot {
		if err := d.importShallowRoot(decoded); err != nil {
			return err
		}
	}

	dd, err := d.applyImportedChanges(decoded.Changes)
	if err != nil {
		return err
	}
	if len(dd.Containers) > 0 {
		d.disp.Emit(dd)
	}
	d.metrics.OpsApplied("remote", countOps(decoded.Changes))
	return nil
}

// importShallowRoot seeds a fresh log/registry pair at the snapshot's cut
// and applies its reconstructed baseline directly to state (it never joins
// causal history — SeedShallowRoot fast-forwards past it). Only valid on a
// document with no history of its own yet.
func (d *Document) importShallowRoot(decoded *encoding.Decoded) error {
	if d.log.VV().Equal(id.VersionVector{}) && !d.hasShallowRoot {
		d.log.SeedShallowRoot(decoded.ShallowVV, decoded.ShallowFrontiers, decoded.ShallowLamport)
	}
	d.shallowRootFrontiers = decoded.ShallowFrontiers
	d.hasShallowRoot = true
	if decoded.ShallowRoot == nil {
		return nil
	}
	return d.liveReg.ApplyChange(decoded.ShallowRoot, state.CausalContext{})
}

// applyImportedChanges drives the causal pending-import loop: repeatedly
// scan the buffered set for changes whose deps are now satisfied, apply
// them through the diff calculator so a single aggregated diff event comes
// out the other end, and re-buffer whatever is still blocked.
func (d *Document) applyImportedChanges(incoming []*oplog.Change) (event.DocDiff, error) {
	from := d.log.Frontiers().Clone()
	calc := diff.NewCalculator(d.liveReg, d.ar)
	acc := diff.NewAccumulator()

	pending := append(d.pendingChanges, incoming...)
	d.pendingChanges = nil

	for {
		progressed := false
		var next []*oplog.Change
		for _, c := range pending {
			if !d.importReady(c) {
				next = append(next, c)
				continue
			}
			vvBefore := d.log.VV().Clone()
			if err := d.log.Append(c); err != nil {
				return event.DocDiff{}, fmt.Errorf("loro: import: appending %v: %w", c.IDStart(), err)
			}
			lamport := c.Lamport
			for i, op := range c.Ops {
				if err := calc.ApplyRemote(acc, c.Peer, lamport, op, state.CausalContext{VV: vvBefore}); err != nil {
					return event.DocDiff{}, fmt.Errorf("loro: import: applying %v op %d: %w", c.IDStart(), i, err)
				}
				lamport += id.Lamport(oplog.ContentSpan(op.Content))
			}
			progressed = true
		}
		pending = next
		if !progressed || len(pending) == 0 {
			break
		}
	}
	d.pendingChanges = pending

	dd := event.DocDiff{
		From:       from,
		To:         d.log.Frontiers().Clone(),
		Local:      false,
		Containers: event.FromAccumulator(d.ar, acc),
	}
	return dd, nil
}

// importReady reports whether c's deps (and its own per-peer predecessor)
// are already covered by the log's current vv.
func (d *Document) importReady(c *oplog.Change) bool {
	vv := d.log.VV()
	if c.Start != vv.Get(c.Peer) {
		return false
	}
	for _, dep := range c.Deps {
		if !vv.Includes(dep) {
			return false
		}
	}
	return true
}

func countOps(changes []*oplog.Change) int {
	n := 0
	for _, c := range changes {
		n += c.Len()
	}
	return n
}

// ExportJSONUpdates renders every change in [from, to) as // human-readable JSON schema.
func (d *Document) ExportJSONUpdates(from, to id.VersionVector) ([]byte, error) {
	return encoding.MarshalJSONUpdates(d.ar, d.log, from, to)
}

// ImportJSONUpdates decodes a JSON updates document and integrates it
// through the same causal pending-import path Import uses.
func (d *Document) ImportJSONUpdates(buf []byte) error {
	if d.tx != nil {
		return ErrTransactionOpen
	}
	changes, err := encoding.DecodeJSONUpdates(d.ar, buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	dd, err := d.applyImportedChanges(changes)
	if err != nil {
		return err
	}
	if len(dd.Containers) > 0 {
		d.disp.Emit(dd)
	}
	d.metrics.OpsApplied("remote", countOps(changes))
	return nil
}
