// Package loro implements the public surface of the CRDT engine: a
// Document bundling the shared arena, op log, container state registry,
// event dispatcher and transaction layer, plus typed handles for each
// container kind.
package loro

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loro-dev/loro-go/diff"
	"github.com/loro-dev/loro-go/event"
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/kvstore"
	"github.com/loro-dev/loro-go/internal/metrics"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
	"github.com/loro-dev/loro-go/txn"
	"github.com/loro-dev/loro-go/undo"
)

// Contract-violation errors.
var (
	ErrTransactionOpen    = errors.New("loro: a transaction is already open")
	ErrNoTransaction      = errors.New("loro: no transaction is open")
	ErrDetachedReadOnly   = errors.New("loro: document is checked out to a historical version; enable detached editing to write")
	ErrPeerChangeWhileTxn = errors.New("loro: cannot change peer id while a transaction is open")
)

// Document is one CRDT document instance: the shared arena, the append-only
// op log, the live container registry, the event dispatcher, and at most
// one open transaction.
type Document struct {
	ar    *arena.Arena
	log   *oplog.Log
	store *oplog.ChangeStore
	kv    *kvstore.Store

	liveReg *state.Registry

	checkedOut        bool
	checkoutFrontiers id.Frontiers
	checkoutReg       *state.Registry
	detachedEditing   bool

	// pendingChanges holds imported changes whose deps are not yet satisfied
	// by the local vv.
	pendingChanges []*oplog.Change

	// shallowRootFrontiers is set once a shallow snapshot has been imported:
	// history older than this cannot be exported again.
	shallowRootFrontiers id.Frontiers
	hasShallowRoot       bool

	peer id.Peer
	tx   *txn.Transaction

	disp         *event.Dispatcher
	commitHooks  []func(txn.CommitResult)

	logger  *zap.Logger
	metrics metrics.Sink
}

// NewDocument constructs an empty document.
func NewDocument(opts ...Option) *Document {
	cfg := applyOptions(opts)
	ar := arena.New()
	cache := kvstore.NewBlockCache(cfg.blockCacheBytes)
	kv := kvstore.New(cache)
	store := oplog.NewChangeStore(kv)
	log := oplog.NewLog(store, ar)
	return &Document{
		ar:              ar,
		log:             log,
		store:           store,
		kv:              kv,
		liveReg:         state.NewRegistry(ar),
		peer:            cfg.peer,
		detachedEditing: cfg.detachedEditing,
		disp:            event.NewDispatcher(ar),
		logger:          cfg.logger,
		metrics:         metrics.New(cfg.metricsReg),
	}
}

// PeerID returns the document's current authoring identity.
func (d *Document) PeerID() id.Peer { return d.peer }

// SetPeerID changes the authoring identity used by future local commits.
func (d *Document) SetPeerID(p id.Peer) error {
	if d.tx != nil {
		return ErrPeerChangeWhileTxn
	}
	d.peer = p
	return nil
}

// Frontiers returns the log's current frontiers.
func (d *Document) Frontiers() id.Frontiers { return d.log.Frontiers() }

// VV returns the log's current version vector.
func (d *Document) VV() id.VersionVector { return d.log.VV() }

func (d *Document) FrontiersToVV(f id.Frontiers) id.VersionVector { return d.log.FrontiersToVV(f) }
func (d *Document) VVToFrontiers(vv id.VersionVector) id.Frontiers { return d.log.VVToFrontiers(vv) }
func (d *Document) CmpFrontiers(a, b id.Frontiers) id.Ordering    { return d.log.CmpFrontiers(a, b) }

// activeReg is the registry container handles read from: the checkout
// snapshot while detached and not mid-edit, the live registry otherwise.
func (d *Document) activeReg() *state.Registry {
	if d.checkedOut && d.checkoutReg != nil {
		return d.checkoutReg
	}
	return d.liveReg
}

// ensureTxn lazily opens a transaction for a local write. // detached-editing reroll, the first write issued while checked out (with
// detached editing enabled) rerolls the peer identity and reattaches to the
// live head before applying the edit: this engine does not model a forked
// branch per checkout, only a fresh identity writing onto the current head,
// which is documented in DESIGN.md as a deliberate scope simplification.
func (d *Document) ensureTxn() (*txn.Transaction, error) {
	if d.tx != nil {
		return d.tx, nil
	}
	if d.checkedOut {
		if !d.detachedEditing {
			return nil, ErrDetachedReadOnly
		}
		d.peer = randomPeer()
		d.checkedOut = false
		d.checkoutReg = nil
		d.checkoutFrontiers = nil
	}
	d.tx = txn.Open(d.peer, d.log, d.liveReg, d.ar)
	return d.tx, nil
}

// Commit flushes the currently open transaction (a no-op if none is open)
// under the default origin and the current wall-clock time.
func (d *Document) Commit() error {
	return d.CommitWith("", time.Now().UnixNano(), "")
}

// CommitWith flushes the open transaction, tagging the resulting diff event
// with message/timestamp/origin.
func (d *Document) CommitWith(message string, timestamp int64, origin string) error {
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	tx.SetOrigin(origin)
	result, err := tx.Commit(timestamp, message)
	d.tx = nil
	if err != nil {
		return fmt.Errorf("loro: commit: %w", err)
	}
	d.metrics.OpsApplied("local", tx.Len())
	for _, hook := range d.commitHooks {
		hook(result)
	}
	if len(result.Diff.Containers) > 0 {
		d.disp.Emit(result.Diff)
	}
	return nil
}

// Abort discards the currently open transaction's buffered ops, reverting
// their effect on state.
func (d *Document) Abort() error {
	if d.tx == nil {
		return ErrNoTransaction
	}
	tx := d.tx
	d.tx = nil
	return tx.Abort()
}

// WithTransaction opens a transaction, runs fn, and commits on success or
// aborts on error — the building block undo.Manager uses; container handle
// methods open their transaction through ensureTxn instead. fn receiving the *txn.Transaction directly is for
// undo's internal replay; ordinary callers use the container handles below.
func (d *Document) WithTransaction(origin string, fn func(*txn.Transaction) error) (txn.CommitResult, error) {
	if d.tx != nil {
		return txn.CommitResult{}, ErrTransactionOpen
	}
	tx, err := d.ensureTxn()
	if err != nil {
		return txn.CommitResult{}, err
	}
	if err := fn(tx); err != nil {
		d.tx = nil
		_ = tx.Abort()
		return txn.CommitResult{}, err
	}
	tx.SetOrigin(origin)
	result, err := tx.Commit(time.Now().UnixNano(), "")
	d.tx = nil
	if err != nil {
		return txn.CommitResult{}, err
	}
	for _, hook := range d.commitHooks {
		hook(result)
	}
	if len(result.Diff.Containers) > 0 {
		d.disp.Emit(result.Diff)
	}
	return result, nil
}

// AddCommitHook registers a callback invoked with every local commit's
// result, in commit order — how undo.Manager.Record gets wired in.
func (d *Document) AddCommitHook(hook func(txn.CommitResult)) {
	d.commitHooks = append(d.commitHooks, hook)
}

// NewUndoManager installs an undo manager against this document: every
// subsequent local commit is recorded for Undo/Redo. Only commits made from
// this point on are tracked.
func (d *Document) NewUndoManager() *undo.Manager {
	mgr := undo.New(d)
	d.AddCommitHook(mgr.Record)
	return mgr
}

// Subscribe registers cb for diffs touching idx or any of its descendants.
func (d *Document) Subscribe(idx arena.Idx, cb event.Callback) *event.Subscription {
	return d.disp.Subscribe(idx, cb)
}

// SubscribeRoot registers cb for every document diff.
func (d *Document) SubscribeRoot(cb event.RootCallback) *event.Subscription {
	return d.disp.SubscribeRoot(cb)
}

// SetDetachedEditing toggles whether local edits are permitted while
// checked out to a historical version.
func (d *Document) SetDetachedEditing(enabled bool) { d.detachedEditing = enabled }

// Checkout replays the document to frontiers f for reading, leaving the
// live op log untouched.
func (d *Document) Checkout(f id.Frontiers) error {
	if d.tx != nil {
		return ErrTransactionOpen
	}
	tracker := diff.NewTracker(d.log, d.ar)
	reg, err := tracker.ReplayTo(f)
	if err != nil {
		return fmt.Errorf("loro: checkout: %w", err)
	}
	d.checkedOut = true
	d.checkoutFrontiers = f
	d.checkoutReg = reg
	return nil
}

// Attach returns to the live head after a Checkout.
func (d *Document) Attach() {
	d.checkedOut = false
	d.checkoutReg = nil
	d.checkoutFrontiers = nil
}

// IsDetached reports whether the document is currently checked out.
func (d *Document) IsDetached() bool { return d.checkedOut }

// container resolves (and lazily creates on first write) the root
// container named name of the given kind, returning its arena index.
func (d *Document) container(name string, kind arena.ContainerKind) arena.Idx {
	return d.ar.RegisterContainer(arena.RootContainerID(name, kind))
}

func (d *Document) GetText(name string) *TextHandle {
	return &TextHandle{doc: d, idx: d.container(name, arena.KindText)}
}

func (d *Document) GetList(name string) *ListHandle {
	return &ListHandle{doc: d, idx: d.container(name, arena.KindList)}
}

func (d *Document) GetMovableList(name string) *MovableListHandle {
	return &MovableListHandle{doc: d, idx: d.container(name, arena.KindMovableList)}
}

func (d *Document) GetMap(name string) *MapHandle {
	return &MapHandle{doc: d, idx: d.container(name, arena.KindMap)}
}

func (d *Document) GetTree(name string) *TreeHandle {
	return &TreeHandle{doc: d, idx: d.container(name, arena.KindTree)}
}

func (d *Document) GetCounter(name string) *CounterHandle {
	return &CounterHandle{doc: d, idx: d.container(name, arena.KindCounter)}
}
