// Package undo implements an undo/redo manager's diff-replay contract:
// its user-facing surface is intentionally minimal, but the underlying
// diff-replay machinery is complete. Undo never rewrites the op
// log — it commits a new local change whose ops are the inverses of a
// previously committed batch, so undo history composes correctly with
// concurrent remote edits the same way any other local edit would.
package undo

import (
	"errors"

	"github.com/loro-dev/loro-go/txn"
)

// ErrNothingToUndo and ErrNothingToRedo are contract violations: calling
// undo/redo with an empty stack.
var (
	ErrNothingToUndo = errors.New("undo: nothing to undo")
	ErrNothingToRedo = errors.New("undo: nothing to redo")
)

// Doc is the surface an UndoManager needs from its host document: run a
// local transaction and get back the committed ops' inverses.
type Doc interface {
	WithTransaction(origin string, fn func(*txn.Transaction) error) (txn.CommitResult, error)
}

type replayState uint8

const (
	replayNone replayState = iota
	replayUndo
	replayRedo
)

// Manager records reversible batches of local edits and replays their
// inverses on demand. It only ever reverts ops authored by the peer that
// installed this undo manager, after it was installed — guaranteed structurally
// here since Record is only ever fed commits the host document itself
// authored locally through WithTransaction, and only after the host wires
// this manager's Record method into its commit path.
type Manager struct {
	doc Doc

	undoStack [][]txn.InverseOp
	redoStack [][]txn.InverseOp

	grouping   bool
	groupBatch []txn.InverseOp

	replaying replayState
}

// New installs an undo manager against doc. The caller must arrange for
// every local commit from this point on to be reported via Record.
func New(doc Doc) *Manager {
	return &Manager{doc: doc}
}

// Record is the host document's commit hook: feed it every local commit's
// result, in commit order. Commits produced by Undo/Redo itself are routed
// to the opposite stack instead of accumulating a new undo entry, which is
// what gives undo-of-undo (i.e. redo) its usual meaning.
func (m *Manager) Record(result txn.CommitResult) {
	if len(result.Inverse) == 0 {
		return
	}
	switch m.replaying {
	case replayUndo:
		m.redoStack = append(m.redoStack, result.Inverse)
	case replayRedo:
		m.undoStack = append(m.undoStack, result.Inverse)
	default:
		if m.grouping {
			// The batch just committed was applied after everything already
			// in groupBatch, so its inverses must be replayed first.
			m.groupBatch = append(append([]txn.InverseOp{}, result.Inverse...), m.groupBatch...)
		} else {
			m.undoStack = append(m.undoStack, result.Inverse)
		}
		m.redoStack = nil
	}
}

// GroupStart begins coalescing every subsequent Record call into one undo
// step, until GroupEnd.
func (m *Manager) GroupStart() {
	m.grouping = true
	m.groupBatch = nil
}

// GroupEnd closes the current group, pushing it as a single undo step if
// anything was recorded.
func (m *Manager) GroupEnd() {
	if m.grouping && len(m.groupBatch) > 0 {
		m.undoStack = append(m.undoStack, m.groupBatch)
		m.redoStack = nil
	}
	m.grouping = false
	m.groupBatch = nil
}

// CanUndo reports whether Undo has a batch to replay.
func (m *Manager) CanUndo() bool { return len(m.undoStack) > 0 }

// CanRedo reports whether Redo has a batch to replay.
func (m *Manager) CanRedo() bool { return len(m.redoStack) > 0 }

// Undo replays the most recent undo batch's inverses as one new local
// commit, moving it onto the redo stack.
func (m *Manager) Undo() error {
	if !m.CanUndo() {
		return ErrNothingToUndo
	}
	batch := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]
	return m.replay(batch, replayUndo)
}

// Redo replays the most recent redo batch's inverses as one new local
// commit, moving it back onto the undo stack.
func (m *Manager) Redo() error {
	if !m.CanRedo() {
		return ErrNothingToRedo
	}
	batch := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]
	return m.replay(batch, replayRedo)
}

func (m *Manager) replay(batch []txn.InverseOp, state replayState) error {
	m.replaying = state
	defer func() { m.replaying = replayNone }()
	_, err := m.doc.WithTransaction("undo", func(tx *txn.Transaction) error {
		for _, op := range batch {
			if _, err := tx.Apply(op.Container, op.Content); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}
