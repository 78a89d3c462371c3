package encoding

import (
	"sort"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
	"github.com/loro-dev/loro-go/state"
)

// AcceleratorThreshold is the tail-length (in ops) past which a shallow
// snapshot export also carries an accelerator state blob reconstructing the
// current (not just the cut) materialised value. Document.Import does not
// read that blob: it still replays the whole tail to reach the latest
// version. DESIGN.md records the decision.
const AcceleratorThreshold = 4096

func writeFrontiers(w *frameWriter, f id.Frontiers) {
	sorted := f.Sorted()
	w.uvarint(uint64(len(sorted)))
	for _, fid := range sorted {
		w.uvarint(uint64(fid.Peer))
		w.uvarint(uint64(fid.Counter))
	}
}

func readFrontiers(r *frameReader) (id.Frontiers, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make(id.Frontiers, 0, n)
	for i := uint64(0); i < n; i++ {
		p, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		c, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		out = append(out, id.ID{Peer: id.Peer(p), Counter: id.Counter(c)})
	}
	return out, nil
}

func writeVV(w *frameWriter, vv id.VersionVector) {
	peers := make([]id.Peer, 0, len(vv))
	for p := range vv {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	w.uvarint(uint64(len(peers)))
	for _, p := range peers {
		w.uvarint(uint64(p))
		w.uvarint(uint64(vv[p]))
	}
}

func readVV(r *frameReader) (id.VersionVector, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make(id.VersionVector, n)
	for i := uint64(0); i < n; i++ {
		p, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		c, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		out[id.Peer(p)] = id.Counter(c)
	}
	return out, nil
}

// encodeMultiPeerChanges frames changes from any number of peers by
// grouping per peer (oplog.EncodeChanges/DecodeChanges are single-peer, to
// match the change store's per-peer block layout) and length-prefixing each
// group.
func encodeMultiPeerChanges(ar *arena.Arena, changes []*oplog.Change) []byte {
	byPeer := make(map[id.Peer][]*oplog.Change)
	var peers []id.Peer
	for _, c := range changes {
		if _, ok := byPeer[c.Peer]; !ok {
			peers = append(peers, c.Peer)
		}
		byPeer[c.Peer] = append(byPeer[c.Peer], c)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	w := &frameWriter{}
	w.uvarint(uint64(len(peers)))
	for _, p := range peers {
		pcs := byPeer[p]
		sort.Slice(pcs, func(i, j int) bool { return pcs[i].Start < pcs[j].Start })
		w.uvarint(uint64(p))
		w.bytesField(oplog.EncodeChanges(ar, pcs))
	}
	return w.buf.Bytes()
}

func decodeMultiPeerChanges(ar *arena.Arena, buf []byte) ([]*oplog.Change, error) {
	r := newFrameReader(buf)
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	var out []*oplog.Change
	for i := uint64(0); i < n; i++ {
		p, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		body, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		cs, err := oplog.DecodeChanges(ar, id.Peer(p), body)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

func encodeOneChange(ar *arena.Arena, c *oplog.Change) []byte {
	if c == nil {
		return nil
	}
	return encodeMultiPeerChanges(ar, []*oplog.Change{c})
}

func decodeOneChange(ar *arena.Arena, buf []byte) (*oplog.Change, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	cs, err := decodeMultiPeerChanges(ar, buf)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, nil
	}
	return cs[0], nil
}

// Decoded is the parsed result of Decode, shaped to carry exactly what each
// mode needs: Changes always holds ops meant to join causal history through
// the ordinary pending-import path; ShallowRoot and Accelerator (present
// only for ModeShallowSnapshot) are synthetic baseline changes authored by
// the reserved seed peer. Document's import path applies ShallowRoot
// directly to container state rather than appending it to the log;
// Accelerator is decoded and surfaced here but not applied.
type Decoded struct {
	Mode Mode

	Changes []*oplog.Change

	ShallowFrontiers id.Frontiers
	ShallowVV        id.VersionVector
	ShallowLamport   id.Lamport
	ShallowRoot      *oplog.Change
	Accelerator      *oplog.Change
}

// Decode parses buf into its structured changes, without applying anything:
// the caller (Document) drives causal buffering and state application.
func Decode(ar *arena.Arena, buf []byte) (*Decoded, error) {
	r := newFrameReader(buf)
	mode, err := r.header()
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeUpdates:
		body, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		changes, err := decodeMultiPeerChanges(ar, body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Mode: mode, Changes: changes}, nil

	case ModeSnapshot:
		body, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		changes, err := decodeMultiPeerChanges(ar, body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Mode: mode, Changes: changes}, nil

	case ModeShallowSnapshot:
		frontiers, err := readFrontiers(r)
		if err != nil {
			return nil, err
		}
		vv, err := readVV(r)
		if err != nil {
			return nil, err
		}
		lamport, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		tailBody, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		tail, err := decodeMultiPeerChanges(ar, tailBody)
		if err != nil {
			return nil, err
		}
		baselineBody, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		baseline, err := decodeOneChange(ar, baselineBody)
		if err != nil {
			return nil, err
		}
		accelBody, err := r.bytesField()
		if err != nil {
			return nil, err
		}
		accel, err := decodeOneChange(ar, accelBody)
		if err != nil {
			return nil, err
		}
		return &Decoded{
			Mode:             mode,
			Changes:          tail,
			ShallowFrontiers: frontiers,
			ShallowVV:        vv,
			ShallowLamport:   id.Lamport(lamport),
			ShallowRoot:      baseline,
			Accelerator:      accel,
		}, nil

	default:
		return nil, ErrUnsupportedVersion
	}
}

// EncodeUpdates produces an Updates-mode blob: every change needed to bring
// a peer at from up to the log's current version.
func EncodeUpdates(ar *arena.Arena, log *oplog.Log, from id.VersionVector) []byte {
	w := &frameWriter{}
	w.header(ModeUpdates)
	w.bytesField(encodeMultiPeerChanges(ar, log.ChangesFrom(from)))
	return w.buf.Bytes()
}

// EncodeSnapshot produces a Snapshot-mode blob: the log's entire resident
// history. State is always reconstructed by
// replaying this history on import rather than carried redundantly, which
// DESIGN.md records as the chosen non-goal simplification (no dedicated
// per-container binary codec).
func EncodeSnapshot(ar *arena.Arena, log *oplog.Log) []byte {
	w := &frameWriter{}
	w.header(ModeSnapshot)
	w.bytesField(encodeMultiPeerChanges(ar, log.AllChanges()))
	return w.buf.Bytes()
}

func lamportAtFrontiers(log *oplog.Log, f id.Frontiers) id.Lamport {
	var max id.Lamport
	for _, fid := range f {
		c, ok := log.GetChange(fid)
		if !ok {
			continue
		}
		l := c.Lamport + id.Lamport(fid.Counter-c.Start) + 1
		if l > max {
			max = l
		}
	}
	return max
}

// EncodeShallowSnapshot produces a ShallowSnapshot-mode blob cut at f:
// cutReg materialises container state exactly at f (e.g. from
// diff.Tracker.ReplayTo(f)), and currentReg optionally materialises the
// live head so a large tail can carry an accelerator blob (nil skips it).
func EncodeShallowSnapshot(ar *arena.Arena, log *oplog.Log, f id.Frontiers, cutReg, currentReg *state.Registry) ([]byte, error) {
	vv := log.FrontiersToVV(f)
	lamport := lamportAtFrontiers(log, f)
	tail := log.ChangesFrom(vv)

	baseline, scratchAr, err := seedState(ar, cutReg)
	if err != nil {
		return nil, err
	}

	var accelBytes []byte
	if currentReg != nil && tailOpCount(tail) > AcceleratorThreshold {
		accel, accelAr, err := seedState(ar, currentReg)
		if err != nil {
			return nil, err
		}
		accelBytes = encodeOneChange(accelAr, accel)
	}

	w := &frameWriter{}
	w.header(ModeShallowSnapshot)
	writeFrontiers(w, f)
	writeVV(w, vv)
	w.uvarint(uint64(lamport))
	w.bytesField(encodeMultiPeerChanges(ar, tail))
	w.bytesField(encodeOneChange(scratchAr, baseline))
	w.bytesField(accelBytes)
	return w.buf.Bytes(), nil
}

func tailOpCount(changes []*oplog.Change) int {
	n := 0
	for _, c := range changes {
		n += c.Len()
	}
	return n
}
