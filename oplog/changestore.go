package oplog

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/kvstore"
)

// blockOpsTarget is the target size for a change-store block: ~1024
// consecutive ops by one peer.
const blockOpsTarget = 1024

func blockKey(peer id.Peer, firstCounter id.Counter) []byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(peer))
	binary.BigEndian.PutUint32(b[8:12], uint32(firstCounter))
	return b[:]
}

func peerKeyRange(peer id.Peer) (start, end []byte) {
	var s, e [8]byte
	binary.BigEndian.PutUint64(s[:], uint64(peer))
	binary.BigEndian.PutUint64(e[:], uint64(peer)+1)
	return s[:], e[:]
}

// ChangeStore partitions the op log into compressed binary blocks keyed by
// (peer, first-counter), spilling them into the block key-value store.
// Concurrent hydration of the same cold block is deduplicated through a
// singleflight.Group.
type ChangeStore struct {
	kv     *kvstore.Store
	hydrate singleflight.Group
}

// NewChangeStore wraps kv as a change store.
func NewChangeStore(kv *kvstore.Store) *ChangeStore {
	return &ChangeStore{kv: kv}
}

// FlushPeerChanges encodes changes (assumed contiguous, all from one peer)
// into one or more blocks of at most blockOpsTarget ops each and stores
// them in the block key-value store.
func (s *ChangeStore) FlushPeerChanges(ar *arena.Arena, peer id.Peer, changes []*Change) error {
	var group []*Change
	groupOps := 0
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		buf := EncodeChanges(ar, group)
		s.kv.Set(blockKey(peer, group[0].Start), buf)
		group = nil
		groupOps = 0
		return nil
	}
	for _, c := range changes {
		if groupOps > 0 && groupOps+c.Len() > blockOpsTarget {
			if err := flush(); err != nil {
				return err
			}
		}
		group = append(group, c)
		groupOps += c.Len()
	}
	return flush()
}

// HydrateCovering loads and decodes whichever block (if any) covers
// target's counter for target's peer, returning its changes. A miss (no
// block covers target) returns a nil slice and nil error.
func (s *ChangeStore) HydrateCovering(ar *arena.Arena, target id.ID) ([]*Change, error) {
	start, end := peerKeyRange(target.Peer)
	entries := s.kv.Scan(start, end)

	var covering *kvstore.Entry
	for i := range entries {
		firstCounter := id.Counter(binary.BigEndian.Uint32(entries[i].Key[8:12]))
		if firstCounter > target.Counter {
			break
		}
		covering = &entries[i]
	}
	if covering == nil {
		return nil, nil
	}

	key := string(covering.Key)
	v, err, _ := s.hydrate.Do(key, func() (any, error) {
		return DecodeChanges(ar, target.Peer, covering.Value)
	})
	if err != nil {
		return nil, fmt.Errorf("oplog: hydrate block %x: %w", covering.Key, err)
	}
	changes := v.([]*Change)
	for _, c := range changes {
		if c.ContainsCounter(target.Counter) {
			return changes, nil
		}
	}
	return nil, nil
}
