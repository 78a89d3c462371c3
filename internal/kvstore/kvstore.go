// Package kvstore implements a sorted byte-addressable map with a
// two-tier layout (an in-memory mutable tree plus an optional immutable
// SSTable), used by the change store to spill the op log to a compressed
// binary format.
//
// The store provides no durability of its own; "flush" means "materialise
// the mutable tree into the exportable SSTable form" (ExportAll).
package kvstore

import (
	"bytes"
	"sort"
	"sync"
)

// tombstone (an empty value), when stored for a key, it signals the key is
// deleted without removing it from the mutable tree's key order.
var tombstone = []byte{}

// Store is a sorted map from byte keys to byte values with a mutable tree
// fronting an optional immutable SSTable. Reads consult the mutable tree
// first, preferring it on key equality when merging with the SSTable.
type Store struct {
	mu      sync.RWMutex
	mutable map[string][]byte
	keys    []string // sorted keys of mutable, rebuilt lazily
	dirty   bool

	table *SSTable // the latest (readable) generation; nil until ExportAll/ImportAll
	gens  *generationRing

	cache *BlockCache
}

// New constructs an empty store. cache may be nil to disable block caching
// (tests and small documents).
func New(cache *BlockCache) *Store {
	return &Store{mutable: make(map[string][]byte), cache: cache, gens: newGenerationRing()}
}

// Generations exposes every retained SSTable generation (oldest first), for
// the shallow-snapshot GC pass to inspect and eventually Drop.
func (s *Store) Generations() []*generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens.Generations()
}

// DropGeneration removes a retained generation once its caller has proven no
// reachable version still references it. Dropping the latest (readable)
// generation is refused, since Get/Scan always read from it.
func (s *Store) DropGeneration(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if latest := s.gens.Latest(); latest != nil && latest.id == id {
		return false
	}
	return s.gens.Drop(id)
}

// Get returns the value for key and whether it is present (and not a
// tombstone). The mutable tree is consulted first.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.mutable[string(key)]; ok {
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	}
	if s.table != nil {
		return s.table.Get(s.cache, key)
	}
	return nil, false
}

// Set inserts or overwrites key in the mutable tree.
func (s *Store) Set(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	if _, existed := s.mutable[k]; !existed {
		s.dirty = true
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.mutable[k] = v
}

// Delete marks key as a tombstone in the mutable tree.
func (s *Store) Delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutable[string(key)] = tombstone
	s.dirty = true
}

func (s *Store) sortedMutableKeys() []string {
	if !s.dirty && s.keys != nil {
		return s.keys
	}
	keys := make([]string, 0, len(s.mutable))
	for k := range s.mutable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.keys = keys
	s.dirty = false
	return keys
}

// Entry is one live key/value pair returned by Scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Scan returns every live entry in [start,end) (end==nil means unbounded),
// merging the mutable tree and the SSTable and honouring tombstones,
// preferring the mutable tree on key equality.
func (s *Store) Scan(start, end []byte) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mergeLocked(start, end)
}

// mergeLocked performs the mutable/SSTable merge. Caller must hold s.mu
// (read or write).
func (s *Store) mergeLocked(start, end []byte) []Entry {
	mutKeys := s.sortedMutableKeys()
	var sstEntries []Entry
	if s.table != nil {
		sstEntries = s.table.Scan(s.cache, start, end)
	}

	out := make([]Entry, 0, len(mutKeys)+len(sstEntries))
	mi := sort.SearchStrings(mutKeys, string(start))
	si := 0
	for mi < len(mutKeys) || si < len(sstEntries) {
		var mutKey string
		mutValid := mi < len(mutKeys)
		if mutValid {
			mutKey = mutKeys[mi]
			if end != nil && mutKey >= string(end) {
				mutValid = false
			}
		}
		var sstKey []byte
		sstValid := si < len(sstEntries)
		if sstValid {
			sstKey = sstEntries[si].Key
			if end != nil && bytes.Compare(sstKey, end) >= 0 {
				sstValid = false
			}
		}
		switch {
		case !mutValid && !sstValid:
			mi, si = len(mutKeys), len(sstEntries)
		case mutValid && (!sstValid || mutKey < string(sstKey)):
			if v := s.mutable[mutKey]; len(v) > 0 {
				out = append(out, Entry{Key: []byte(mutKey), Value: v})
			}
			mi++
		case sstValid && (!mutValid || string(sstKey) < mutKey):
			out = append(out, sstEntries[si])
			si++
		default: // equal keys: mutable wins
			if v := s.mutable[mutKey]; len(v) > 0 {
				out = append(out, Entry{Key: []byte(mutKey), Value: v})
			}
			mi++
			si++
		}
	}
	return out
}

// ExportAll rebuilds a single SSTable covering all live entries (merging any
// existing SSTable with the mutable tree) and clears the mutable tree,
// exactly matching ExportAll contract.
func (s *Store) ExportAll() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.mergeLocked(nil, nil)
	table := BuildSSTable(all)
	if s.table != nil {
		s.cache.InvalidateTable(s.table.id)
	}
	s.gens.Rotate(table)
	s.table = table
	s.mutable = make(map[string][]byte)
	s.keys = nil
	s.dirty = false
	return table.Bytes()
}

// ImportAll replaces the store's SSTable with buf and clears the mutable
// tree, matching ImportAll contract.
func (s *Store) ImportAll(buf []byte) error {
	table, err := ParseSSTable(buf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil {
		s.cache.InvalidateTable(s.table.id)
	}
	s.gens.Rotate(table)
	s.table = table
	s.mutable = make(map[string][]byte)
	s.keys = nil
	s.dirty = false
	return nil
}
