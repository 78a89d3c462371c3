package kvstore

import (
	"bytes"
	"fmt"
	"testing"
)

func TestStoreGetSetDelete(t *testing.T) {
	s := New(nil)
	s.Set([]byte("a"), []byte("1"))
	s.Set([]byte("b"), []byte("2"))

	if v, ok := s.Get([]byte("a")); !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true", v, ok)
	}

	s.Delete([]byte("a"))
	if _, ok := s.Get([]byte("a")); ok {
		t.Fatalf("Get(a) after Delete: want miss")
	}
	if v, ok := s.Get([]byte("b")); !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v; want 2, true", v, ok)
	}
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	s := New(NewBlockCache(1 << 20))
	want := map[string]string{}
	for i := 0; i < 500; i++ {
		k := fmt.Sprintf("key-%04d", i)
		v := fmt.Sprintf("value-%d", i)
		s.Set([]byte(k), []byte(v))
		want[k] = v
	}
	s.Delete([]byte("key-0250"))
	delete(want, "key-0250")

	blob := s.ExportAll()
	if len(s.mutable) != 0 {
		t.Fatalf("ExportAll did not clear mutable tree")
	}

	s2 := New(NewBlockCache(1 << 20))
	if err := s2.ImportAll(blob); err != nil {
		t.Fatalf("ImportAll: %v", err)
	}

	for k, v := range want {
		got, ok := s2.Get([]byte(k))
		if !ok || string(got) != v {
			t.Fatalf("Get(%s) = %q, %v; want %q, true", k, got, ok, v)
		}
	}
	if _, ok := s2.Get([]byte("key-0250")); ok {
		t.Fatalf("tombstoned key survived export/import")
	}

	entries := s2.Scan(nil, nil)
	if len(entries) != len(want) {
		t.Fatalf("Scan returned %d entries, want %d", len(entries), len(want))
	}
	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
			t.Fatalf("Scan not sorted at %d: %s >= %s", i, entries[i-1].Key, entries[i].Key)
		}
	}
}

func TestStoreScanRange(t *testing.T) {
	s := New(nil)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		s.Set([]byte(k), []byte(k))
	}
	s.ExportAll()

	got := s.Scan([]byte("b"), []byte("d"))
	if len(got) != 2 || string(got[0].Key) != "b" || string(got[1].Key) != "c" {
		t.Fatalf("Scan(b,d) = %+v, want [b c]", got)
	}
}

func TestStoreMutableWinsOverSSTableOnEqualKey(t *testing.T) {
	s := New(nil)
	s.Set([]byte("k"), []byte("old"))
	s.ExportAll()

	s.Set([]byte("k"), []byte("new"))
	if v, ok := s.Get([]byte("k")); !ok || string(v) != "new" {
		t.Fatalf("Get(k) = %q, %v; want new, true", v, ok)
	}
	entries := s.Scan(nil, nil)
	if len(entries) != 1 || string(entries[0].Value) != "new" {
		t.Fatalf("Scan = %+v, want single new entry", entries)
	}
}

func TestGenerationRingRetainsUntilDropped(t *testing.T) {
	s := New(NewBlockCache(1 << 20))
	s.Set([]byte("a"), []byte("1"))
	s.ExportAll()
	s.Set([]byte("b"), []byte("2"))
	s.ExportAll()

	gens := s.Generations()
	if len(gens) != 2 {
		t.Fatalf("Generations() returned %d, want 2", len(gens))
	}

	if s.DropGeneration(gens[len(gens)-1].id) {
		t.Fatalf("DropGeneration should refuse to drop the latest (readable) generation")
	}
	if !s.DropGeneration(gens[0].id) {
		t.Fatalf("DropGeneration should succeed on a superseded generation")
	}
	if len(s.Generations()) != 1 {
		t.Fatalf("Generations() after Drop = %d, want 1", len(s.Generations()))
	}
}

func TestBlockCacheEvictsUnderBudget(t *testing.T) {
	c := NewBlockCache(10)
	c.Put(1, 0, []Entry{{Key: []byte("a")}}, 6)
	c.Put(1, 1, []Entry{{Key: []byte("b")}}, 6)
	// second Put should have triggered eviction of the first, unreferenced
	// block since 6+6 > capacity 10.
	if _, ok := c.Get(1, 0); ok {
		if _, ok2 := c.Get(1, 1); !ok2 {
			t.Fatalf("expected at least one block evicted under a 10-byte budget")
		}
	}
}

func TestBlockCacheInvalidateTable(t *testing.T) {
	c := NewBlockCache(1 << 20)
	c.Put(7, 0, []Entry{{Key: []byte("x")}}, 1)
	c.InvalidateTable(7)
	if _, ok := c.Get(7, 0); ok {
		t.Fatalf("expected block evicted after InvalidateTable")
	}
}
