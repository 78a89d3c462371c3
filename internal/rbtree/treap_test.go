package rbtree

import (
	"math/rand"
	"testing"
)

func TestInsertAndGetPreservesOrder(t *testing.T) {
	tr := New[int]()
	tr.Insert(0, 1)
	tr.Insert(1, 3)
	tr.Insert(1, 2)
	if got := tr.Slice(); got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("Slice() = %v, want [1 2 3]", got)
	}
}

func TestDeleteRemovesAtPosition(t *testing.T) {
	tr := New[string]()
	for i, v := range []string{"a", "b", "c", "d"} {
		tr.Insert(i, v)
	}
	tr.Delete(1)
	if got := tr.Slice(); len(got) != 3 || got[0] != "a" || got[1] != "c" || got[2] != "d" {
		t.Fatalf("Slice() after Delete(1) = %v, want [a c d]", got)
	}
}

func TestHandleRankSurvivesUnrelatedMutation(t *testing.T) {
	tr := New[int]()
	tr.Insert(0, 10)
	h := tr.InsertHandle(1, 20)
	tr.Insert(2, 30)

	if rank := tr.Rank(h); rank != 1 {
		t.Fatalf("Rank(h) = %d, want 1", rank)
	}
	tr.Insert(0, -1) // shifts everything right by one.
	if rank := tr.Rank(h); rank != 2 {
		t.Fatalf("Rank(h) after prepend = %d, want 2", rank)
	}
	if got := tr.Value(h); got != 20 {
		t.Fatalf("Value(h) = %d, want 20", got)
	}
}

func TestDeleteHandleRemovesTheRightElement(t *testing.T) {
	tr := New[int]()
	tr.Insert(0, 1)
	h := tr.InsertHandle(1, 2)
	tr.Insert(2, 3)

	tr.DeleteHandle(h)
	if got := tr.Slice(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("Slice() after DeleteHandle = %v, want [1 3]", got)
	}
}

func TestSetValueOverwritesWithoutMovingPosition(t *testing.T) {
	tr := New[int]()
	tr.Insert(0, 1)
	h := tr.InsertHandle(1, 2)
	tr.Set(1, 99)
	if got := tr.Value(h); got != 99 {
		t.Fatalf("Value(h) after Set(1,99) = %d, want 99", got)
	}
	if rank := tr.Rank(h); rank != 1 {
		t.Fatalf("Rank(h) after Set = %d, want 1 (position unchanged)", rank)
	}
}

func TestForEachStopsEarlyWhenFnReturnsFalse(t *testing.T) {
	tr := New[int]()
	for i := 0; i < 5; i++ {
		tr.Insert(i, i)
	}
	var visited []int
	tr.ForEach(func(_ int, v int) bool {
		visited = append(visited, v)
		return v < 2
	})
	if len(visited) != 3 {
		t.Fatalf("visited = %v, want 3 elements (stop after v=2)", visited)
	}
}

func TestRandomInsertDeleteStaysConsistentWithReferenceSlice(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	tr := New[int]()
	var ref []int
	for i := 0; i < 500; i++ {
		if len(ref) == 0 || rnd.Intn(3) != 0 {
			pos := rnd.Intn(len(ref) + 1)
			v := rnd.Int()
			tr.Insert(pos, v)
			ref = append(ref, 0)
			copy(ref[pos+1:], ref[pos:])
			ref[pos] = v
		} else {
			pos := rnd.Intn(len(ref))
			tr.Delete(pos)
			ref = append(ref[:pos], ref[pos+1:]...)
		}
		if tr.Len() != len(ref) {
			t.Fatalf("Len() = %d, want %d after %d ops", tr.Len(), len(ref), i)
		}
	}
	got := tr.Slice()
	if len(got) != len(ref) {
		t.Fatalf("Slice() length = %d, want %d", len(got), len(ref))
	}
	for i := range ref {
		if got[i] != ref[i] {
			t.Fatalf("mismatch at %d: got %d, want %d", i, got[i], ref[i])
		}
	}
}
