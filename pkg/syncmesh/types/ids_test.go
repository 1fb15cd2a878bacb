package types

import "testing"

func TestIdSet_AddIsSortedAndDeduplicated(t *testing.T) {
	s := NewIdSet(5, 1, 3, 1)
	got := s.ToSlice()
	want := []NodeId{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIdSet_UnionDoesNotMutateReceivers(t *testing.T) {
	a := NewIdSet(1, 2)
	b := NewIdSet(2, 3)
	u := a.Union(b)

	if !u.Equals(NewIdSet(1, 2, 3)) {
		t.Fatalf("union = %v, want {1,2,3}", u.ToSlice())
	}
	if a.Size() != 2 || b.Size() != 2 {
		t.Fatalf("union mutated a receiver: a=%v b=%v", a.ToSlice(), b.ToSlice())
	}
}

func TestIdSet_SubtractAndIntersect(t *testing.T) {
	a := NewIdSet(1, 2, 3)
	b := NewIdSet(2, 3, 4)

	if got := a.Subtract(b); !got.Equals(NewIdSet(1)) {
		t.Fatalf("subtract = %v, want {1}", got.ToSlice())
	}
	if got := a.Intersect(b); !got.Equals(NewIdSet(2, 3)) {
		t.Fatalf("intersect = %v, want {2,3}", got.ToSlice())
	}
}

func TestIdSet_HashKeyIsOrderIndependent(t *testing.T) {
	a := NewIdSet(3, 1, 2)
	b := NewIdSet(1, 2, 3)
	if a.HashKey() != b.HashKey() {
		t.Fatalf("hash keys differ for equal sets: %q vs %q", a.HashKey(), b.HashKey())
	}
}

func TestIdSet_RemoveAndContains(t *testing.T) {
	s := NewIdSet(1, 2, 3)
	s.Remove(2)
	if s.Contains(2) {
		t.Fatalf("expected 2 removed, still present in %v", s.ToSlice())
	}
	if !s.Contains(1) || !s.Contains(3) {
		t.Fatalf("unexpected removal, set is %v", s.ToSlice())
	}
}
