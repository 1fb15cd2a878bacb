package types

import "testing"

func TestMemberStore_FirstUpdateInserts(t *testing.T) {
	s := NewMemberStore()
	m := s.Update(Member{Id: 1, LastModified: 10, State: StateValid})
	if m.Id != 1 || m.LastModified != 10 {
		t.Fatalf("unexpected stored member %+v", m)
	}
	if s.Size() != 1 {
		t.Fatalf("size = %d, want 1", s.Size())
	}
}

func TestMemberStore_StaleUpdateOnlyUnionsAware(t *testing.T) {
	s := NewMemberStore()
	s.Update(Member{Id: 1, LastModified: 10, Key: "k1", State: StateValid, AwareIds: NewIdSet(1)})
	got := s.Update(Member{Id: 1, LastModified: 5, Key: "stale", State: StateDeleted, AwareIds: NewIdSet(2)})

	if got.LastModified != 10 || got.Key != "k1" || got.State != StateValid {
		t.Fatalf("stale update must not overwrite scalar fields, got %+v", got)
	}
	if !got.AwareIds.Equals(NewIdSet(1, 2)) {
		t.Fatalf("aware ids = %v, want {1,2}", got.AwareIds.ToSlice())
	}
}

func TestMemberStore_TieUnionsAwareAndKeyChainOnly(t *testing.T) {
	s := NewMemberStore()
	s.Update(Member{Id: 1, LastModified: 10, Key: "k1", KeyChain: []string{"a"}, State: StateValid, AwareIds: NewIdSet(1)})
	got := s.Update(Member{Id: 1, LastModified: 10, Key: "different", KeyChain: []string{"b"}, State: StateDeleted, AwareIds: NewIdSet(2)})

	if got.Key != "k1" || got.State != StateValid {
		t.Fatalf("tied update must keep original scalar fields, got %+v", got)
	}
	if !got.AwareIds.Equals(NewIdSet(1, 2)) {
		t.Fatalf("aware ids = %v, want {1,2}", got.AwareIds.ToSlice())
	}
	if !got.HasKeyInChain("a") || !got.HasKeyInChain("b") {
		t.Fatalf("keyChain should union both sides, got %v", got.KeyChain)
	}
}

func TestMemberStore_NewerUpdateReplacesAndUnionsAware(t *testing.T) {
	s := NewMemberStore()
	s.Update(Member{Id: 1, LastModified: 10, Key: "k1", State: StateValid, AwareIds: NewIdSet(1)})
	got := s.Update(Member{Id: 1, LastModified: 20, Key: "k2", State: StateDown, AwareIds: NewIdSet(2)})

	if got.LastModified != 20 || got.Key != "k2" || got.State != StateDown {
		t.Fatalf("newer update should replace scalar fields, got %+v", got)
	}
	if !got.AwareIds.Equals(NewIdSet(1, 2)) {
		t.Fatalf("aware ids = %v, want {1,2}", got.AwareIds.ToSlice())
	}
	if !got.HasKeyInChain("k1") {
		t.Fatalf("differing key on replace should extend keyChain with stored key, got %v", got.KeyChain)
	}
}

func TestMemberStore_SnapshotPartitionsByState(t *testing.T) {
	s := NewMemberStore()
	s.Update(Member{Id: 1, State: StateValid})
	s.Update(Member{Id: 2, State: StateDeleted})
	s.Update(Member{Id: 3, State: StateDown})
	s.Update(Member{Id: 4, State: StateInvalid})

	snap := s.Snapshot()
	if len(snap.All) != 4 {
		t.Fatalf("All = %d, want 4", len(snap.All))
	}
	if len(snap.Valid) != 1 {
		t.Fatalf("Valid = %d, want 1", len(snap.Valid))
	}
	if len(snap.Alive) != 2 {
		t.Fatalf("Alive = %d, want 2", len(snap.Alive))
	}
	if !snap.AliveIds().Equals(NewIdSet(1, 2)) {
		t.Fatalf("AliveIds = %v, want {1,2}", snap.AliveIds().ToSlice())
	}
}

func TestMemberStore_ClusterVersionAdvancesOnUpdate(t *testing.T) {
	s := NewMemberStore()
	before := s.ClusterVersion()
	s.Update(Member{Id: 1, State: StateValid})
	if s.ClusterVersion() < before {
		t.Fatalf("cluster version should not go backwards: before=%d after=%d", before, s.ClusterVersion())
	}
}
