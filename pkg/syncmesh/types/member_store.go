package types

import (
	"sync"
	"time"
)

// ClusterSnapshot is an immutable point-in-time view over MemberStore,
// partitioned the way DispatchPolicy target selection needs it.
type ClusterSnapshot struct {
	// All holds every known member, regardless of state.
	All map[NodeId]Member
	// Valid holds members with State == StateValid.
	Valid map[NodeId]Member
	// Alive holds members with State == StateValid or StateDeleted,
	// i.e. every member that is not StateInvalid or StateDown.
	Alive map[NodeId]Member
}

// AliveIds returns the ids of the alive partition as an IdSet.
func (c ClusterSnapshot) AliveIds() *IdSet {
	ids := make([]NodeId, 0, len(c.Alive))
	for id := range c.Alive {
		ids = append(ids, id)
	}
	return NewIdSet(ids...)
}

// ValidIds returns the ids of the valid partition as an IdSet. Dispatch
// target selection routes against this set, never AliveIds: a DELETED
// member is still broadcast membership information (spec.md §3 invariant
// (d)) but must not receive further routed publications.
func (c ClusterSnapshot) ValidIds() *IdSet {
	ids := make([]NodeId, 0, len(c.Valid))
	for id := range c.Valid {
		ids = append(ids, id)
	}
	return NewIdSet(ids...)
}

// MemberStore is the in-memory id -> Member mapping. All operations are
// non-suspending (spec.md §5): no I/O, no blocking channel ops under lock.
type MemberStore struct {
	mutex               sync.RWMutex
	members             map[NodeId]Member
	clusterLastModified int64
}

// NewMemberStore builds an empty store.
func NewMemberStore() *MemberStore {
	return &MemberStore{members: make(map[NodeId]Member)}
}

// Get returns the stored member for id, if any.
func (s *MemberStore) Get(id NodeId) (Member, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return Member{}, false
	}
	return m.Clone(), true
}

// Update applies incoming as an update to the stored record for
// incoming.Id, enforcing spec.md §3 invariants (a)-(d):
//
//	(a) lower lastModified than stored is ignored, except awareIds still union
//	(b) equal lastModified unions awareIds
//	(c) differing key on the same id extends the update's keyChain with the
//	    stored key
//	(d) is enforced by callers consuming State, not by Update itself
//
// Returns the resulting stored record.
func (s *MemberStore) Update(incoming Member) Member {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if incoming.AwareIds == nil {
		incoming.AwareIds = NewIdSet()
	}

	stored, exists := s.members[incoming.Id]
	if !exists {
		s.members[incoming.Id] = incoming.Clone()
		s.bumpClusterVersionLocked()
		return s.members[incoming.Id].Clone()
	}

	if stored.Key != "" && incoming.Key != "" && stored.Key != incoming.Key {
		incoming.KeyChain = append(append([]string{}, incoming.KeyChain...), stored.Key)
	}

	switch {
	case incoming.LastModified < stored.LastModified:
		// (a) stale update: keep stored fields, only union the aware set.
		stored.AwareIds = stored.AwareIds.Union(incoming.AwareIds)
		s.members[incoming.Id] = stored
	case incoming.LastModified == stored.LastModified:
		// (b) tie: union aware sets, keep the rest as-is (neither side wins).
		merged := stored
		merged.AwareIds = stored.AwareIds.Union(incoming.AwareIds)
		merged.KeyChain = unionKeyChains(stored.KeyChain, incoming.KeyChain)
		s.members[incoming.Id] = merged
	default:
		// newer: replace scalar fields, union the aware set across old+new.
		merged := incoming.Clone()
		merged.AwareIds = stored.AwareIds.Union(incoming.AwareIds)
		merged.KeyChain = unionKeyChains(stored.KeyChain, incoming.KeyChain)
		s.members[incoming.Id] = merged
	}
	s.bumpClusterVersionLocked()
	return s.members[incoming.Id].Clone()
}

func unionKeyChains(a, b []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(a)+len(b))
	for _, chain := range [][]string{a, b} {
		for _, k := range chain {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

func (s *MemberStore) bumpClusterVersionLocked() {
	s.clusterLastModified = time.Now().UnixNano() / int64(time.Millisecond)
}

// ClusterVersion returns this store's cluster version: the wall-clock time,
// in milliseconds, of its most recent Update.
func (s *MemberStore) ClusterVersion() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.clusterLastModified
}

// Snapshot computes an immutable partitioned view under a brief read lock.
func (s *MemberStore) Snapshot() ClusterSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := ClusterSnapshot{
		All:   make(map[NodeId]Member, len(s.members)),
		Valid: make(map[NodeId]Member),
		Alive: make(map[NodeId]Member),
	}
	for id, m := range s.members {
		c := m.Clone()
		snap.All[id] = c
		if m.State == StateValid {
			snap.Valid[id] = c
		}
		if m.State == StateValid || m.State == StateDeleted {
			snap.Alive[id] = c
		}
	}
	return snap
}

// Each calls fn once per stored member. fn must not call back into the
// store (Each holds the read lock for its duration).
func (s *MemberStore) Each(fn func(Member)) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, m := range s.members {
		fn(m.Clone())
	}
}

// Size returns the number of members known to the store.
func (s *MemberStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.members)
}
