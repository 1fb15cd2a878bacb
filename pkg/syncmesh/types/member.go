package types

import "fmt"

// MemberState is the validity/liveness state of a cluster member.
type MemberState uint8

const (
	// StateValid members participate in dispatch target selection.
	StateValid MemberState = iota
	// StateInvalid members are unknown/rejected; sessions from them are closed.
	StateInvalid
	// StateDeleted members are still broadcast during membership sync but
	// excluded from routing.
	StateDeleted
	// StateDown members are skipped during dispatch but not broadcast.
	StateDown
)

func (s MemberState) String() string {
	switch s {
	case StateValid:
		return "VALID"
	case StateInvalid:
		return "INVALID"
	case StateDeleted:
		return "DELETED"
	case StateDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Address is a network address a peer can be reached at.
type Address struct {
	IP   string
	Port uint32
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// Member is a cluster participant's full record, as held by MemberStore.
type Member struct {
	Id            NodeId
	SyncAddresses []Address
	AuthByKey     bool
	Key           string
	KeyChain      []string
	LastModified  int64
	State         MemberState
	AwareIds      *IdSet
	Scheduled     bool
}

// Clone returns a deep-enough copy of m so callers can mutate the result
// without affecting the stored record.
func (m Member) Clone() Member {
	addrs := make([]Address, len(m.SyncAddresses))
	copy(addrs, m.SyncAddresses)
	chain := make([]string, len(m.KeyChain))
	copy(chain, m.KeyChain)
	var aware *IdSet
	if m.AwareIds != nil {
		aware = m.AwareIds.Clone()
	} else {
		aware = NewIdSet()
	}
	return Member{
		Id:            m.Id,
		SyncAddresses: addrs,
		AuthByKey:     m.AuthByKey,
		Key:           m.Key,
		KeyChain:      chain,
		LastModified:  m.LastModified,
		State:         m.State,
		AwareIds:      aware,
		Scheduled:     m.Scheduled,
	}
}

// HasKeyInChain reports whether key appears anywhere in m's keyChain.
func (m Member) HasKeyInChain(key string) bool {
	for _, k := range m.KeyChain {
		if k == key {
			return true
		}
	}
	return false
}
