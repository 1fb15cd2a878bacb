package types

import "github.com/google/uuid"

// Publication is the capability set an externally-defined payload must
// implement to be addressable by (channel, key, version) and carried
// inside a SyncContent.
type Publication interface {
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
	Key() string
	Channel() string
	Version() int64
}

// MembershipCommand is the MembershipPublication command vocabulary
// (spec.md §3, §4.6).
type MembershipCommand uint8

const (
	TakeThis MembershipCommand = iota
	GiveThis
	DelThis
	Ok
	RcptThis
)

func (c MembershipCommand) String() string {
	switch c {
	case TakeThis:
		return "TAKE_THIS"
	case GiveThis:
		return "GIVE_THIS"
	case DelThis:
		return "DEL_THIS"
	case Ok:
		return "OK"
	case RcptThis:
		return "RCPT_THIS"
	default:
		return "UNKNOWN"
	}
}

// MembershipPublication is the core's own built-in Publication variant,
// used exclusively for SYNC_CLUSTER exchanges.
type MembershipPublication struct {
	Id            NodeId
	AuthByKey     bool
	MemberKey     string
	Ver           int64
	SyncAddresses []Address
	Command       MembershipCommand
}

func (m *MembershipPublication) Key() string     { return "__membership__" }
func (m *MembershipPublication) Channel() string { return "__cluster__" }
func (m *MembershipPublication) Version() int64  { return m.Ver }

func (m *MembershipPublication) Serialize() ([]byte, error) {
	return EncodeMembershipPublication(m), nil
}

func (m *MembershipPublication) Deserialize(data []byte) error {
	decoded, err := DecodeMembershipPublication(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// ToMember builds the Member record this publication describes, as seen
// fresh (no local record to merge against yet).
func (m *MembershipPublication) ToMember(aware *IdSet) Member {
	state := StateValid
	if m.Command == DelThis {
		state = StateDeleted
	}
	return Member{
		Id:            m.Id,
		SyncAddresses: append([]Address{}, m.SyncAddresses...),
		AuthByKey:     m.AuthByKey,
		Key:           m.MemberKey,
		KeyChain:      nil,
		LastModified:  m.Ver,
		State:         state,
		AwareIds:      aware,
	}
}

// MembershipPublicationFromMember encodes a stored Member as an outgoing
// MembershipPublication, for GIVE_THIS / TAKE_THIS / DEL_THIS replies.
func MembershipPublicationFromMember(m Member, command MembershipCommand) *MembershipPublication {
	return &MembershipPublication{
		Id:            m.Id,
		AuthByKey:     m.AuthByKey,
		MemberKey:     m.Key,
		Ver:           m.LastModified,
		SyncAddresses: append([]Address{}, m.SyncAddresses...),
		Command:       command,
	}
}

// UserPublication is the opaque-to-the-core Publication variant that
// application code publishes.
type UserPublication struct {
	Chan  string
	Key_  string
	Ver   int64
	Bytes []byte
}

func (u *UserPublication) Key() string     { return u.Key_ }
func (u *UserPublication) Channel() string { return u.Chan }
func (u *UserPublication) Version() int64  { return u.Ver }

// NewUserPublication builds a UserPublication for channel/version carrying
// payload. An empty key is replaced with a fresh UUID, for callers that only
// care about delivery, not addressing by a stable application key.
func NewUserPublication(channel, key string, version int64, payload []byte) *UserPublication {
	if key == "" {
		key = uuid.NewString()
	}
	return &UserPublication{Chan: channel, Key_: key, Ver: version, Bytes: payload}
}

func (u *UserPublication) Serialize() ([]byte, error) {
	return u.Bytes, nil
}

func (u *UserPublication) Deserialize(data []byte) error {
	u.Bytes = data
	return nil
}
