package types

// MessageType is the envelope's on-wire message kind (spec.md §6, 0..9).
type MessageType uint8

const (
	TypeOk MessageType = iota
	TypeCheck
	TypeBadKey
	TypeBadSeq
	TypeBadId
	TypeNotValidEdge
	TypeBothStartup
	TypeFailedRing
	// TypeFullCheck and TypeStartupCheck are reserved codepoints per
	// spec.md §9 Open Questions: defined on the wire, never emitted by a
	// conforming implementation, rejected by peers with TypeBadSeq.
	TypeFullCheck
	TypeStartupCheck
)

func (t MessageType) String() string {
	switch t {
	case TypeOk:
		return "OK"
	case TypeCheck:
		return "CHECK"
	case TypeBadKey:
		return "BAD_KEY"
	case TypeBadSeq:
		return "BAD_SEQ"
	case TypeBadId:
		return "BAD_ID"
	case TypeNotValidEdge:
		return "NOT_VALID_EDGE"
	case TypeBothStartup:
		return "BOTH_STARTUP"
	case TypeFailedRing:
		return "FAILED_RING"
	case TypeFullCheck:
		return "FULL_CHECK"
	case TypeStartupCheck:
		return "STARTUP_CHECK"
	default:
		return "UNKNOWN"
	}
}

// SyncMode selects which handler a SyncEnvelope is routed to.
type SyncMode uint8

const (
	SyncMessage SyncMode = iota
	SyncCluster
)

// DispatchPolicy is one of the nine selection+sequencing+success-rule
// variants (spec.md §4.3), encoded 0..8 on the wire.
type DispatchPolicy uint8

const (
	UnicastPlain DispatchPolicy = iota
	UnicastQuorum
	UnicastBalancePlain
	UnicastBalanceQuorum
	RingPlain
	RingQuorum
	RingBalancePlain
	RingBalanceQuorum
	OneOf
)

func (d DispatchPolicy) String() string {
	switch d {
	case UnicastPlain:
		return "UNICAST"
	case UnicastQuorum:
		return "UNICAST_QUORUM"
	case UnicastBalancePlain:
		return "UNICAST_BALANCE"
	case UnicastBalanceQuorum:
		return "UNICAST_BALANCE_QUORUM"
	case RingPlain:
		return "RING"
	case RingQuorum:
		return "RING_QUORUM"
	case RingBalancePlain:
		return "RING_BALANCE"
	case RingBalanceQuorum:
		return "RING_BALANCE_QUORUM"
	case OneOf:
		return "ONE_OF"
	default:
		return "UNKNOWN"
	}
}

// IsRing reports whether the policy uses ring topology.
func (d DispatchPolicy) IsRing() bool {
	switch d {
	case RingPlain, RingQuorum, RingBalancePlain, RingBalanceQuorum:
		return true
	default:
		return false
	}
}

// IsBalance reports whether the policy applies the balance filter.
func (d DispatchPolicy) IsBalance() bool {
	switch d {
	case UnicastBalancePlain, UnicastBalanceQuorum, RingBalancePlain, RingBalanceQuorum:
		return true
	default:
		return false
	}
}

// IsQuorum reports whether the policy uses the quorum success predicate.
func (d DispatchPolicy) IsQuorum() bool {
	switch d {
	case UnicastQuorum, UnicastBalanceQuorum, RingQuorum, RingBalanceQuorum:
		return true
	default:
		return false
	}
}

// IsOneOf reports whether the policy is the unicast-only one-of variant.
func (d DispatchPolicy) IsOneOf() bool {
	return d == OneOf
}

// SeqMax bounds the depth of back-and-forth per session (spec.md §5).
const SeqMax = 4

// SyncContent is one unit of exchange inside an envelope. Equality/hash is
// on Key only: a single key appears at most once per envelope.
//
// Payload == nil with Version > 0 signals "I already have this version;
// adding myself to the aware-set". Payload == nil with Version == 0 signals
// failure.
type SyncContent struct {
	Key      string
	Version  int64
	AwareIds *IdSet
	Payload  []byte
}

// IsAlreadyHave reports the "I already have this version" signal.
func (c SyncContent) IsAlreadyHave() bool {
	return c.Payload == nil && c.Version > 0
}

// IsFailure reports the failure signal.
func (c SyncContent) IsFailure() bool {
	return c.Payload == nil && c.Version == 0
}

// SyncEnvelope is one on-wire message.
type SyncEnvelope struct {
	SenderId    NodeId
	Type        MessageType
	Sequence    uint8
	InStartup   bool
	SyncMode    SyncMode
	SyncType    DispatchPolicy
	KeyChain    []string
	ExpectedIds *IdSet
	Contents    []SyncContent
}

// SyncResult is the per-key outcome returned to the publishing caller.
type SyncResult struct {
	Successful bool
	Synced     *IdSet
	Failed     *IdSet
}

// NewSyncResult returns an empty, not-yet-evaluated result.
func NewSyncResult() *SyncResult {
	return &SyncResult{Synced: NewIdSet(), Failed: NewIdSet()}
}
