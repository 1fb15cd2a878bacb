package types

import "errors"

// Sentinel errors, following the teacher's ErrUnsupportedProtocol /
// ErrCommandUnknown package-level var style.
var (
	ErrUnsupportedProtocol  = errors.New("syncmesh: protocol version not supported")
	ErrUnknownPublication   = errors.New("syncmesh: no publication type registered for channel")
	ErrEmptyPublicationList = errors.New("syncmesh: publication list must not be empty")
	ErrNoCallback           = errors.New("syncmesh: no callback registered for sync")
	ErrBuilderIncomplete    = errors.New("syncmesh: cluster builder is missing required fields")
)

// ErrorKind classifies the seven protocol error kinds from spec.md §7.
type ErrorKind uint8

const (
	KindBadKey ErrorKind = iota
	KindBadSequence
	KindBadId
	KindNotValidEdge
	KindBothStartup
	KindFailedRing
	KindTransportError
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadKey:
		return "BadKey"
	case KindBadSequence:
		return "BadSequence"
	case KindBadId:
		return "BadId"
	case KindNotValidEdge:
		return "NotValidEdge"
	case KindBothStartup:
		return "BothStartup"
	case KindFailedRing:
		return "FailedRing"
	case KindTransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// Retryable reports whether the protocol should retry the session after
// this error kind, per spec.md §7's classification.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindBothStartup, KindTransportError, KindBadSequence:
		return true
	default:
		return false
	}
}

// ProtocolError is the single variant-typed error the core returns for
// protocol-level failures, replacing the teacher's checked-exception style
// per the "Exception-for-control-flow" design note.
type ProtocolError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ProtocolError of the given kind, optionally
// wrapping a lower-level cause.
func NewProtocolError(kind ErrorKind, cause error) *ProtocolError {
	return &ProtocolError{Kind: kind, Err: cause}
}
