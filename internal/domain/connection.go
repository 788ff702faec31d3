package domain

import (
	"fmt"
	"time"
)

// ConnectionKind enumerates the connection manager states.
type ConnectionKind int

const (
	Disconnected ConnectionKind = iota
	Connecting
	Connected
	Backoff
)

func (k ConnectionKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ConnectionState is the single connection state owned by the connection
// manager. Backoff is only meaningful when Kind is Backoff.
type ConnectionState struct {
	Kind    ConnectionKind
	Backoff time.Duration
}

func (s ConnectionState) String() string {
	if s.Kind == Backoff {
		return fmt.Sprintf("backoff(%s)", s.Backoff)
	}
	return s.Kind.String()
}

// OutcomeKind classifies the result of one upload attempt.
type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	Rejected
	TransientFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case TransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// UploadOutcome is consumed immediately by the retry policy; it is never stored
// beyond the status tracker's "last outcome".
type UploadOutcome struct {
	Kind   OutcomeKind
	Reason string
}
