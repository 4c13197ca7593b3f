package dispatch

import (
	"errors"

	"adcast/internal/transport"
)

// FailReason is the fixed taxonomy analytics groups terminal failures by.
// Classification never influences control flow: a failed event is terminal
// for its destination regardless of the bucket it lands in.
type FailReason string

const (
	ReasonRateLimited FailReason = "rate-limited"
	ReasonPeerInit    FailReason = "requires-peer-initiation"
	ReasonNotAllowed  FailReason = "forbidden/not-allowed"
	ReasonBlocked     FailReason = "forbidden/blocked"
	ReasonNotMember   FailReason = "forbidden/not-member"
	ReasonRestricted  FailReason = "muted/restricted"
	ReasonDeactivated FailReason = "deactivated-account"
	ReasonPeerInvalid FailReason = "peer/invalid"
	ReasonSlowMode    FailReason = "rate/slowmode"
	ReasonUnknown     FailReason = "unknown"
)

// Classify maps a transport error to its analytics bucket. It works on the
// typed variants the transport layer normalizes provider responses into, not
// on error text.
func Classify(err error) FailReason {
	if _, ok := transport.AsFloodWait(err); ok {
		return ReasonRateLimited
	}
	switch {
	case errors.Is(err, transport.ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, transport.ErrPeerInitRequired):
		return ReasonPeerInit
	case errors.Is(err, transport.ErrWriteForbidden):
		return ReasonNotAllowed
	case errors.Is(err, transport.ErrBlocked):
		return ReasonBlocked
	case errors.Is(err, transport.ErrNotMember):
		return ReasonNotMember
	case errors.Is(err, transport.ErrRestricted):
		return ReasonRestricted
	case errors.Is(err, transport.ErrAccountDeactivated):
		return ReasonDeactivated
	case errors.Is(err, transport.ErrPeerInvalid):
		return ReasonPeerInvalid
	case errors.Is(err, transport.ErrSlowMode):
		return ReasonSlowMode
	default:
		return ReasonUnknown
	}
}
