package transport

import (
	"errors"
	"fmt"
	"time"
)

// Typed send/resolve failures. Adapters normalize provider responses into
// these variants so callers can branch with errors.Is/As instead of parsing
// free-form descriptions.
var (
	// ErrNotSupported marks an operation the underlying session kind cannot
	// perform (e.g. dialog enumeration over a bot-token session).
	ErrNotSupported = errors.New("transport: operation not supported")

	// ErrNotConnected is returned by operations invoked on a dead session.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrRateLimited is a provider-side spam/rate verdict without an explicit
	// wait time (distinct from a flood-wait, which carries one).
	ErrRateLimited = errors.New("transport: rate limited")

	// ErrPeerInitRequired means the peer must message this account first.
	ErrPeerInitRequired = errors.New("transport: peer must initiate conversation")

	// ErrWriteForbidden means the account may not post in this chat.
	ErrWriteForbidden = errors.New("transport: writing not allowed")

	// ErrBlocked means the peer blocked this account.
	ErrBlocked = errors.New("transport: blocked by peer")

	// ErrNotMember means the account was removed from (or never joined) the chat.
	ErrNotMember = errors.New("transport: not a chat member")

	// ErrRestricted means the account is muted or restricted in this chat.
	ErrRestricted = errors.New("transport: muted or restricted")

	// ErrAccountDeactivated means the peer account no longer exists.
	ErrAccountDeactivated = errors.New("transport: account deactivated")

	// ErrPeerInvalid means the id does not resolve to any reachable chat.
	ErrPeerInvalid = errors.New("transport: invalid peer")

	// ErrSlowMode means the chat enforces slow mode and the window is closed.
	ErrSlowMode = errors.New("transport: slow mode active")
)

// FloodWaitError is the provider's "retry after N seconds" throttle signal.
// It is transient: the dispatcher waits and retries exactly once.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("transport: flood wait %s", e.Wait)
}

// AsFloodWait extracts the wait time if err carries a flood-wait signal.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}
