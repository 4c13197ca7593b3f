package transport

import (
	"context"

	"adcast/internal/campaign"
)

// ChatInfo is a resolved, type-tagged chat descriptor.
type ChatInfo struct {
	ID    int64
	Type  campaign.ChatType
	Title string
}

// Transport is the opaque messaging capability one sender account is bound to.
//
// Implementations own the wire protocol; the dispatch core only sees these
// operations and the typed errors in this package. All blocking operations
// take a context.
type Transport interface {
	// Connect establishes (or re-establishes) the provider session.
	Connect(ctx context.Context) error
	// Connected reports whether the session is currently live.
	Connected() bool
	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect() error

	// DescribeChat resolves one concrete chat id. It fails with a provider
	// error (typically ErrPeerInvalid) on unknown or unreachable ids.
	DescribeChat(ctx context.Context, id int64) (ChatInfo, error)

	// EnumerateChats lists chats visible to this account, newest first.
	// limit <= 0 means no cap. Implementations that cannot enumerate
	// (bot-token sessions) return ErrNotSupported.
	EnumerateChats(ctx context.Context, limit int) ([]ChatInfo, error)

	// Send delivers the payload to a resolved chat id. Provider-side
	// throttling surfaces as a *FloodWaitError.
	Send(ctx context.Context, msg campaign.Message, chatID int64) error
}
