package campaign

import "time"

// EventKind enumerates the attempt/outcome log entries produced by a run.
type EventKind string

const (
	// EventAttempt is written after a destination resolved, before the send.
	EventAttempt EventKind = "attempt"
	// EventSent is a first-try delivery success.
	EventSent EventKind = "sent"
	// EventSentAfterFloodWait is a delivery success on the retry that follows
	// a flood-wait pause.
	EventSentAfterFloodWait EventKind = "sent_after_fw"
	// EventFloodWait records a provider throttle signal and its wait time.
	EventFloodWait EventKind = "floodwait"
	// EventSkipped marks a destination that was filtered or unreachable.
	EventSkipped EventKind = "skipped"
	// EventFailed is a terminal per-destination failure, with a classified reason.
	EventFailed EventKind = "failed"
	// EventClientConnect / EventClientConnectFail record sender pool setup.
	EventClientConnect     EventKind = "client_connect"
	EventClientConnectFail EventKind = "client_connect_fail"
	// EventDiscoverFail records a failed dialog discovery in "all" mode.
	EventDiscoverFail EventKind = "discover_fail"
)

// EventRecord is one append-only telemetry row. Records are never updated or
// deleted by the dispatch core.
type EventRecord struct {
	Owner      int64     `json:"owner"`
	CampaignID string    `json:"campaign_id"`
	At         time.Time `json:"at"`
	Kind       EventKind `json:"kind"`

	ChatID    int64    `json:"chat_id,omitempty"`
	ChatType  ChatType `json:"chat_type,omitempty"`
	ChatTitle string   `json:"chat_title,omitempty"`

	// Reason carries a skip reason or a classified failure reason; Detail
	// carries the raw error text for operator debugging.
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`

	// WaitSeconds is set on floodwait records.
	WaitSeconds int `json:"wait_seconds,omitempty"`

	// Sender labels which account produced the record (connect events and
	// per-destination outcomes).
	Sender string `json:"sender,omitempty"`
}
