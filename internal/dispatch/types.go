package dispatch

import (
	"context"
	"errors"
	"time"

	"adcast/internal/campaign"
	"adcast/internal/transport"
)

var (
	// ErrNoAccounts is returned when no sender transport could connect.
	// The campaign status is left untouched in that case.
	ErrNoAccounts = errors.New("dispatch: no connected accounts")
)

// Sender pairs an account with its messaging transport.
type Sender struct {
	Account   campaign.Account
	Transport transport.Transport
}

// StatusStore is the slice of campaign persistence the dispatcher needs:
// re-reading the status at target boundaries and writing the final state.
type StatusStore interface {
	CampaignStatus(ctx context.Context, id string) (campaign.Status, error)
	SetCampaignStatus(ctx context.Context, id string, st campaign.Status) error
}

// EventSink receives append-only telemetry records. Appends happen
// concurrently from every sender loop; implementations must tolerate that.
type EventSink interface {
	AppendEvent(ctx context.Context, rec campaign.EventRecord) error
}

// Config tunes a Dispatcher. The zero value is usable.
type Config struct {
	// WarmCacheLimit caps the dialog enumeration used to warm the peer
	// cache between resolution passes. Default 1000.
	WarmCacheLimit int
	// DiscoverLimit caps dialog discovery in "all" mode. 0 means no cap.
	DiscoverLimit int
}

func (c Config) withDefaults() Config {
	if c.WarmCacheLimit <= 0 {
		c.WarmCacheLimit = 1000
	}
	return c
}

// RunReport summarizes one finished run for the caller.
type RunReport struct {
	CampaignID string
	Senders    int
	Targets    int

	Sent      int
	Failed    int
	Skipped   int
	FloodWait int

	Started  time.Time
	Duration time.Duration
}

// skipError marks a destination as filtered or unreachable. It is a non-error
// outcome: the loop records it and continues.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "skip: " + e.reason }

func skipReason(err error) (string, bool) {
	var s *skipError
	if errors.As(err, &s) {
		return s.reason, true
	}
	return "", false
}
