package campaign

import (
	"time"
)

// Status is the lifecycle state of a campaign run.
//
// StatusSleeping is reserved: surrounding tooling recognizes it, but the
// dispatcher never produces it.
type Status string

const (
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusSleeping  Status = "sleeping"
)

// ChatType classifies a destination for allow-list filtering.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// AllChatTypes lists every known chat type in a stable order.
var AllChatTypes = []ChatType{ChatPrivate, ChatGroup, ChatSupergroup, ChatChannel}

// TargetMode selects how the target sequence is produced.
type TargetMode string

const (
	// ModeInclude sends to an explicit id list (minus excludes).
	ModeInclude TargetMode = "include"
	// ModeAll discovers targets from the first connected sender's dialogs.
	ModeAll TargetMode = "all"
)

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaVideo    MediaKind = "video"
)

// Media references an already-uploaded attachment by local path.
type Media struct {
	Kind MediaKind `json:"kind"`
	Path string    `json:"path"`
}

// Button is a single URL button. Buttons without a URL are dropped at send time.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Message is the payload delivered to every target.
type Message struct {
	Text    string     `json:"text,omitempty"`
	Media   *Media     `json:"media,omitempty"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

// Empty reports whether the message carries nothing deliverable.
func (m Message) Empty() bool {
	return m.Text == "" && m.Media == nil
}

// Repeat is cycle configuration carried on a campaign Spec.
//
// It is persisted and surfaced to operators but not consumed by the
// dispatcher; a run always ends after one pass over the targets.
type Repeat struct {
	Enabled     bool `json:"enabled"`
	RestSeconds int  `json:"rest_seconds"`
}

// Spec is a fully-typed campaign definition.
//
// Message and target fields are immutable once the campaign is running; the
// dispatcher only ever writes Status back.
type Spec struct {
	ID    string `json:"id"`
	Owner int64  `json:"owner"`

	Message Message    `json:"message"`
	Mode    TargetMode `json:"mode"`
	Include []int64    `json:"include,omitempty"`
	Exclude []int64    `json:"exclude,omitempty"`

	// Types is the allowed-chat-types set. A nil map means "not configured";
	// Normalize fills in the default of all types enabled.
	Types map[ChatType]bool `json:"types,omitempty"`

	RatePerMin int    `json:"rate_per_min"`
	Status     Status `json:"status"`
	Repeat     Repeat `json:"repeat"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Normalize applies the default-merge rule once at read time.
//
// Missing chat types default to enabled, an unset mode defaults to include,
// and a non-positive rate falls back to defaultRate (and to 1 if that is also
// unusable, keeping the pacing formula well-defined).
func (s *Spec) Normalize(defaultRate int) {
	if s.Mode == "" {
		s.Mode = ModeInclude
	}
	types := make(map[ChatType]bool, len(AllChatTypes))
	for _, t := range AllChatTypes {
		types[t] = true
	}
	for t, v := range s.Types {
		types[t] = v
	}
	s.Types = types
	if s.RatePerMin <= 0 {
		s.RatePerMin = defaultRate
	}
	if s.RatePerMin <= 0 {
		s.RatePerMin = 1
	}
}

// TypeAllowed reports whether t passes the allowed-types filter.
// An unnormalized (nil) map allows everything.
func (s *Spec) TypeAllowed(t ChatType) bool {
	if s.Types == nil {
		return true
	}
	return s.Types[t]
}

// ExcludeSet returns the exclude list as a set.
func (s *Spec) ExcludeSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(s.Exclude))
	for _, id := range s.Exclude {
		set[id] = struct{}{}
	}
	return set
}

// Delay is the mandatory pause between consecutive sends of one sender:
// max(60/ratePerMin, 1) seconds.
func Delay(ratePerMin int) time.Duration {
	if ratePerMin < 1 {
		ratePerMin = 1
	}
	secs := 60.0 / float64(ratePerMin)
	if secs < 1.0 {
		secs = 1.0
	}
	return time.Duration(secs * float64(time.Second))
}

// Account is a linked sender account. The credential is an opaque handle;
// decrypting it and constructing a transport from it happens outside the
// dispatch core.
type Account struct {
	ID         string    `json:"id"`
	Owner      int64     `json:"owner"`
	Label      string    `json:"label"`
	Credential string    `json:"credential"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}
