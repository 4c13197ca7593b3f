package dispatch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"adcast/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want FailReason
	}{
		{name: "flood wait", err: &transport.FloodWaitError{Wait: 7 * time.Second}, want: ReasonRateLimited},
		{name: "generic rate limit", err: transport.ErrRateLimited, want: ReasonRateLimited},
		{name: "peer initiation required", err: transport.ErrPeerInitRequired, want: ReasonPeerInit},
		{name: "write forbidden", err: transport.ErrWriteForbidden, want: ReasonNotAllowed},
		{name: "blocked", err: transport.ErrBlocked, want: ReasonBlocked},
		{name: "kicked", err: transport.ErrNotMember, want: ReasonNotMember},
		{name: "restricted", err: transport.ErrRestricted, want: ReasonRestricted},
		{name: "deactivated", err: transport.ErrAccountDeactivated, want: ReasonDeactivated},
		{name: "invalid peer", err: transport.ErrPeerInvalid, want: ReasonPeerInvalid},
		{name: "slow mode", err: transport.ErrSlowMode, want: ReasonSlowMode},
		{name: "wrapped sentinel", err: fmt.Errorf("send: %w", transport.ErrBlocked), want: ReasonBlocked},
		{name: "wrapped flood wait", err: fmt.Errorf("send: %w", &transport.FloodWaitError{Wait: time.Second}), want: ReasonRateLimited},
		{name: "anything else", err: errors.New("tcp reset"), want: ReasonUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
