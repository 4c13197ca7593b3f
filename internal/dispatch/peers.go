package dispatch

import (
	"context"
	"strconv"
	"strings"

	"adcast/internal/campaign"
	"adcast/internal/transport"
	"adcast/pkg/logx"
)

const botAPIChannelOffset = int64(1_000_000_000_000)

// candidateIDs expands one abstract destination id into the ordered list of
// numeric encodings under which the same logical chat may be addressable.
// The provider exposes different encodings depending on how a chat was
// observed (bot-style "-100…" ids, legacy negative group ids, bare ids).
func candidateIDs(id int64) []int64 {
	out := []int64{id}
	s := strconv.FormatInt(id, 10)
	if strings.HasPrefix(s, "-100") && len(s) > 4 {
		if alt, err := strconv.ParseInt(s[4:], 10, 64); err == nil {
			out = append(out, alt, -alt)
		}
		return out
	}
	abs := id
	if abs < 0 {
		abs = -abs
	}
	if abs < botAPIChannelOffset {
		out = append(out, -botAPIChannelOffset-abs, -abs, abs)
	}
	return out
}

// resolvePeer turns a destination id into a concrete, type-tagged chat
// descriptor.
//
// It probes each candidate encoding with DescribeChat; the first success
// wins. If the first pass fails entirely, one bulk dialog enumeration warms
// the provider's peer cache and the probe runs exactly once more. Still
// unresolved destinations and destinations whose chat type is filtered out
// come back as skip outcomes, never hard errors.
func (d *Dispatcher) resolvePeer(ctx context.Context, t transport.Transport, spec *campaign.Spec, id int64) (transport.ChatInfo, error) {
	candidates := candidateIDs(id)

	var info transport.ChatInfo
	resolved := false
	for pass := 1; pass <= 2; pass++ {
		for _, cand := range candidates {
			if err := ctx.Err(); err != nil {
				return transport.ChatInfo{}, err
			}
			ci, err := t.DescribeChat(ctx, cand)
			if err == nil {
				info = ci
				resolved = true
				break
			}
			d.log.Trace("peer probe failed", logx.Int64("candidate", cand), logx.Err(err))
		}
		if resolved || pass == 2 {
			break
		}
		// Cache-cold peer: enumerate dialogs once so the provider session
		// learns the access hashes, then retry the same candidates.
		if _, err := t.EnumerateChats(ctx, d.cfg.WarmCacheLimit); err != nil {
			d.log.Debug("peer cache warm-up failed", logx.Int64("chat_id", id), logx.Err(err))
		}
	}

	if !resolved {
		return transport.ChatInfo{}, &skipError{reason: "peer resolution failed"}
	}
	if !spec.TypeAllowed(info.Type) {
		return transport.ChatInfo{}, &skipError{reason: "type_disabled:" + string(info.Type)}
	}
	return info, nil
}
