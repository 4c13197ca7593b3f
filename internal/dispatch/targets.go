package dispatch

import (
	"context"

	"adcast/internal/campaign"
	"adcast/pkg/logx"
)

// resolveTargets builds the ordered destination sequence for one run.
//
// Include mode keeps the include list order and drops excluded ids. All mode
// enumerates the dialogs of the designated sender (the first that connected)
// exactly once per run and keeps ids passing both the exclude filter and the
// allowed-types filter. Discovery failure is absorbed: it is logged as a
// discover_fail event and the run proceeds with zero targets.
func (d *Dispatcher) resolveTargets(ctx context.Context, spec *campaign.Spec, discoverer Sender) []int64 {
	exclude := spec.ExcludeSet()

	if spec.Mode != campaign.ModeAll {
		out := make([]int64, 0, len(spec.Include))
		for _, id := range spec.Include {
			if _, skip := exclude[id]; skip {
				continue
			}
			out = append(out, id)
		}
		return out
	}

	chats, err := discoverer.Transport.EnumerateChats(ctx, d.cfg.DiscoverLimit)
	if err != nil {
		d.log.Warn("dialog discovery failed",
			logx.String("campaign", spec.ID), logx.String("sender", discoverer.Account.Label), logx.Err(err))
		d.append(ctx, campaign.EventRecord{
			Owner:      spec.Owner,
			CampaignID: spec.ID,
			Kind:       campaign.EventDiscoverFail,
			Detail:     err.Error(),
			Sender:     discoverer.Account.Label,
		})
		return nil
	}

	out := make([]int64, 0, len(chats))
	for _, c := range chats {
		if _, skip := exclude[c.ID]; skip {
			continue
		}
		if !spec.TypeAllowed(c.Type) {
			continue
		}
		out = append(out, c.ID)
	}
	d.log.Info("dialog discovery finished",
		logx.String("campaign", spec.ID), logx.Int("dialogs", len(chats)), logx.Int("targets", len(out)))
	return out
}

// partition splits targets across n senders by index modulo n. Relative order
// is preserved within each partition and sizes differ by at most one.
func partition(targets []int64, n int) [][]int64 {
	parts := make([][]int64, n)
	for i, t := range targets {
		parts[i%n] = append(parts[i%n], t)
	}
	return parts
}
