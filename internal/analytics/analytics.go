// Package analytics aggregates the append-only campaign event log into the
// operator-facing views: per-kind totals, unique chats reached, top failure
// and skip reasons, and recent activity.
package analytics

import (
	"context"

	"adcast/internal/campaign"
	"adcast/internal/storage"
)

// Source is the slice of the store the aggregator reads from.
type Source interface {
	EventCounts(ctx context.Context, owner int64, campaignID string) (map[campaign.EventKind]int, error)
	DistinctReached(ctx context.Context, owner int64, campaignID string) (int, error)
	TopReasons(ctx context.Context, owner int64, campaignID string, kind campaign.EventKind, n int) ([]storage.ReasonCount, error)
	RecentEvents(ctx context.Context, owner int64, campaignID string, n int) ([]campaign.EventRecord, error)
	TypeActivity(ctx context.Context, owner int64, campaignID string) (map[campaign.ChatType]int, error)
}

// Summary is one campaign's aggregated outcome picture. Sent includes
// deliveries that succeeded after a flood-wait retry.
type Summary struct {
	CampaignID string

	Attempts   int
	Sent       int
	Skipped    int
	Failed     int
	FloodWaits int
	Reached    int

	TopFailReasons []storage.ReasonCount
	TopSkipReasons []storage.ReasonCount
}

// Activity is the targets view: per-chat-type attempt counts and the most
// recent records, newest first.
type Activity struct {
	ByType map[campaign.ChatType]int
	Recent []campaign.EventRecord
}

type Aggregator struct {
	src Source
}

func New(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// Summarize builds the summary for one owner's campaign. An empty campaignID
// aggregates across all of the owner's runs.
func (a *Aggregator) Summarize(ctx context.Context, owner int64, campaignID string, topN int) (*Summary, error) {
	counts, err := a.src.EventCounts(ctx, owner, campaignID)
	if err != nil {
		return nil, err
	}
	reached, err := a.src.DistinctReached(ctx, owner, campaignID)
	if err != nil {
		return nil, err
	}
	fails, err := a.src.TopReasons(ctx, owner, campaignID, campaign.EventFailed, topN)
	if err != nil {
		return nil, err
	}
	skips, err := a.src.TopReasons(ctx, owner, campaignID, campaign.EventSkipped, topN)
	if err != nil {
		return nil, err
	}
	return &Summary{
		CampaignID:     campaignID,
		Attempts:       counts[campaign.EventAttempt],
		Sent:           counts[campaign.EventSent] + counts[campaign.EventSentAfterFloodWait],
		Skipped:        counts[campaign.EventSkipped],
		Failed:         counts[campaign.EventFailed],
		FloodWaits:     counts[campaign.EventFloodWait],
		Reached:        reached,
		TopFailReasons: fails,
		TopSkipReasons: skips,
	}, nil
}

func (a *Aggregator) RecentActivity(ctx context.Context, owner int64, campaignID string, n int) (*Activity, error) {
	byType, err := a.src.TypeActivity(ctx, owner, campaignID)
	if err != nil {
		return nil, err
	}
	recent, err := a.src.RecentEvents(ctx, owner, campaignID, n)
	if err != nil {
		return nil, err
	}
	return &Activity{ByType: byType, Recent: recent}, nil
}
