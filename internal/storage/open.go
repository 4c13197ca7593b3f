package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"adcast/internal/campaign"
	"adcast/pkg/logx"
)

// Store is the persistence API used by the worker, dispatcher, and the
// analytics read side.
type Store interface {
	CreateCampaign(ctx context.Context, spec *campaign.Spec) error
	Campaign(ctx context.Context, id string) (*campaign.Spec, error)
	CampaignStatus(ctx context.Context, id string) (campaign.Status, error)
	SetCampaignStatus(ctx context.Context, id string, st campaign.Status) error

	CreateAccount(ctx context.Context, acc campaign.Account) error
	ActiveAccounts(ctx context.Context, owner int64) ([]campaign.Account, error)
	TouchAccount(ctx context.Context, id string, at time.Time) error

	AppendEvent(ctx context.Context, rec campaign.EventRecord) error

	// Aggregations for the analytics read side.
	EventCounts(ctx context.Context, owner int64, campaignID string) (map[campaign.EventKind]int, error)
	DistinctReached(ctx context.Context, owner int64, campaignID string) (int, error)
	TopReasons(ctx context.Context, owner int64, campaignID string, kind campaign.EventKind, n int) ([]ReasonCount, error)
	RecentEvents(ctx context.Context, owner int64, campaignID string, n int) ([]campaign.EventRecord, error)
	TypeActivity(ctx context.Context, owner int64, campaignID string) (map[campaign.ChatType]int, error)

	// Maintenance hooks for the janitor.
	StaleRunning(ctx context.Context, before time.Time) ([]string, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
