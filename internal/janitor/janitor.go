// Package janitor sweeps up after crashed runs.
//
// A worker that dies mid-campaign leaves the status stuck at "running"; the
// sweep marks runs older than a threshold as stopped so operators and the
// front-end see the truth. It can also trim old event rows, since the event
// log itself has no retention policy.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"adcast/internal/campaign"
	"adcast/pkg/logx"
)

type Config struct {
	Schedule     string        // cron expression
	StuckAfter   time.Duration // mark running campaigns older than this
	RetainEvents time.Duration // 0 keeps everything
}

// Store is the maintenance slice of the persistence layer.
type Store interface {
	StaleRunning(ctx context.Context, before time.Time) ([]string, error)
	SetCampaignStatus(ctx context.Context, id string, st campaign.Status) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

type Janitor struct {
	cfg   Config
	store Store
	log   logx.Logger
	cron  *cron.Cron
}

func New(cfg Config, store Store, log logx.Logger) *Janitor {
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{cfg: cfg, store: store, log: log}
}

func (j *Janitor) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(j.cfg.Schedule, func() { j.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.log.Info("janitor started", logx.String("schedule", j.cfg.Schedule), logx.Duration("stuck_after", j.cfg.StuckAfter))
	return nil
}

func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep runs one maintenance pass. Exported so operators can trigger it
// out of schedule.
func (j *Janitor) Sweep(ctx context.Context) {
	now := time.Now()

	stale, err := j.store.StaleRunning(ctx, now.Add(-j.cfg.StuckAfter))
	if err != nil {
		j.log.Warn("stale-run query failed", logx.Err(err))
	}
	for _, id := range stale {
		if err := j.store.SetCampaignStatus(ctx, id, campaign.StatusStopped); err != nil {
			j.log.Warn("stale-run stop failed", logx.String("campaign", id), logx.Err(err))
			continue
		}
		j.log.Info("stopped stale campaign", logx.String("campaign", id))
	}

	if j.cfg.RetainEvents > 0 {
		n, err := j.store.PruneEvents(ctx, now.Add(-j.cfg.RetainEvents))
		if err != nil {
			j.log.Warn("event prune failed", logx.Err(err))
		} else if n > 0 {
			j.log.Info("pruned old events", logx.Int64("rows", n))
		}
	}
}
