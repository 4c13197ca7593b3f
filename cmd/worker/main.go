package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"adcast/internal/analytics"
	"adcast/internal/campaign"
	"adcast/internal/config"
	"adcast/internal/dispatch"
	"adcast/internal/janitor"
	"adcast/internal/jobs"
	"adcast/internal/storage"
	"adcast/internal/transport/telegram"
	"adcast/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return err
	}
	defer log.Close()

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("worker requires storage")
	}
	defer store.Close()

	queue, err := jobs.Dial(cfg.Queue.URL, cfg.Queue.Name, log)
	if err != nil {
		return err
	}
	defer queue.Close()

	if cfg.Janitor.Enabled {
		stuck, _ := config.ParseDurationField("janitor.stuck_after", cfg.Janitor.StuckAfter)
		retain, _ := config.ParseDurationField("janitor.retain_events", cfg.Janitor.RetainEvents)
		jan := janitor.New(janitor.Config{
			Schedule:     cfg.Janitor.Schedule,
			StuckAfter:   stuck,
			RetainEvents: retain,
		}, store, log)
		if err := jan.Start(ctx); err != nil {
			return err
		}
		defer jan.Stop()
	}

	w := &worker{
		cfg:   cfg,
		store: store,
		log:   log,
		dispatcher: dispatch.New(dispatch.Config{
			WarmCacheLimit: cfg.Dispatch.WarmCacheLimit,
			DiscoverLimit:  cfg.Dispatch.DiscoverLimit,
		}, store, store, log),
	}
	return queue.Consume(ctx, w.handle)
}

type worker struct {
	cfg        *config.Config
	store      storage.Store
	log        logx.Logger
	dispatcher *dispatch.Dispatcher
}

// handle executes one campaign run job end to end.
func (w *worker) handle(ctx context.Context, campaignID string) error {
	log := w.log.With(logx.String("campaign", campaignID))

	spec, err := w.store.Campaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("campaign not found, dropping job")
			return nil
		}
		return err
	}
	spec.Normalize(w.cfg.Dispatch.DefaultRatePerMin)

	accounts, err := w.store.ActiveAccounts(ctx, spec.Owner)
	if err != nil {
		return err
	}
	senders := w.buildSenders(accounts)

	rep, err := w.dispatcher.Run(ctx, spec, senders)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, s := range senders {
		_ = w.store.TouchAccount(ctx, s.Account.ID, now)
	}

	// Completion summary for operators, from the same aggregations the
	// analytics surface uses.
	if sum, aerr := analytics.New(w.store).Summarize(ctx, spec.Owner, spec.ID, 5); aerr == nil {
		log.Info("run summary",
			logx.Int("targets", rep.Targets), logx.Int("senders", rep.Senders),
			logx.Int("attempts", sum.Attempts), logx.Int("sent", sum.Sent),
			logx.Int("skipped", sum.Skipped), logx.Int("failed", sum.Failed),
			logx.Int("reached", sum.Reached), logx.Duration("dur", rep.Duration))
	}
	return nil
}

// buildSenders binds each active account's credential to a transport. The
// credential handle for a bot-backed sender is its token; decryption of
// user-session credentials happens upstream of this worker.
func (w *worker) buildSenders(accounts []campaign.Account) []dispatch.Sender {
	timeout, _ := config.ParseDurationField("dispatch.send_timeout", w.cfg.Dispatch.SendTimeout)
	senders := make([]dispatch.Sender, 0, len(accounts))
	for _, acc := range accounts {
		t := telegram.New(telegram.Config{
			Token:   acc.Credential,
			Timeout: timeout,
		}, w.log.With(logx.String("sender", acc.Label)))
		senders = append(senders, dispatch.Sender{Account: acc, Transport: t})
	}
	return senders
}
