package dispatch

import (
	"context"
	"sync"
	"time"

	"adcast/internal/campaign"
	"adcast/internal/transport"
	"adcast/pkg/logx"
)

// Dispatcher runs campaigns to completion. It is stateless across runs and
// safe to reuse; all per-run state lives on the stack of Run.
type Dispatcher struct {
	cfg   Config
	store StatusStore
	sink  EventSink
	log   logx.Logger

	// sleep is swappable so tests can run pacing and flood-wait paths
	// without real time passing.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(cfg Config, store StatusStore, sink EventSink, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:   cfg.withDefaults(),
		store: store,
		sink:  sink,
		log:   log,
		sleep: sleepCtx,
		now:   time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

// Run executes one campaign pass: connect senders, resolve targets, fan out,
// join, disconnect, persist the final status.
//
// The returned error is non-nil only for the run-fatal no-accounts condition
// (or a store failure before any work started); every per-destination outcome
// is absorbed into the event log.
func (d *Dispatcher) Run(ctx context.Context, spec *campaign.Spec, senders []Sender) (*RunReport, error) {
	start := d.now()
	rep := &RunReport{CampaignID: spec.ID, Started: start}
	log := d.log.With(logx.String("campaign", spec.ID))

	connected := d.connectSenders(ctx, spec, senders)
	rep.Senders = len(connected)
	if len(connected) == 0 {
		log.Error("no sender accounts could connect")
		return rep, ErrNoAccounts
	}

	targets := d.resolveTargets(ctx, spec, connected[0])
	rep.Targets = len(targets)

	if len(targets) == 0 {
		log.Warn("no targets to send to")
		d.finish(ctx, spec.ID, connected, log)
		rep.Duration = d.now().Sub(start)
		return rep, nil
	}

	delay := campaign.Delay(spec.RatePerMin)
	parts := partition(targets, len(connected))
	log.Info("campaign fan-out starting",
		logx.Int("targets", len(targets)), logx.Int("senders", len(connected)), logx.Duration("delay", delay))

	var (
		wg sync.WaitGroup
		mu sync.Mutex // guards rep counters
	)
	for i := range connected {
		if len(parts[i]) == 0 {
			continue
		}
		wg.Add(1)
		go func(s Sender, part []int64) {
			defer wg.Done()
			tally := d.senderLoop(ctx, spec, s, part, delay)
			mu.Lock()
			rep.Sent += tally.Sent
			rep.Failed += tally.Failed
			rep.Skipped += tally.Skipped
			rep.FloodWait += tally.FloodWait
			mu.Unlock()
		}(connected[i], parts[i])
	}
	wg.Wait()

	d.finish(ctx, spec.ID, connected, log)
	rep.Duration = d.now().Sub(start)
	log.Info("campaign finished",
		logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed),
		logx.Int("skipped", rep.Skipped), logx.Duration("dur", rep.Duration))
	return rep, nil
}

// connectSenders brings up every transport and keeps the ones that made it.
// Connect outcomes are logged to the event sink so the analytics side can see
// pool health per run.
func (d *Dispatcher) connectSenders(ctx context.Context, spec *campaign.Spec, senders []Sender) []Sender {
	connected := make([]Sender, 0, len(senders))
	for _, s := range senders {
		if err := s.Transport.Connect(ctx); err != nil {
			d.log.Warn("sender connect failed", logx.String("sender", s.Account.Label), logx.Err(err))
			d.append(ctx, campaign.EventRecord{
				Owner:      spec.Owner,
				CampaignID: spec.ID,
				Kind:       campaign.EventClientConnectFail,
				Detail:     err.Error(),
				Sender:     s.Account.Label,
			})
			continue
		}
		d.append(ctx, campaign.EventRecord{
			Owner:      spec.Owner,
			CampaignID: spec.ID,
			Kind:       campaign.EventClientConnect,
			Sender:     s.Account.Label,
		})
		connected = append(connected, s)
	}
	return connected
}

func (d *Dispatcher) disconnectAll(senders []Sender, log logx.Logger) {
	for _, s := range senders {
		if err := s.Transport.Disconnect(); err != nil {
			log.Debug("sender disconnect failed", logx.String("sender", s.Account.Label), logx.Err(err))
		}
	}
}

// finish tears the sender pool down and then writes the final status, in that
// order. Completion always wins, even over an externally-set "stopped": the
// stop signal only makes the loops exit early.
func (d *Dispatcher) finish(ctx context.Context, campaignID string, connected []Sender, log logx.Logger) {
	d.disconnectAll(connected, log)
	if err := d.store.SetCampaignStatus(ctx, campaignID, campaign.StatusCompleted); err != nil {
		log.Error("final status write failed", logx.Err(err))
	}
}

type tally struct {
	Sent, Failed, Skipped, FloodWait int
}

// senderLoop walks one partition in order. Each iteration ends in the
// mandatory pacing delay regardless of outcome, capping this sender's
// provider-visible rate.
func (d *Dispatcher) senderLoop(ctx context.Context, spec *campaign.Spec, s Sender, part []int64, delay time.Duration) tally {
	var t tally
	log := d.log.With(logx.String("campaign", spec.ID), logx.String("sender", s.Account.Label))
	log.Info("sender loop starting", logx.Int("targets", len(part)))

	for _, chatID := range part {
		if !s.Transport.Connected() {
			log.Warn("sender disconnected mid-loop, reconnecting")
			if err := s.Transport.Connect(ctx); err != nil {
				// Unrecoverable sender: abandon the rest of this partition.
				// Targets are not redistributed to other senders.
				log.Error("sender reconnect failed, abandoning partition", logx.Err(err))
				return t
			}
		}

		st, err := d.store.CampaignStatus(ctx, spec.ID)
		if err != nil || st != campaign.StatusRunning {
			log.Info("campaign no longer running, stopping loop", logx.String("status", string(st)), logx.Err(err))
			return t
		}

		d.sendOne(ctx, spec, s, chatID, &t, log)

		if err := d.sleep(ctx, delay); err != nil {
			return t
		}
	}
	return t
}

// sendOne handles a single destination end to end: peer resolution, the
// attempt record, the send, and the one flood-wait retry.
func (d *Dispatcher) sendOne(ctx context.Context, spec *campaign.Spec, s Sender, chatID int64, t *tally, log logx.Logger) {
	info, err := d.resolvePeer(ctx, s.Transport, spec, chatID)
	if err != nil {
		reason, ok := skipReason(err)
		if !ok {
			// Context cancellation during probing; the status re-check on the
			// next iteration ends the loop.
			return
		}
		t.Skipped++
		log.Info("destination skipped", logx.Int64("chat_id", chatID), logx.String("reason", reason))
		d.append(ctx, campaign.EventRecord{
			Owner: spec.Owner, CampaignID: spec.ID, Kind: campaign.EventSkipped,
			ChatID: chatID, Reason: reason, Sender: s.Account.Label,
		})
		return
	}

	d.append(ctx, campaign.EventRecord{
		Owner: spec.Owner, CampaignID: spec.ID, Kind: campaign.EventAttempt,
		ChatID: info.ID, ChatType: info.Type, ChatTitle: info.Title, Sender: s.Account.Label,
	})

	err = s.Transport.Send(ctx, spec.Message, info.ID)
	if err == nil {
		t.Sent++
		log.Debug("sent", logx.Int64("chat_id", info.ID))
		d.append(ctx, campaign.EventRecord{
			Owner: spec.Owner, CampaignID: spec.ID, Kind: campaign.EventSent,
			ChatID: info.ID, ChatType: info.Type, ChatTitle: info.Title, Sender: s.Account.Label,
		})
		return
	}

	if wait, ok := transport.AsFloodWait(err); ok {
		t.FloodWait++
		secs := int(wait / time.Second)
		log.Warn("flood wait", logx.Int64("chat_id", info.ID), logx.Duration("wait", wait))
		d.append(ctx, campaign.EventRecord{
			Owner: spec.Owner, CampaignID: spec.ID, Kind: campaign.EventFloodWait,
			ChatID: info.ID, ChatType: info.Type, WaitSeconds: secs, Sender: s.Account.Label,
		})
		if err := d.sleep(ctx, wait+time.Second); err != nil {
			return
		}
		// Exactly one retry after the mandated pause. A second throttle is
		// treated as a terminal failure, never a second wait cycle.
		if rerr := s.Transport.Send(ctx, spec.Message, info.ID); rerr == nil {
			t.Sent++
			d.append(ctx, campaign.EventRecord{
				Owner: spec.Owner, CampaignID: spec.ID, Kind: campaign.EventSentAfterFloodWait,
				ChatID: info.ID, ChatType: info.Type, ChatTitle: info.Title, Sender: s.Account.Label,
			})
		} else {
			d.recordFailure(ctx, spec, s, info, rerr, t, log)
		}
		return
	}

	d.recordFailure(ctx, spec, s, info, err, t, log)
}

func (d *Dispatcher) recordFailure(ctx context.Context, spec *campaign.Spec, s Sender, info transport.ChatInfo, err error, t *tally, log logx.Logger) {
	t.Failed++
	reason := Classify(err)
	log.Warn("send failed", logx.Int64("chat_id", info.ID), logx.String("reason", string(reason)), logx.Err(err))
	d.append(ctx, campaign.EventRecord{
		Owner: spec.Owner, CampaignID: spec.ID, Kind: campaign.EventFailed,
		ChatID: info.ID, ChatType: info.Type, ChatTitle: info.Title,
		Reason: string(reason), Detail: err.Error(), Sender: s.Account.Label,
	})
}

// append writes one event record, stamping the time. Sink failures are logged
// and swallowed: telemetry must never break delivery.
func (d *Dispatcher) append(ctx context.Context, rec campaign.EventRecord) {
	if rec.At.IsZero() {
		rec.At = d.now()
	}
	if err := d.sink.AppendEvent(ctx, rec); err != nil {
		d.log.Warn("event append failed", logx.String("kind", string(rec.Kind)), logx.Err(err))
	}
}
