package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"adcast/internal/campaign"
	"adcast/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "adcast.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st != nil {
		t.Fatal("disabled storage should return a nil store")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	spec := &campaign.Spec{
		ID:    "c1",
		Owner: 42,
		Message: campaign.Message{
			Text:    "hello",
			Media:   &campaign.Media{Kind: campaign.MediaPhoto, Path: "/tmp/p.jpg"},
			Buttons: [][]campaign.Button{{{Text: "open", URL: "https://example.com"}}},
		},
		Mode:       campaign.ModeInclude,
		Include:    []int64{100, -100200300},
		Exclude:    []int64{400},
		Types:      map[campaign.ChatType]bool{campaign.ChatChannel: false},
		RatePerMin: 5,
		Status:     campaign.StatusRunning,
		Repeat:     campaign.Repeat{Enabled: true, RestSeconds: 900},
	}
	if err := st.CreateCampaign(ctx, spec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.Campaign(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Owner != 42 || got.Message.Text != "hello" || got.Message.Media == nil {
		t.Fatalf("loaded spec = %+v", got)
	}
	if got.Message.Media.Kind != campaign.MediaPhoto {
		t.Fatalf("media kind = %s", got.Message.Media.Kind)
	}
	if len(got.Include) != 2 || got.Include[1] != -100200300 {
		t.Fatalf("include = %v", got.Include)
	}
	if got.Types[campaign.ChatChannel] {
		t.Fatal("persisted channel=false lost")
	}
	if !got.Repeat.Enabled || got.Repeat.RestSeconds != 900 {
		t.Fatalf("repeat = %+v", got.Repeat)
	}
	if got.Status != campaign.StatusRunning {
		t.Fatalf("status = %s", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not stamped")
	}
	if got.CompletedAt != nil {
		t.Fatal("completed_at should be unset")
	}
}

func TestCampaignNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Campaign(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.CampaignStatus(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := st.SetCampaignStatus(ctx, "nope", campaign.StatusStopped); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetCampaignStatusStampsCompletion(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	spec := &campaign.Spec{ID: "c1", Owner: 1, Mode: campaign.ModeInclude, Status: campaign.StatusRunning}
	if err := st.CreateCampaign(ctx, spec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.SetCampaignStatus(ctx, "c1", campaign.StatusStopped); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, err := st.Campaign(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != campaign.StatusStopped || got.CompletedAt != nil {
		t.Fatalf("after stop: status=%s completed_at=%v", got.Status, got.CompletedAt)
	}

	if err := st.SetCampaignStatus(ctx, "c1", campaign.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err = st.Campaign(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != campaign.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("after complete: status=%s completed_at=%v", got.Status, got.CompletedAt)
	}
}

func TestAccounts(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	accounts := []campaign.Account{
		{ID: "a1", Owner: 42, Label: "first", Credential: "tok1", Active: true, CreatedAt: base},
		{ID: "a2", Owner: 42, Label: "second", Credential: "tok2", Active: true, CreatedAt: base.Add(time.Minute)},
		{ID: "a3", Owner: 42, Label: "revoked", Credential: "tok3", Active: false, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "b1", Owner: 7, Label: "other owner", Credential: "tok4", Active: true, CreatedAt: base},
	}
	for _, acc := range accounts {
		if err := st.CreateAccount(ctx, acc); err != nil {
			t.Fatalf("create %s: %v", acc.ID, err)
		}
	}

	got, err := st.ActiveAccounts(ctx, 42)
	if err != nil {
		t.Fatalf("active accounts: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("active accounts = %+v, want a1,a2 in creation order", got)
	}

	used := base.Add(time.Hour)
	if err := st.TouchAccount(ctx, "a1", used); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err = st.ActiveAccounts(ctx, 42)
	if err != nil {
		t.Fatalf("active accounts: %v", err)
	}
	if !got[0].LastUsedAt.Equal(used) {
		t.Fatalf("last_used_at = %v, want %v", got[0].LastUsedAt, used)
	}
}

func seedEvents(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	recs := []campaign.EventRecord{
		{Owner: 42, CampaignID: "c1", At: base, Kind: campaign.EventAttempt, ChatID: 100, ChatType: campaign.ChatPrivate},
		{Owner: 42, CampaignID: "c1", At: base.Add(time.Second), Kind: campaign.EventSent, ChatID: 100, ChatType: campaign.ChatPrivate},
		{Owner: 42, CampaignID: "c1", At: base.Add(2 * time.Second), Kind: campaign.EventAttempt, ChatID: 200, ChatType: campaign.ChatGroup},
		{Owner: 42, CampaignID: "c1", At: base.Add(3 * time.Second), Kind: campaign.EventFailed, ChatID: 200, Reason: "forbidden/blocked", Detail: "blocked by peer"},
		{Owner: 42, CampaignID: "c1", At: base.Add(4 * time.Second), Kind: campaign.EventFailed, ChatID: 300, Reason: "forbidden/blocked"},
		{Owner: 42, CampaignID: "c1", At: base.Add(5 * time.Second), Kind: campaign.EventFailed, ChatID: 400, Reason: "peer/invalid"},
		{Owner: 42, CampaignID: "c1", At: base.Add(6 * time.Second), Kind: campaign.EventSentAfterFloodWait, ChatID: 500, ChatType: campaign.ChatChannel},
		{Owner: 42, CampaignID: "c1", At: base.Add(7 * time.Second), Kind: campaign.EventSent, ChatID: 100, ChatType: campaign.ChatPrivate},
		{Owner: 42, CampaignID: "c1", At: base.Add(8 * time.Second), Kind: campaign.EventSkipped, ChatID: 600, Reason: "peer resolution failed"},
		{Owner: 42, CampaignID: "c2", At: base.Add(9 * time.Second), Kind: campaign.EventSent, ChatID: 700},
		{Owner: 9, CampaignID: "x1", At: base.Add(10 * time.Second), Kind: campaign.EventSent, ChatID: 100},
	}
	for _, rec := range recs {
		if err := st.AppendEvent(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestEventAggregations(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	seedEvents(t, st)
	ctx := context.Background()

	counts, err := st.EventCounts(ctx, 42, "c1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[campaign.EventSent] != 2 || counts[campaign.EventFailed] != 3 || counts[campaign.EventSkipped] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	// Campaign filter: empty id spans every campaign of the owner.
	all, err := st.EventCounts(ctx, 42, "")
	if err != nil {
		t.Fatalf("counts all: %v", err)
	}
	if all[campaign.EventSent] != 3 {
		t.Fatalf("owner-wide sent = %d, want 3", all[campaign.EventSent])
	}

	// chat 100 sent twice counts once; 500 via the flood-wait retry counts.
	reached, err := st.DistinctReached(ctx, 42, "c1")
	if err != nil {
		t.Fatalf("reached: %v", err)
	}
	if reached != 2 {
		t.Fatalf("distinct reached = %d, want 2", reached)
	}

	top, err := st.TopReasons(ctx, 42, "c1", campaign.EventFailed, 5)
	if err != nil {
		t.Fatalf("top reasons: %v", err)
	}
	if len(top) != 2 || top[0].Reason != "forbidden/blocked" || top[0].Count != 2 {
		t.Fatalf("top reasons = %+v", top)
	}

	recent, err := st.RecentEvents(ctx, 42, "c1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent = %d rows, want 3", len(recent))
	}
	// Newest first.
	if recent[0].Kind != campaign.EventSkipped || recent[0].ChatID != 600 {
		t.Fatalf("recent[0] = %+v", recent[0])
	}

	activity, err := st.TypeActivity(ctx, 42, "c1")
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	// attempts and deliveries for private chat 100 plus the channel retry.
	if activity[campaign.ChatPrivate] != 3 || activity[campaign.ChatGroup] != 1 || activity[campaign.ChatChannel] != 1 {
		t.Fatalf("activity = %v", activity)
	}
}

func TestStaleRunningAndPrune(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	specs := []*campaign.Spec{
		{ID: "stale", Owner: 1, Mode: campaign.ModeInclude, Status: campaign.StatusRunning, CreatedAt: old},
		{ID: "fresh", Owner: 1, Mode: campaign.ModeInclude, Status: campaign.StatusRunning},
		{ID: "done", Owner: 1, Mode: campaign.ModeInclude, Status: campaign.StatusCompleted, CreatedAt: old},
	}
	for _, spec := range specs {
		if err := st.CreateCampaign(ctx, spec); err != nil {
			t.Fatalf("create %s: %v", spec.ID, err)
		}
	}

	ids, err := st.StaleRunning(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(ids) != 1 || ids[0] != "stale" {
		t.Fatalf("stale ids = %v, want [stale]", ids)
	}

	for i, at := range []time.Time{old, time.Now()} {
		rec := campaign.EventRecord{Owner: 1, CampaignID: "stale", At: at, Kind: campaign.EventSent, ChatID: int64(i)}
		if err := st.AppendEvent(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n, err := st.PruneEvents(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}
}
