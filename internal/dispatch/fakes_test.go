package dispatch

import (
	"context"
	"sync"
	"time"

	"adcast/internal/campaign"
	"adcast/internal/transport"
	"adcast/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }

// fakeTransport is a scriptable transport. All methods are safe for the
// concurrent sender loops.
type fakeTransport struct {
	mu sync.Mutex

	connected   bool
	connectErrs []error // popped per Connect call; empty means success

	describe map[int64]transport.ChatInfo
	// describeAfterWarm lists ids that only resolve once EnumerateChats ran.
	describeAfterWarm map[int64]transport.ChatInfo

	enumerate      []transport.ChatInfo
	enumerateErr   error
	enumerateCalls int
	enumerateLimit int

	sendErrs map[int64][]error // popped per Send call for that chat
	sent     []int64

	describeCalls []int64
	dropAfterSend int // disconnect after this many sends (0 = never)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		describe: map[int64]transport.ChatInfo{},
		sendErrs: map[int64][]error{},
	}
}

func (f *fakeTransport) addChat(id int64, t campaign.ChatType, title string) {
	f.describe[id] = transport.ChatInfo{ID: id, Type: t, Title: title}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) DescribeChat(ctx context.Context, id int64) (transport.ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls = append(f.describeCalls, id)
	if ci, ok := f.describe[id]; ok {
		return ci, nil
	}
	if f.enumerateCalls > 0 {
		if ci, ok := f.describeAfterWarm[id]; ok {
			return ci, nil
		}
	}
	return transport.ChatInfo{}, transport.ErrPeerInvalid
}

func (f *fakeTransport) EnumerateChats(ctx context.Context, limit int) ([]transport.ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumerateCalls++
	f.enumerateLimit = limit
	if f.enumerateErr != nil {
		return nil, f.enumerateErr
	}
	return f.enumerate, nil
}

func (f *fakeTransport) Send(ctx context.Context, msg campaign.Message, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.sendErrs[chatID]; len(errs) > 0 {
		err := errs[0]
		f.sendErrs[chatID] = errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, chatID)
	if f.dropAfterSend > 0 && len(f.sent) >= f.dropAfterSend {
		f.connected = false
	}
	return nil
}

func (f *fakeTransport) sentIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

// fakeStore tracks campaign status with an optional script that flips the
// status after a number of reads (simulating an external stop action).
type fakeStore struct {
	mu         sync.Mutex
	status     campaign.Status
	reads      int
	stopAfter  int // flip to stopped after this many status reads (0 = never)
	statusLog  []campaign.Status
	statusErrs []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{status: campaign.StatusRunning}
}

func (f *fakeStore) CampaignStatus(ctx context.Context, id string) (campaign.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusErrs) > 0 {
		err := f.statusErrs[0]
		f.statusErrs = f.statusErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.reads++
	if f.stopAfter > 0 && f.reads > f.stopAfter {
		f.status = campaign.StatusStopped
	}
	return f.status, nil
}

func (f *fakeStore) SetCampaignStatus(ctx context.Context, id string, st campaign.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = st
	f.statusLog = append(f.statusLog, st)
	return nil
}

func (f *fakeStore) finalStatus() campaign.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// fakeSink collects event records in append order.
type fakeSink struct {
	mu   sync.Mutex
	recs []campaign.EventRecord
}

func (f *fakeSink) AppendEvent(ctx context.Context, rec campaign.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeSink) kinds() []campaign.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]campaign.EventKind, len(f.recs))
	for i, r := range f.recs {
		out[i] = r.Kind
	}
	return out
}

func (f *fakeSink) countKind(kind campaign.EventKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.recs {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeSink) firstOfKind(kind campaign.EventKind) (campaign.EventRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.Kind == kind {
			return r, true
		}
	}
	return campaign.EventRecord{}, false
}

// sleepRecorder replaces the dispatcher's sleep so pacing and flood-wait
// paths run instantly while still being observable.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func newTestDispatcher(store StatusStore, sink EventSink) (*Dispatcher, *sleepRecorder) {
	d := New(Config{}, store, sink, testLogger())
	rec := &sleepRecorder{}
	d.sleep = rec.sleep
	return d, rec
}

func runningSpec(id string, include []int64) *campaign.Spec {
	spec := &campaign.Spec{
		ID:         id,
		Owner:      42,
		Message:    campaign.Message{Text: "hi"},
		Mode:       campaign.ModeInclude,
		Include:    include,
		RatePerMin: 5,
		Status:     campaign.StatusRunning,
	}
	spec.Normalize(10)
	return spec
}
