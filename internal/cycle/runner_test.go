package cycle

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trendbot/internal/aggregate"
	"trendbot/internal/eventbus"
	"trendbot/internal/media"
	"trendbot/internal/present"
	"trendbot/internal/publish"
	"trendbot/internal/source"
	"trendbot/internal/storage"
	logx "trendbot/pkg/logx"
)

type fakeSource struct {
	kind  media.Kind
	n     int
	err   error
	block chan struct{}
}

func (f *fakeSource) Name() string     { return "fake" }
func (f *fakeSource) Kind() media.Kind { return f.kind }
func (f *fakeSource) Fetch(ctx context.Context, limit int) ([]media.Item, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]media.Item, 0, f.n)
	for i := 0; i < f.n && i < limit; i++ {
		out = append(out, media.NewItem(f.kind, strconv.Itoa(i), "Title "+strconv.Itoa(i), nil))
	}
	return out, nil
}

type fakeDest struct {
	mu       sync.Mutex
	checkErr error
	failAll  bool
	headings []string
	cards    int

	active, maxActive atomic.Int32
}

func (d *fakeDest) Name() string                { return "fake" }
func (d *fakeDest) Check(context.Context) error { return d.checkErr }
func (d *fakeDest) SendHeading(_ context.Context, text string) error {
	d.enter()
	defer d.active.Add(-1)
	d.mu.Lock()
	d.headings = append(d.headings, text)
	d.mu.Unlock()
	return nil
}

func (d *fakeDest) SendCards(_ context.Context, cards []present.DisplayCard) error {
	d.enter()
	defer d.active.Add(-1)
	if d.failAll {
		return errors.New("rejected")
	}
	d.mu.Lock()
	d.cards += len(cards)
	d.mu.Unlock()
	return nil
}

func (d *fakeDest) enter() {
	n := d.active.Add(1)
	for {
		m := d.maxActive.Load()
		if n <= m || d.maxActive.CompareAndSwap(m, n) {
			return
		}
	}
}

type fakeReporter struct {
	acks    atomic.Int32
	reports chan Report
}

func newReporter() *fakeReporter { return &fakeReporter{reports: make(chan Report, 4)} }

func (f *fakeReporter) Acknowledge(context.Context) error { f.acks.Add(1); return nil }
func (f *fakeReporter) Report(_ context.Context, r Report) error {
	f.reports <- r
	return nil
}

func newRunner(dest *fakeDest, sources ...source.Source) *Runner {
	return NewRunner(Options{
		Sources:    sources,
		Aggregator: aggregate.New(nil, 10, logx.Nop()),
		Presenter:  present.New(""),
		Publisher:  publish.New(dest, publish.Options{ChunkSize: 10}),
		Log:        logx.Nop(),
	})
}

func waitRunning(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !r.Running() {
		if time.Now().After(deadline) {
			t.Fatal("cycle never started")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunPublishesEveryGroupDespiteFailingSource(t *testing.T) {
	t.Parallel()
	dest := &fakeDest{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, eventbus.CycleFinished)
	defer unsub()

	r := newRunner(dest,
		&fakeSource{kind: media.KindMovie, err: media.Unavailable("tmdb", media.KindMovie, errors.New("503"))},
		&fakeSource{kind: media.KindShow, n: 12},
		&fakeSource{kind: media.KindAnime, n: 3},
	)
	r.opts.Bus = bus

	rep, err := r.Run(context.Background(), TriggerSchedule)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Outcome != OutcomePartial || len(rep.Groups) != 3 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Groups[0].Published != 0 || !errors.Is(rep.Groups[0].SourceErr, media.ErrSourceUnavailable) {
		t.Fatalf("movie group = %+v", rep.Groups[0])
	}
	if dest.cards != 15 || len(dest.headings) != 2 {
		t.Fatalf("delivered cards=%d headings=%v", dest.cards, dest.headings)
	}
	if dest.headings[0] != present.Heading(media.KindShow) {
		t.Fatalf("headings = %v", dest.headings)
	}
	select {
	case ev := <-events:
		if got := ev.Data.(Report); got.ID != rep.ID {
			t.Fatalf("event report = %s, want %s", got.ID, rep.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no cycle.finished event")
	}
	if last, ok := r.Last(); !ok || last.ID != rep.ID {
		t.Fatalf("Last = %+v %v", last, ok)
	}
	if s := rep.Summary(); !strings.Contains(s, "partial") || !strings.Contains(s, "12/12 published") {
		t.Fatalf("summary:\n%s", s)
	}
}

func TestOutcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		dest *fakeDest
		want Outcome
	}{
		{"ok", &fakeDest{}, OutcomeOK},
		{"bad chat id", &fakeDest{checkErr: media.Misconfigured("telegram.chat_id", errors.New("not numeric"))}, OutcomeSkipped},
		{"destination down", &fakeDest{checkErr: errors.New("dial tcp: i/o timeout")}, OutcomeFailed},
		{"every chunk fails", &fakeDest{failAll: true}, OutcomeFailed},
	}
	for _, tt := range tests {
		r := newRunner(tt.dest, &fakeSource{kind: media.KindMovie, n: 4})
		rep, _ := r.TryRun(context.Background(), TriggerHTTP)
		if rep.Outcome != tt.want {
			t.Fatalf("%s: outcome = %s (%v)", tt.name, rep.Outcome, rep.Err)
		}
		if tt.want == OutcomeSkipped && !errors.Is(rep.Err, media.ErrConfigInvalid) {
			t.Fatalf("%s: err = %v", tt.name, rep.Err)
		}
		if tt.dest.checkErr != nil && !errors.Is(rep.Err, tt.dest.checkErr) {
			t.Fatalf("%s: cause lost: %v", tt.name, rep.Err)
		}
		if tt.want == OutcomeFailed && tt.dest.checkErr != nil && errors.Is(rep.Err, media.ErrConfigInvalid) {
			t.Fatalf("%s: outage reported as config error: %v", tt.name, rep.Err)
		}
		if r.Running() {
			t.Fatalf("%s: gate not released", tt.name)
		}
	}
}

func TestConcurrentTriggersRunOneCycle(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	dest := &fakeDest{}
	r := newRunner(dest, &fakeSource{kind: media.KindMovie, n: 10, block: block})

	scheduled := make(chan Report, 1)
	go func() {
		rep, _ := r.Run(context.Background(), TriggerSchedule)
		scheduled <- rep
	}()
	waitRunning(t, r)

	var wg sync.WaitGroup
	var rejected atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.TryRun(context.Background(), TriggerHTTP); errors.Is(err, ErrCycleRunning) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := rejected.Load(); got != 8 {
		t.Fatalf("rejected = %d, want 8", got)
	}

	rep := newReporter()
	if err := r.Manual(context.Background(), TriggerTelegram, rep); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("Manual err = %v", err)
	}
	if got := <-rep.reports; got.Outcome != OutcomeSkipped || rep.acks.Load() != 0 {
		t.Fatalf("busy manual report = %+v acks=%d", got, rep.acks.Load())
	}

	close(block)
	if got := <-scheduled; got.Outcome != OutcomeOK {
		t.Fatalf("scheduled outcome = %s", got.Outcome)
	}
	if dest.cards != 10 || dest.maxActive.Load() != 1 {
		t.Fatalf("cards=%d maxActive=%d", dest.cards, dest.maxActive.Load())
	}
}

func TestScheduledRunWaitsForManualCycle(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	dest := &fakeDest{}
	r := newRunner(dest, &fakeSource{kind: media.KindShow, n: 3, block: block})

	rep := newReporter()
	if err := r.Manual(context.Background(), TriggerDiscord, rep); err != nil {
		t.Fatalf("Manual: %v", err)
	}
	if rep.acks.Load() != 1 {
		t.Fatal("manual trigger not acknowledged before completion")
	}
	waitRunning(t, r)

	done := make(chan Report, 1)
	go func() {
		rep, _ := r.Run(context.Background(), TriggerSchedule)
		done <- rep
	}()
	select {
	case <-done:
		t.Fatal("scheduled cycle ran while manual cycle held the gate")
	case <-time.After(20 * time.Millisecond):
	}

	close(block)
	manual := <-rep.reports
	scheduled := <-done
	if manual.Outcome != OutcomeOK || scheduled.Outcome != OutcomeOK || manual.ID == scheduled.ID {
		t.Fatalf("manual=%+v scheduled=%+v", manual, scheduled)
	}
	if dest.cards != 6 || dest.maxActive.Load() != 1 {
		t.Fatalf("cards=%d maxActive=%d", dest.cards, dest.maxActive.Load())
	}
}

func TestRunHonorsContextWhileWaiting(t *testing.T) {
	t.Parallel()
	r := newRunner(&fakeDest{})
	tk, err := r.Reserve(TriggerHTTP)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Run(ctx, TriggerSchedule); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run err = %v", err)
	}
	tk.Release()
	if got := tk.Run(context.Background()); !errors.Is(got.Err, errTicketSpent) {
		t.Fatalf("spent ticket ran: %+v", got)
	}
	if r.Running() {
		t.Fatal("gate still held")
	}
}

func TestRunJournalsReports(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	defer st.Close()
	r := newRunner(&fakeDest{}, &fakeSource{kind: media.KindAnime, n: 2})
	r.opts.Store = st

	rep, _ := r.Run(context.Background(), TriggerSchedule)
	recs, err := r.Recent(context.Background(), 5)
	if err != nil || len(recs) != 1 || recs[0].ID != rep.ID || recs[0].Groups[0].Published != 2 {
		t.Fatalf("recent = %+v, %v", recs, err)
	}
}
