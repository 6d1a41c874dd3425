// Package cycle runs one full fetch, enrich, render and publish pass and
// guarantees that at most one such pass is active at a time.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"trendbot/internal/aggregate"
	"trendbot/internal/eventbus"
	"trendbot/internal/media"
	"trendbot/internal/metrics"
	"trendbot/internal/present"
	"trendbot/internal/publish"
	"trendbot/internal/runtime/supervisor"
	"trendbot/internal/source"
	"trendbot/internal/storage"
	logx "trendbot/pkg/logx"
)

var (
	ErrCycleRunning = errors.New("a trending cycle is already running")
	errTicketSpent  = errors.New("cycle ticket already used")
)

type Aggregator interface {
	RunCycle(ctx context.Context, sources []source.Source, enrich bool) aggregate.Result
}

type Publisher interface {
	Publish(ctx context.Context, heading string, cards []present.DisplayCard) (publish.Stats, error)
	Destination() publish.Destination
}

// Reporter is the manual-trigger surface: an immediate acknowledgement and a
// later completion report.
type Reporter interface {
	Acknowledge(ctx context.Context) error
	Report(ctx context.Context, r Report) error
}

type Options struct {
	Sources    []source.Source
	Aggregator Aggregator
	Presenter  present.Presenter
	Publisher  Publisher
	Enrich     bool

	// Supervisor runs detached manual cycles; its context bounds them.
	Supervisor *supervisor.Supervisor
	Bus        eventbus.Bus
	Store      storage.Store
	Log        logx.Logger
	Now        func() time.Time
}

type Runner struct {
	opts Options
	log  logx.Logger
	now  func() time.Time

	// gate holds a token while a cycle runs.
	gate chan struct{}
	last atomic.Pointer[Report]
}

func NewRunner(opts Options) *Runner {
	r := &Runner{
		opts: opts,
		log:  opts.Log,
		now:  opts.Now,
		gate: make(chan struct{}, 1),
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Running reports whether a cycle currently holds the gate.
func (r *Runner) Running() bool { return len(r.gate) == 1 }

// Last returns the most recent finished report.
func (r *Runner) Last() (Report, bool) {
	p := r.last.Load()
	if p == nil {
		return Report{}, false
	}
	return *p, true
}

// Run waits for the gate and then runs a cycle. It fails only if ctx ends
// before the gate is acquired.
func (r *Runner) Run(ctx context.Context, trigger string) (Report, error) {
	select {
	case r.gate <- struct{}{}:
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	t := &Ticket{r: r, trigger: trigger}
	return t.Run(ctx), nil
}

// TryRun runs a cycle only if none is active.
func (r *Runner) TryRun(ctx context.Context, trigger string) (Report, error) {
	t, err := r.Reserve(trigger)
	if err != nil {
		return Report{}, err
	}
	return t.Run(ctx), nil
}

// Reserve takes the gate without blocking. The ticket must be Run or
// Released.
func (r *Runner) Reserve(trigger string) (*Ticket, error) {
	select {
	case r.gate <- struct{}{}:
		return &Ticket{r: r, trigger: trigger}, nil
	default:
		metrics.CycleRejected.Inc()
		return nil, ErrCycleRunning
	}
}

// Manual acknowledges the request, runs the cycle in the background and
// hands the final report to rep. When a cycle is already active it reports
// a skipped cycle and returns ErrCycleRunning.
func (r *Runner) Manual(ctx context.Context, trigger string, rep Reporter) error {
	t, err := r.Reserve(trigger)
	if err != nil {
		skipped := Report{Trigger: trigger, Outcome: OutcomeSkipped, Err: err}
		if rerr := rep.Report(ctx, skipped); rerr != nil {
			r.log.Warn("manual report failed", logx.Trigger(trigger), logx.Err(rerr))
		}
		return err
	}
	if err := rep.Acknowledge(ctx); err != nil {
		r.log.Warn("manual acknowledge failed", logx.Trigger(trigger), logx.Err(err))
	}

	job := func(ctx context.Context) {
		report := t.Run(ctx)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := rep.Report(rctx, report); err != nil {
			r.log.Warn("manual report failed", logx.Trigger(trigger), logx.Cycle(report.ID), logx.Err(err))
		}
	}
	if sup := r.opts.Supervisor; sup != nil {
		sup.Go0("cycle."+trigger, job)
	} else {
		go job(context.WithoutCancel(ctx))
	}
	return nil
}

// Ticket is a reserved gate slot.
type Ticket struct {
	r       *Runner
	trigger string
	once    sync.Once
}

// Release frees the gate without running a cycle.
func (t *Ticket) Release() {
	t.once.Do(func() { <-t.r.gate })
}

// Run executes the reserved cycle and frees the gate. A ticket runs once.
func (t *Ticket) Run(ctx context.Context) Report {
	ran := false
	var rep Report
	t.once.Do(func() {
		ran = true
		defer func() { <-t.r.gate }()
		rep = t.r.execute(ctx, t.trigger)
	})
	if !ran {
		return Report{Trigger: t.trigger, Outcome: OutcomeSkipped, Err: errTicketSpent}
	}
	return rep
}

func (r *Runner) execute(ctx context.Context, trigger string) (rep Report) {
	rep = Report{ID: uuid.NewString(), Trigger: trigger, StartedAt: r.now()}
	log := r.log.With(logx.Cycle(rep.ID), logx.Trigger(trigger))

	metrics.CycleRunning.Set(1)
	defer metrics.CycleRunning.Set(0)
	r.publishEvent(eventbus.CycleStarted, rep)
	log.Info("cycle started")

	defer func() {
		if p := recover(); p != nil {
			rep.Outcome = OutcomeFailed
			rep.Err = errors.New("cycle panicked")
			log.Error("cycle panic", logx.Any("panic", p))
			r.finish(ctx, &rep, log)
		}
	}()

	if err := r.check(ctx); err != nil {
		rep.Err = err
		if errors.Is(err, media.ErrConfigInvalid) {
			rep.Outcome = OutcomeSkipped
			log.Warn("cycle skipped", logx.Err(err))
		} else {
			rep.Outcome = OutcomeFailed
			log.Warn("cycle failed: destination unreachable", logx.Err(err))
		}
		r.finish(ctx, &rep, log)
		return rep
	}

	res := r.opts.Aggregator.RunCycle(ctx, r.opts.Sources, r.opts.Enrich)
	for _, kind := range res.Ordered() {
		rep.Groups = append(rep.Groups, r.publishGroup(ctx, kind, res[kind], log))
	}
	rep.Outcome = outcomeOf(rep.Groups)
	if len(rep.Groups) == 0 {
		rep.Err = errors.New("no sources enabled")
	} else if rep.Outcome == OutcomeFailed && ctx.Err() != nil {
		rep.Err = ctx.Err()
	}
	r.finish(ctx, &rep, log)
	return rep
}

func (r *Runner) check(ctx context.Context) error {
	if r.opts.Publisher == nil || r.opts.Aggregator == nil {
		return &media.ConfigError{Field: "runner", Reason: "publisher and aggregator are required"}
	}
	dest := r.opts.Publisher.Destination()
	if dest == nil {
		return &media.ConfigError{Field: "destination", Reason: "not configured"}
	}
	// Destinations classify their own misconfiguration; anything else is
	// an outage and keeps its cause.
	err := dest.Check(ctx)
	if err == nil || errors.Is(err, media.ErrConfigInvalid) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", media.ErrDelivery, dest.Name(), err)
}

func (r *Runner) publishGroup(ctx context.Context, kind media.Kind, grp aggregate.Group, log logx.Logger) GroupReport {
	gr := GroupReport{
		Kind:           kind,
		Fetched:        len(grp.Items),
		EnrichFailures: grp.EnrichFailures,
		SourceErr:      grp.Err,
	}
	if len(grp.Items) == 0 {
		log.Warn("group skipped", logx.Kind(kind), logx.Err(grp.Err))
		return gr
	}

	cards := make([]present.DisplayCard, 0, len(grp.Items))
	for _, it := range grp.Items {
		cards = append(cards, r.opts.Presenter.Render(it))
	}
	st, err := r.opts.Publisher.Publish(ctx, present.Heading(kind), cards)
	gr.Published = st.Delivered
	gr.DeliveryFailures = st.FailedChunks
	gr.DeliveryErr = err
	metrics.CardsPublished.WithLabelValues(kind.String()).Add(float64(st.Delivered))
	log.Info("group published",
		logx.Kind(kind),
		logx.Int("cards", st.Cards),
		logx.Int("delivered", st.Delivered),
		logx.Int("failed_chunks", st.FailedChunks),
	)
	return gr
}

func (r *Runner) finish(ctx context.Context, rep *Report, log logx.Logger) {
	rep.FinishedAt = r.now()
	snapshot := *rep
	r.last.Store(&snapshot)

	metrics.CyclesTotal.WithLabelValues(rep.Trigger, string(rep.Outcome)).Inc()
	metrics.CycleDuration.Observe(rep.Duration().Seconds())

	if st := r.opts.Store; st != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := st.AppendCycle(sctx, rep.Record()); err != nil {
			log.Warn("cycle journal append failed", logx.Err(err))
		}
		cancel()
	}
	r.publishEvent(eventbus.CycleFinished, snapshot)
	log.Info("cycle finished",
		logx.String("outcome", string(rep.Outcome)),
		logx.Int("published", rep.Published()),
		logx.Duration("took", rep.Duration()),
	)
}

func (r *Runner) publishEvent(typ string, rep Report) {
	if r.opts.Bus == nil {
		return
	}
	r.opts.Bus.Publish(eventbus.Event{Type: typ, Data: rep})
}

// Recent returns journaled cycles, newest first, or the in-memory last report
// when no store is configured.
func (r *Runner) Recent(ctx context.Context, limit int) ([]storage.CycleRecord, error) {
	if st := r.opts.Store; st != nil {
		return st.RecentCycles(ctx, limit)
	}
	if last, ok := r.Last(); ok {
		return []storage.CycleRecord{last.Record()}, nil
	}
	return nil, nil
}
