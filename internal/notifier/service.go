package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trendbot/internal/eventbus"
	"trendbot/internal/metrics"
	rtsup "trendbot/internal/runtime/supervisor"
	"trendbot/internal/storage"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrNoTarget  = errors.New("notifier has no target chat")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historySize = 100

type job struct {
	n   kit.Notification
	key string
}

// Service is the alert pipeline. It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus
	dedup   *dedupTable

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	run     *run // nil while stopped

	hmu     sync.Mutex
	history []HistoryItem
}

// run is one Start..Stop lifetime.
type run struct {
	sup     *rtsup.Supervisor
	queue   chan job
	senders sync.WaitGroup
	unwatch func()
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus, dedup: newDedupTable(store)}
	s.Apply(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. Enabling a stopped service still needs Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), min(cfg.RatePerMin, 3))
	s.mu.Unlock()
}

// Start launches the workers and the cycle watcher. It is idempotent and a
// no-op while disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil || !s.cfg.Enabled {
		return
	}
	r := &run{
		sup:   rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false)),
		queue: make(chan job, s.cfg.QueueSize),
	}
	s.run = r

	if s.cfg.PersistDedup {
		s.dedup.startPersist(r.sup)
	}
	for i := range s.cfg.Workers {
		r.sup.Go0(fmt.Sprintf("worker.%d", i), func(c context.Context) { s.work(c, r.queue) })
	}
	if s.bus != nil {
		events, unsubscribe := s.bus.Subscribe(16, eventbus.CycleFinished)
		r.unwatch = unsubscribe
		r.sup.Go0("cycles.watch", func(c context.Context) { s.watchCycles(c, events) })
	}
}

// Stop refuses new alerts and drains the queue until ctx ends, then cancels
// whatever is still sending.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	if r.unwatch != nil {
		r.unwatch()
	}
	r.senders.Wait()
	close(r.queue)
	s.dedup.stopPersist()
	if err := r.sup.Wait(ctx); err != nil {
		r.sup.Cancel()
		s.log.Debug("notifier stop cut short", logx.Err(err))
	}
}

// Alert queues text for the configured ops chat.
func (s *Service) Alert(ctx context.Context, priority int, text string) error {
	s.mu.Lock()
	target := s.cfg.Target
	s.mu.Unlock()
	if target.IsZero() {
		return ErrNoTarget
	}
	return s.Notify(ctx, kit.Notification{Priority: priority, Target: target, Text: text})
}

// ChatSender adapts the service to the logging chat sink.
func (s *Service) ChatSender() logx.ChatSender {
	return func(ctx context.Context, text string) error {
		return s.Alert(ctx, 7, text)
	}
}

func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	return s.enqueue(ctx, n, notificationKey(n))
}

func (s *Service) enqueue(ctx context.Context, n kit.Notification, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	cfg, r := s.cfg, s.run
	if cfg.Enabled && r != nil {
		r.senders.Add(1)
	}
	s.mu.Unlock()
	switch {
	case !cfg.Enabled:
		return ErrDisabled
	case r == nil:
		return ErrStopped
	}
	defer r.senders.Done()

	if cfg.DedupWindow > 0 && key != "" && !s.dedup.claim(ctx, key, cfg.DedupWindow, cfg.DedupMaxEntries, cfg.PersistDedup) {
		metrics.AlertsSent.WithLabelValues("deduped").Inc()
		s.publish(EventDeduped, key, nil)
		return nil
	}
	select {
	case r.queue <- job{n: n, key: key}:
		return nil
	default:
		metrics.AlertsSent.WithLabelValues("dropped").Inc()
		s.publish(EventDropped, key, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) publish(typ, key string, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Key: key, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// Snapshot returns the most recent delivered alerts, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) remember(text string) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if over := len(s.history) - historySize; over > 0 {
		s.history = s.history[over:]
	}
}
