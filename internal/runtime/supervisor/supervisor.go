package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "trendbot/pkg/logx"
)

// healthyRun is how long a restarted task must stay up before its backoff
// drops back to the minimum.
const healthyRun = 30 * time.Second

// Supervisor runs named tasks on a shared context. Panics are recovered and
// recorded; the first failure is kept and may cancel every sibling.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	mu       sync.Mutex
	live     map[string]int
	started  uint64
	firstErr error

	wg       sync.WaitGroup
	idleOnce sync.Once
	idle     chan struct{}
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first task failure.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		live:   make(map[string]int),
		idle:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel ends the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err is the first failure recorded by any task.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Tasks lists the names of tasks currently running, sorted.
func (s *Supervisor) Tasks() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.live))
	for name := range s.live {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Started counts every task ever launched.
func (s *Supervisor) Started() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Supervisor) enter(name string) {
	s.mu.Lock()
	s.live[name]++
	s.started++
	s.mu.Unlock()
	s.wg.Add(1)
}

func (s *Supervisor) leave(name string) {
	s.mu.Lock()
	if s.live[name]--; s.live[name] <= 0 {
		delete(s.live, name)
	}
	s.mu.Unlock()
	s.wg.Done()
}

// Go runs fn as a task. context.Canceled is treated as a clean stop.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.enter(name)
	go func() {
		defer s.leave(name)
		if err := s.call(name, fn); err != nil && !errors.Is(err, context.Canceled) {
			s.record(fmt.Errorf("%s: %w", name, err))
			if s.cancelOnErr {
				s.cancel()
			}
		}
		s.log.Debug("task stopped", logx.String("name", name))
	}()
}

// Go0 is Go for tasks that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked",
				logx.String("name", name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	floor, ceil  time.Duration
	limit        int // 0 means unlimited
	exitIsDone   bool
	publishFirst bool
}

// WithRestartBackoff bounds the doubling delay between restarts.
func WithRestartBackoff(floor, ceil time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if floor > 0 {
			p.floor = floor
		}
		if ceil > 0 {
			p.ceil = ceil
		}
	}
}

// WithMaxRestarts caps restarts. The first run is not a restart.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.limit = n } }

// WithPublishFirstError surfaces the first failure through Err while the
// task keeps restarting.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.publishFirst = enabled }
}

// WithStopOnCleanExit treats a nil return as done. On by default.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.exitIsDone = enabled }
}

func (p restartPolicy) delay(base time.Duration) time.Duration {
	d := min(base, p.ceil)
	if j := int64(d / 5); j > 0 {
		d += time.Duration(rand.Int64N(j + 1))
	}
	return d
}

// GoRestart keeps fn running until the context ends, backing off between
// failed runs.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{floor: 250 * time.Millisecond, ceil: 30 * time.Second, exitIsDone: true}
	for _, o := range opts {
		o(&p)
	}
	p.ceil = max(p.ceil, p.floor)

	s.Go0(name, func(ctx context.Context) {
		base := p.floor
		for restarts := 0; ; restarts++ {
			began := time.Now()
			err := s.call(name, fn)
			switch {
			case ctx.Err() != nil || errors.Is(err, context.Canceled):
				return
			case err == nil && p.exitIsDone:
				return
			case err == nil:
				err = errors.New("exited")
			}
			if p.publishFirst {
				s.record(fmt.Errorf("%s: %w", name, err))
			}
			if p.limit > 0 && restarts >= p.limit {
				s.log.Error("task gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				return
			}
			if time.Since(began) >= healthyRun {
				base = p.floor
			}
			wait := p.delay(base)
			s.log.Warn("task restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			base = min(base*2, p.ceil)
		}
	})
}

func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every task has returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.idleOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.idle)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.idle:
		return s.Err()
	}
}

func (s *Supervisor) record(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}
