package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "trendbot/pkg/logx"
)

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, job: job}
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
	return s
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) State() State { return State(s.state.Load()) }

// Apply swaps the config. A timezone change restarts the cron ticker in the
// new location; a post time change takes effect on the next tick.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.applyLocked(cfg)
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

func (s *Service) applyLocked(cfg Config) {
	s.cfg = cfg
	s.loc = s.loadLocationLocked()
	h, m, err := parseHHMM(cfg.PostTime)
	s.hour, s.minute, s.postOK = h, m, err == nil
	if err != nil && cfg.Enabled {
		s.log.Warn("invalid post time; daily trigger disabled", logx.String("post_time", cfg.PostTime), logx.Err(err))
	}
}

// Start begins minute ticks. The job runs with ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("service started",
		logx.String("tz", s.loc.String()),
		logx.String("post_time", s.cfg.PostTime),
		logx.Bool("enabled", s.cfg.Enabled),
	)
}

func (s *Service) startLocked() {
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := s.c.AddFunc(minuteSpec, func() { s.Tick(s.runContext(), time.Now()) })
	if err != nil {
		s.log.Error("schedule register failed", logx.String("spec", minuteSpec), logx.Err(err))
	}
	s.entryID = id
	s.c.Start()
}

// restartLocked does not wait for an in-flight job; SkipIfStillRunning is
// per cron instance, and the minute guard still prevents a double post.
func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
	}
	s.startLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()))
}

// Stop halts ticking and waits for a running job until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entryID = 0
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Tick fires the job if now is the post minute and that minute has not fired
// yet. It reports whether the job ran.
func (s *Service) Tick(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	if !s.cfg.Enabled || !s.postOK || s.job == nil {
		s.mu.Unlock()
		return false
	}
	local := now.In(s.loc)
	if local.Hour() != s.hour || local.Minute() != s.minute {
		s.mu.Unlock()
		return false
	}
	key := local.Format("2006-01-02 15:04")
	if key == s.lastKey {
		s.mu.Unlock()
		return false
	}
	s.lastKey = key
	s.lastFired = now
	job := s.job
	s.mu.Unlock()

	s.state.Store(int32(StateTriggering))
	defer s.state.Store(int32(StateIdle))
	s.fired.Add(1)

	s.log.Info("post time reached", logx.String("minute", key))
	err := job(ctx)
	if err != nil {
		s.log.Warn("scheduled job failed", logx.String("minute", key), logx.Err(err))
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return true
}

// NextPost returns the next post instant strictly after now, or the zero
// time when the trigger is disabled.
func (s *Service) NextPost(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || !s.postOK {
		return time.Time{}
	}
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

func (s *Service) locLocked() *time.Location {
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q (out of range)", s)
	}
	return hour, minute, nil
}
