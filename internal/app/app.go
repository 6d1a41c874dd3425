package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trendbot/internal/aggregate"
	"trendbot/internal/config"
	"trendbot/internal/cycle"
	"trendbot/internal/enrich"
	"trendbot/internal/eventbus"
	"trendbot/internal/notifier"
	"trendbot/internal/observability/httpapi"
	"trendbot/internal/present"
	"trendbot/internal/publish"
	rtsup "trendbot/internal/runtime/supervisor"
	"trendbot/internal/source"
	"trendbot/internal/storage"
	"trendbot/internal/task/scheduler"
	kit "trendbot/internal/transport"
	"trendbot/internal/transport/discord"
	telegram "trendbot/internal/transport/telegram/adapter"
	"trendbot/internal/transport/telegram/router"
	logx "trendbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	cache enrich.Cache

	adapter kit.Adapter
	tg      *telegram.Adapter
	dc      *discord.Adapter
	cmdm    *router.Router
	updates chan kit.Update

	sources   []source.Source
	agg       *aggregate.Aggregator
	presenter present.Presenter
	pub       *publish.Publisher

	runner *cycle.Runner
	sched  *scheduler.Service
	notif  *notifier.Service
	http   *httpapi.Service
}

// NewApp loads config and builds every component that does not need a
// running context. envPath may be empty (".env" if present).
func NewApp(cfgPath, envPath string) (*App, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.ValidatorHook)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     eventbus.New(),
		updates: make(chan kit.Update, 64),
	}
	fail := func(err error) (*App, error) {
		a.closeResources()
		return nil, err
	}

	a.store, err = storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}

	openCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	a.cache, err = enrich.OpenCache(openCtx, mapCacheOptions(cfg))
	cancel()
	if err != nil {
		return fail(fmt.Errorf("enrich cache: %w", err))
	}

	p := newProviders(cfg)
	a.sources = p.sources(cfg, log.With(logx.String("comp", "breaker")))
	if len(a.sources) == 0 {
		return fail(errors.New("no sources configured"))
	}
	var enricher aggregate.Enricher
	if config.BoolOr(cfg.Enrich.Enabled, true) {
		enricher = p.enricher(cfg, a.cache, log.With(logx.String("comp", "enrich")))
	}
	a.agg = aggregate.New(enricher, cfg.Sources.Limit, log.With(logx.String("comp", "aggregate")))
	a.presenter = present.New(cfg.Sources.TMDB.ImageBaseURL)

	if err := a.buildPlatform(cfg); err != nil {
		return fail(err)
	}

	chunk, interval := mapPublishSettings(cfg)
	a.pub = publish.New(a.adapter.Destination(destinationTarget(cfg)), publish.Options{
		ChunkSize: chunk,
		Interval:  interval,
		Log:       log.With(logx.String("comp", "publish")),
	})

	a.log.Info("app built",
		logx.String("platform", cfg.Platform),
		logx.Int("sources", len(a.sources)),
		logx.String("storage", cfg.Storage.Driver),
		logx.String("cache", cfg.Enrich.Cache.Driver),
	)
	return a, nil
}

func (a *App) buildPlatform(cfg *config.Config) error {
	switch cfg.Platform {
	case config.PlatformDiscord:
		dc, err := discord.New(discord.Config{
			Token:            cfg.Discord.Token,
			GuildID:          cfg.Discord.GuildID,
			RegisterCommands: config.BoolOr(cfg.Discord.RegisterCommands, true),
			CommandName:      cfg.Discord.CommandName,
		}, a.log.With(logx.String("comp", "discord")))
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		a.dc, a.adapter = dc, dc
	default:
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: config.Dur(cfg.Telegram.PollTimeout, 10*time.Second),
		}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		a.tg, a.adapter = tg, tg
		a.cmdm = router.New(a.log.With(logx.String("comp", "commands")), tg, cfg.Telegram.OwnerUserIDs)
	}
	return nil
}

// Done is closed when the app context ends, including after a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Runner exposes the cycle runner once the app has started.
func (a *App) Runner() *cycle.Runner { return a.runner }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.runner = cycle.NewRunner(cycle.Options{
		Sources:    a.sources,
		Aggregator: a.agg,
		Presenter:  a.presenter,
		Publisher:  a.pub,
		Enrich:     config.BoolOr(cfg.Enrich.Enabled, true),
		Supervisor: a.sup,
		Bus:        a.bus,
		Store:      a.store,
		Log:        a.log.With(logx.String("comp", "cycle")),
	})
	a.sched = scheduler.New(mapScheduleConfig(cfg), a.scheduledCycle, a.log.With(logx.String("comp", "scheduler")))
	a.notif = notifier.New(mapNotifierConfig(cfg), a.adapter, a.log.With(logx.String("comp", "notifier")), a.bus, a.store)
	a.logs.SetChatSender(a.notif.ChatSender())
	a.http = httpapi.New(mapHTTPConfig(cfg), httpapi.Deps{Runner: a.runner, Schedule: a.sched, Tasks: a.sup.Tasks}, a.log)

	switch {
	case a.tg != nil:
		if err := a.tg.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.cmdm.SetRegistry(a.sup.Context(), router.TrendingCommands(a.runner, a.sched))
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.cmdm.DispatchLoop(c, a.updates)
		})
	case a.dc != nil:
		if err := a.dc.Start(a.sup.Context(), a.runner); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
	}

	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())
	a.http.Start(a.sup.Context())

	// Keep this debug-level; every cycle emits two events.
	events, unsub := a.bus.Subscribe(32)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("adapter", a.adapter.Name()),
		logx.Time("next_post", a.sched.NextPost(time.Now())),
	)
	return nil
}

// scheduledCycle waits for any manual cycle to finish so the daily post is
// never dropped.
func (a *App) scheduledCycle(ctx context.Context) error {
	rep, err := a.runner.Run(ctx, cycle.TriggerSchedule)
	if err != nil {
		return err
	}
	if rep.Outcome == cycle.OutcomeFailed || rep.Outcome == cycle.OutcomeSkipped {
		if rep.Err != nil {
			return rep.Err
		}
		return fmt.Errorf("cycle %s", rep.Outcome)
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops and an in-flight cycle start unwinding.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "httpapi", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "notifier", time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.closeResources()
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. fn must honor its context.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		// never extend the caller's deadline
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close failed", logx.Err(err))
		}
		a.cache = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
		a.logs = nil
	}
}
