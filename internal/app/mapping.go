package app

import (
	"strings"
	"time"

	"trendbot/internal/config"
	"trendbot/internal/enrich"
	"trendbot/internal/notifier"
	"trendbot/internal/observability/httpapi"
	"trendbot/internal/source"
	"trendbot/internal/storage"
	"trendbot/internal/task/scheduler"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: config.BoolOr(l.Console, true),
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Chat: logx.ChatConfig{
			// forwarded lines go to the alerts channel
			Enabled:    l.Chat.Enabled && strings.TrimSpace(cfg.Alerts.ChannelID) != "",
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: config.Dur(cfg.Storage.BusyTimeout, time.Second),
	}
}

func mapCacheOptions(cfg *config.Config) enrich.CacheOptions {
	c := cfg.Enrich.Cache
	return enrich.CacheOptions{
		Driver:   c.Driver,
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

func mapScheduleConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  config.BoolOr(cfg.Schedule.Enabled, true),
		PostTime: cfg.Schedule.PostTime,
		Timezone: cfg.Schedule.Timezone,
	}
}

func destinationTarget(cfg *config.Config) kit.ChatTarget {
	return kit.ChatTarget{ChatID: cfg.Destination.ChannelID, ThreadID: cfg.Destination.ThreadID}
}

func mapPublishSettings(cfg *config.Config) (chunk int, interval time.Duration) {
	return cfg.Destination.MaxCardsPerCall, config.Dur(cfg.Destination.SendInterval, time.Second)
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	a := cfg.Alerts
	return notifier.Config{
		Enabled:      a.Enabled && strings.TrimSpace(a.ChannelID) != "",
		Target:       kit.ChatTarget{ChatID: strings.TrimSpace(a.ChannelID)},
		RatePerMin:   a.RatePerMin,
		RetryMax:     2,
		DedupWindow:  config.Dur(a.DedupWindow, 30*time.Minute),
		PersistDedup: cfg.Storage.Driver != "none",
	}
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	return httpapi.Config{
		Enabled:       h.Enabled,
		Addr:          h.Addr,
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
		RatePerMin:    h.RatePerMin,
		ReadTimeout:   config.Dur(h.ReadTimeout, 10*time.Second),
		WriteTimeout:  config.Dur(h.WriteTimeout, 30*time.Second),
		IdleTimeout:   config.Dur(h.IdleTimeout, 60*time.Second),
	}
}

// providers holds the API clients shared by the sources and the enricher.
type providers struct {
	tmdb    *source.TMDB
	trakt   *source.Trakt
	anilist *source.AniList
}

func newProviders(cfg *config.Config) providers {
	s := cfg.Sources
	c := source.NewClient(config.Dur(s.HTTPTimeout, 15*time.Second))
	var p providers
	if key := strings.TrimSpace(s.TMDB.APIKey); key != "" {
		p.tmdb = source.NewTMDB(c, source.TMDBOptions{APIKey: key, BaseURL: s.TMDB.BaseURL, Window: s.TMDB.Window})
	}
	if key := strings.TrimSpace(s.Trakt.APIKey); key != "" {
		p.trakt = source.NewTrakt(c, source.TraktOptions{APIKey: key, BaseURL: s.Trakt.BaseURL, RatePerSec: s.Trakt.RatePerSec})
	}
	if config.BoolOr(s.AniList.Enabled, true) {
		p.anilist = source.NewAniList(c, source.AniListOptions{
			Endpoint:   s.AniList.Endpoint,
			Season:     s.AniList.Season,
			SeasonYear: s.AniList.SeasonYear,
		})
	}
	return p
}

// sources lists the cycle's sources in registration order: movies, shows,
// then anime. Trakt's own lists follow TMDB's within the same kind.
func (p providers) sources(cfg *config.Config, log logx.Logger) []source.Source {
	var out []source.Source
	if p.tmdb != nil {
		out = append(out, p.tmdb.TrendingMovies())
	}
	if p.trakt != nil && cfg.Sources.Trakt.Trending {
		out = append(out, p.trakt.TrendingMovies())
	}
	if p.tmdb != nil {
		out = append(out, p.tmdb.TrendingShows())
	}
	if p.trakt != nil && cfg.Sources.Trakt.Trending {
		out = append(out, p.trakt.TrendingShows())
	}
	if p.anilist != nil {
		out = append(out, p.anilist)
	}

	b := cfg.Sources.Breaker
	if !config.BoolOr(b.Enabled, true) {
		return out
	}
	opts := source.BreakerOptions{
		Failures:    uint32(max(b.Failures, 1)),
		OpenTimeout: config.Dur(b.OpenTimeout, 2*time.Minute),
		Log:         log,
	}
	for i, src := range out {
		out[i] = source.WithBreaker(src, opts)
	}
	return out
}

func (p providers) enricher(cfg *config.Config, cache enrich.Cache, log logx.Logger) *enrich.Enricher {
	opts := enrich.Options{
		Cache:       cache,
		DetailsTTL:  config.Dur(cfg.Enrich.Cache.DetailsTTL, 6*time.Hour),
		WatchersTTL: config.Dur(cfg.Enrich.Cache.WatchersTTL, 10*time.Minute),
		Concurrency: cfg.Enrich.Concurrency,
		Log:         log,
	}
	// typed nils must not leak into the interfaces
	if p.tmdb != nil {
		opts.Details = p.tmdb
	}
	if p.trakt != nil {
		opts.Watchers = p.trakt
	}
	return enrich.New(opts)
}
