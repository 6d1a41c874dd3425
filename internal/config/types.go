package config

import "strings"

// Config is the whole bot configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "6h").
// Booleans that default to true are pointers so an explicit false survives
// defaulting.
type Config struct {
	Platform    string            `json:"platform,omitempty" validate:"omitempty,oneof=telegram discord"`
	Telegram    TelegramConfig    `json:"telegram"`
	Discord     DiscordConfig     `json:"discord"`
	Destination DestinationConfig `json:"destination"`
	Sources     SourcesConfig     `json:"sources"`
	Enrich      EnrichConfig      `json:"enrich"`
	Schedule    ScheduleConfig    `json:"schedule"`
	Alerts      AlertsConfig      `json:"alerts"`
	Logging     LoggingConfig     `json:"logging"`
	HTTP        HTTPConfig        `json:"http"`
	Storage     StorageConfig     `json:"storage"`
}

type TelegramConfig struct {
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty" validate:"omitempty,duration"`
}

type DiscordConfig struct {
	Token            string `json:"token,omitempty"`
	GuildID          string `json:"guild_id,omitempty"`
	RegisterCommands *bool  `json:"register_commands,omitempty"`
	CommandName      string `json:"command_name,omitempty" validate:"omitempty,min=1,max=32,lowercase"`
}

// DestinationConfig is where the trending digest is posted.
//
// A missing channel id is not a load error; the cycle checks it and skips.
type DestinationConfig struct {
	ChannelID       string `json:"channel_id,omitempty"`
	ThreadID        int    `json:"thread_id,omitempty"`
	MaxCardsPerCall int    `json:"max_cards_per_call,omitempty" validate:"omitempty,min=1,max=10"`
	SendInterval    string `json:"send_interval,omitempty" validate:"omitempty,duration"`
}

type SourcesConfig struct {
	Limit       int           `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
	HTTPTimeout string        `json:"http_timeout,omitempty" validate:"omitempty,duration"`
	TMDB        TMDBConfig    `json:"tmdb"`
	Trakt       TraktConfig   `json:"trakt"`
	AniList     AniListConfig `json:"anilist"`
	Breaker     BreakerConfig `json:"breaker"`
}

type TMDBConfig struct {
	APIKey       string `json:"api_key,omitempty"`
	BaseURL      string `json:"base_url,omitempty" validate:"omitempty,url"`
	ImageBaseURL string `json:"image_base_url,omitempty" validate:"omitempty,url"`
	Window       string `json:"window,omitempty" validate:"omitempty,oneof=day week"`
}

type TraktConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" validate:"omitempty,url"`
	Trending   bool   `json:"trending,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"omitempty,min=1,max=100"`
}

// AniListConfig selects the anime season. An empty season is derived from the
// current date.
type AniListConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Endpoint   string `json:"endpoint,omitempty" validate:"omitempty,url"`
	Season     string `json:"season,omitempty" validate:"omitempty,oneof=WINTER SPRING SUMMER FALL"`
	SeasonYear int    `json:"season_year,omitempty" validate:"omitempty,min=1940,max=2100"`
}

type BreakerConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Failures    int    `json:"failures,omitempty" validate:"omitempty,min=1,max=100"`
	OpenTimeout string `json:"open_timeout,omitempty" validate:"omitempty,duration"`
}

type EnrichConfig struct {
	Enabled     *bool       `json:"enabled,omitempty"`
	Concurrency int         `json:"concurrency,omitempty" validate:"omitempty,min=1,max=32"`
	Cache       CacheConfig `json:"cache"`
}

// CacheConfig controls the lookup cache shared by detail and watcher lookups.
type CacheConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=memory redis none"`
	Addr        string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password    string `json:"password,omitempty"`
	DB          int    `json:"db,omitempty" validate:"omitempty,min=0,max=15"`
	DetailsTTL  string `json:"details_ttl,omitempty" validate:"omitempty,duration"`
	WatchersTTL string `json:"watchers_ttl,omitempty" validate:"omitempty,duration"`
}

type ScheduleConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	PostTime string `json:"post_time,omitempty" validate:"omitempty,hhmm"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,tz"`
}

// AlertsConfig controls ops alerts for cycles that did not finish cleanly.
type AlertsConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty" validate:"omitempty,duration"`
	RatePerMin  int    `json:"rate_per_min,omitempty" validate:"omitempty,min=1,max=600"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty" validate:"omitempty,loglevel"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingChat forwards warnings (and above) to the alerts channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled,omitempty"`
	MinLevel   string `json:"min_level,omitempty" validate:"omitempty,loglevel"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"omitempty,min=1,max=50"`
}

// HTTPConfig controls the ops HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8089").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	RatePerMin    int    `json:"rate_per_min,omitempty" validate:"omitempty,min=1,max=100000"`

	ReadTimeout  string `json:"read_timeout,omitempty" validate:"omitempty,duration"`
	WriteTimeout string `json:"write_timeout,omitempty" validate:"omitempty,duration"`
	IdleTimeout  string `json:"idle_timeout,omitempty" validate:"omitempty,duration"`
}

// StorageConfig controls the optional cycle journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./trendbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=none file sqlite"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"omitempty,duration"`
}

const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
)

// BoolOr returns *p, or def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func boolPtr(v bool) *bool { return &v }

// ApplyDefaults fills every zero field with its documented default.
// It is idempotent.
func (c *Config) ApplyDefaults() {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Platform == "" {
		if strings.TrimSpace(c.Discord.Token) != "" && strings.TrimSpace(c.Telegram.Token) == "" {
			c.Platform = PlatformDiscord
		} else {
			c.Platform = PlatformTelegram
		}
	}

	setStr(&c.Telegram.PollTimeout, "10s")
	if c.Discord.RegisterCommands == nil {
		c.Discord.RegisterCommands = boolPtr(true)
	}
	setStr(&c.Discord.CommandName, "trending")

	c.Destination.ChannelID = strings.TrimSpace(c.Destination.ChannelID)
	setInt(&c.Destination.MaxCardsPerCall, 10)
	setStr(&c.Destination.SendInterval, "1s")

	s := &c.Sources
	setInt(&s.Limit, 10)
	setStr(&s.HTTPTimeout, "15s")
	setStr(&s.TMDB.BaseURL, "https://api.themoviedb.org/3")
	setStr(&s.TMDB.ImageBaseURL, "https://image.tmdb.org/t/p/w500")
	setStr(&s.TMDB.Window, "week")
	setStr(&s.Trakt.BaseURL, "https://api.trakt.tv")
	setInt(&s.Trakt.RatePerSec, 3)
	if s.AniList.Enabled == nil {
		s.AniList.Enabled = boolPtr(true)
	}
	setStr(&s.AniList.Endpoint, "https://graphql.anilist.co")
	s.AniList.Season = strings.ToUpper(strings.TrimSpace(s.AniList.Season))
	if s.Breaker.Enabled == nil {
		s.Breaker.Enabled = boolPtr(true)
	}
	setInt(&s.Breaker.Failures, 3)
	setStr(&s.Breaker.OpenTimeout, "2m")

	if c.Enrich.Enabled == nil {
		c.Enrich.Enabled = boolPtr(true)
	}
	setInt(&c.Enrich.Concurrency, 4)
	setStr(&c.Enrich.Cache.Driver, "memory")
	setStr(&c.Enrich.Cache.DetailsTTL, "6h")
	setStr(&c.Enrich.Cache.WatchersTTL, "10m")

	if c.Schedule.Enabled == nil {
		c.Schedule.Enabled = boolPtr(true)
	}
	setStr(&c.Schedule.PostTime, "12:00")

	setStr(&c.Alerts.DedupWindow, "30m")
	setInt(&c.Alerts.RatePerMin, 6)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	setStr(&c.Logging.Level, "info")
	if c.Logging.Console == nil {
		c.Logging.Console = boolPtr(true)
	}
	setStr(&c.Logging.Chat.MinLevel, "warn")
	setInt(&c.Logging.Chat.RatePerSec, 1)

	setStr(&c.HTTP.Addr, "127.0.0.1:8089")
	setInt(&c.HTTP.RatePerMin, 60)

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	setStr(&c.Storage.Driver, "none")
	setStr(&c.Storage.BusyTimeout, "1s")
}

// PlatformToken returns the bot token for the active platform.
func (c *Config) PlatformToken() string {
	if c.Platform == PlatformDiscord {
		return strings.TrimSpace(c.Discord.Token)
	}
	return strings.TrimSpace(c.Telegram.Token)
}

func setStr(p *string, def string) {
	if strings.TrimSpace(*p) == "" {
		*p = def
	}
}

func setInt(p *int, def int) {
	if *p == 0 {
		*p = def
	}
}
