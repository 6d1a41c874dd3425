package config

import (
	"reflect"
	"sort"
	"strings"

	logx "trendbot/pkg/logx"
)

// restartSections cannot be applied live; a change is only logged.
var restartSections = map[string]bool{
	"platform": true,
	"telegram": true,
	"discord":  true,
	"sources":  true,
	"enrich":   true,
	"storage":  true,
}

// SummarizeConfigChange returns (1) the sorted list of changed sections,
// (2) safe structured attrs for logging (never secrets like tokens or keys),
// and (3) the subset of changed sections that need a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if oldCfg.Platform != newCfg.Platform {
		mark("platform", logx.String("platform", newCfg.Platform))
	}

	// never log tokens
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		mark("telegram",
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
		)
	}
	if oldCfg.Discord.Token != newCfg.Discord.Token ||
		oldCfg.Discord.GuildID != newCfg.Discord.GuildID ||
		oldCfg.Discord.CommandName != newCfg.Discord.CommandName ||
		BoolOr(oldCfg.Discord.RegisterCommands, true) != BoolOr(newCfg.Discord.RegisterCommands, true) {
		mark("discord",
			logx.String("discord.guild_id", newCfg.Discord.GuildID),
			logx.String("discord.command_name", newCfg.Discord.CommandName),
			logx.Bool("discord.token_set", newCfg.Discord.Token != ""),
		)
	}

	if oldCfg.Destination != newCfg.Destination {
		mark("destination",
			logx.String("destination.channel_id", newCfg.Destination.ChannelID),
			logx.Int("destination.max_cards_per_call", newCfg.Destination.MaxCardsPerCall),
			logx.String("destination.send_interval", newCfg.Destination.SendInterval),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sources, newCfg.Sources) {
		mark("sources",
			logx.Int("sources.limit", newCfg.Sources.Limit),
			logx.String("sources.http_timeout", newCfg.Sources.HTTPTimeout),
			logx.Bool("sources.tmdb_key_set", newCfg.Sources.TMDB.APIKey != ""),
			logx.Bool("sources.trakt_key_set", newCfg.Sources.Trakt.APIKey != ""),
			logx.Bool("sources.anilist_enabled", BoolOr(newCfg.Sources.AniList.Enabled, true)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Enrich, newCfg.Enrich) {
		mark("enrich",
			logx.Bool("enrich.enabled", BoolOr(newCfg.Enrich.Enabled, true)),
			logx.Int("enrich.concurrency", newCfg.Enrich.Concurrency),
			logx.String("enrich.cache_driver", newCfg.Enrich.Cache.Driver),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		mark("schedule",
			logx.Bool("schedule.enabled", BoolOr(newCfg.Schedule.Enabled, true)),
			logx.String("schedule.post_time", newCfg.Schedule.PostTime),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}

	if oldCfg.Alerts != newCfg.Alerts {
		mark("alerts",
			logx.Bool("alerts.enabled", newCfg.Alerts.Enabled),
			logx.String("alerts.dedup_window", newCfg.Alerts.DedupWindow),
			logx.Int("alerts.rate_per_min", newCfg.Alerts.RatePerMin),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	// compare the token by presence only
	oh, nh := oldCfg.HTTP, newCfg.HTTP
	oh.Token, nh.Token = tokenMarker(oh.Token), tokenMarker(nh.Token)
	if oh != nh {
		mark("http",
			logx.Bool("http.enabled", nh.Enabled),
			logx.String("http.addr", nh.Addr),
			logx.Bool("http.token_set", nh.Token != ""),
			logx.Bool("http.pprof", nh.Pprof),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	sort.Strings(changed)
	restart := make([]string, 0, len(changed))
	for _, s := range changed {
		if restartSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}

func tokenMarker(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return ""
	}
	return "set"
}
