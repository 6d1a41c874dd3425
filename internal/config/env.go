package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win. A missing default ".env" is
// not an error; a missing explicit path is.
func LoadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with environment values. Empty values are ignored.
//
// BOT_TOKEN is the legacy single-token variable; it only fills the token of
// the resolved platform when that token is still empty.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("DISCORD_BOT_TOKEN"); ok {
		cfg.Discord.Token = v
	}
	if v, ok := get("TELEGRAM_BOT_TOKEN"); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get("TMDB_API_KEY"); ok {
		cfg.Sources.TMDB.APIKey = v
	}
	if v, ok := get("TRAKT_API_KEY"); ok {
		cfg.Sources.Trakt.APIKey = v
	}
	if v, ok := get("CHANNEL_ID"); ok {
		cfg.Destination.ChannelID = v
	}
	if v, ok := get("POST_TIME"); ok {
		cfg.Schedule.PostTime = v
	}
	if v, ok := get("PLATFORM"); ok {
		cfg.Platform = strings.ToLower(v)
	}
	if v, ok := get("TIMEZONE"); ok {
		cfg.Schedule.Timezone = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		cfg.Enrich.Cache.Addr = v
		if strings.TrimSpace(cfg.Enrich.Cache.Driver) == "" {
			cfg.Enrich.Cache.Driver = "redis"
		}
	}

	if v, ok := get("BOT_TOKEN"); ok {
		platform := strings.ToLower(strings.TrimSpace(cfg.Platform))
		switch {
		case platform == PlatformDiscord:
			if cfg.Discord.Token == "" {
				cfg.Discord.Token = v
			}
		case platform == PlatformTelegram || cfg.Discord.Token == "":
			if cfg.Telegram.Token == "" {
				cfg.Telegram.Token = v
			}
		}
	}
}
