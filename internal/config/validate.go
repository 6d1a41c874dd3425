package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			_, _, err := ParseHHMM(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			_, err := ParseDurationField(fl.FieldName(), fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("tz", func(fl validator.FieldLevel) bool {
			_, err := ScheduleConfig{Timezone: fl.Field().String()}.Location()
			return err == nil
		})
		_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
			switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
			case "trace", "debug", "info", "warn", "warning", "error":
				return true
			}
			return false
		})
		validate = v
	})
	return validate
}

// ParseHHMM parses a 24h "HH:MM" wall clock time.
func ParseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:MM %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Validate checks a config that already had defaults applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", trimNamespace(fe.Namespace()), fe.Tag(), redact(fe)))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if cfg.PlatformToken() == "" {
		errs = append(errs, fmt.Errorf("%s.token: required for platform %q", cfg.Platform, cfg.Platform))
	}
	if strings.TrimSpace(cfg.Sources.TMDB.APIKey) == "" {
		errs = append(errs, errors.New("sources.tmdb.api_key: required"))
	}
	if cfg.Enrich.Cache.Driver == "redis" && strings.TrimSpace(cfg.Enrich.Cache.Addr) == "" {
		errs = append(errs, errors.New("enrich.cache.addr: required for redis driver"))
	}
	if cfg.Storage.Driver != "none" && strings.TrimSpace(cfg.Storage.Path) == "" {
		errs = append(errs, fmt.Errorf("storage.path: required for %s driver", cfg.Storage.Driver))
	}
	if cfg.Alerts.Enabled && strings.TrimSpace(cfg.Alerts.ChannelID) == "" {
		errs = append(errs, errors.New("alerts.channel_id: required when alerts are enabled"))
	}
	return errors.Join(errs...)
}

// ValidatorHook adapts Validate to ConfigManager.SetValidator.
func ValidatorHook(_ context.Context, cfg *Config) error { return Validate(cfg) }

func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func redact(fe validator.FieldError) any {
	name := strings.ToLower(fe.Field())
	if strings.Contains(name, "token") || strings.Contains(name, "key") || strings.Contains(name, "password") {
		return "<redacted>"
	}
	return fe.Value()
}
