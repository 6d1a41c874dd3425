package app

import (
	"context"
	"strings"
	"time"

	"trendbot/internal/config"
	"trendbot/internal/eventbus"
	logx "trendbot/pkg/logx"
)

// reloadLoop fans a validated config out to the live-reloadable components.
// Sections that need a restart are only logged.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strs("sections", restart))
	}
	if destinationTarget(prev) != destinationTarget(next) {
		a.log.Warn("destination channel changed; restart required",
			logx.String("channel_id", next.Destination.ChannelID),
			logx.Int("thread_id", next.Destination.ThreadID),
		)
	}

	// logging first so the lines below honor the new level
	a.logs.Apply(mapLoggingConfig(next))

	if a.cmdm != nil {
		a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	}

	a.sched.Apply(mapScheduleConfig(next))
	a.pub.Apply(mapPublishSettings(next))

	prevNotif := a.notif.Enabled()
	ncfg := mapNotifierConfig(next)
	a.notif.Apply(ncfg)
	switch {
	case prevNotif && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotif && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}

	a.http.Reconfigure(ctx, mapHTTPConfig(next))

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
