package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"trendbot/internal/cycle"
	logx "trendbot/pkg/logx"
)

// ManualRunner starts a manual cycle and reports it back through rep.
type ManualRunner interface {
	Manual(ctx context.Context, trigger string, rep cycle.Reporter) error
}

func (a *Adapter) registerCommand(s *discordgo.Session, appID string) {
	cmd := &discordgo.ApplicationCommand{
		Name:        a.cfg.CommandName,
		Description: "Post the trending digest now",
	}
	if _, err := s.ApplicationCommandCreate(appID, a.cfg.GuildID, cmd); err != nil {
		a.log.Warn("slash command registration failed", logx.String("command", cmd.Name), logx.String("guild", a.cfg.GuildID), logx.Err(err))
		return
	}
	a.log.Info("slash command registered", logx.String("command", cmd.Name), logx.String("guild", a.cfg.GuildID))
}

func (a *Adapter) handleInteraction(i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.ApplicationCommandData().Name != a.cfg.CommandName {
		return
	}
	a.mu.Lock()
	ctx, runner := a.ctx, a.runner
	a.mu.Unlock()
	if runner == nil {
		return
	}
	// A rejected trigger is already answered through the reporter.
	_ = runner.Manual(ctx, cycle.TriggerDiscord, &interactionReporter{api: a.api, i: i, log: a.log})
}

// interactionReporter defers the interaction response and delivers the
// summary as a followup. Without a deferral it answers directly.
type interactionReporter struct {
	api session
	i   *discordgo.Interaction
	log logx.Logger

	mu       sync.Mutex
	deferred bool
}

func (r *interactionReporter) Acknowledge(ctx context.Context) error {
	err := r.api.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err == nil {
		r.mu.Lock()
		r.deferred = true
		r.mu.Unlock()
	}
	return err
}

func (r *interactionReporter) Report(ctx context.Context, rep cycle.Report) error {
	text := truncate(rep.Summary(), messageLimit)
	r.mu.Lock()
	deferred := r.deferred
	r.mu.Unlock()
	if !deferred {
		return r.api.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: text},
		}, discordgo.WithContext(ctx))
	}
	_, err := r.api.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{Content: text}, discordgo.WithContext(ctx))
	return err
}
