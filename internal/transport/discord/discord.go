// Package discord delivers cards as embeds and serves the /trending slash
// command through a discordgo gateway session.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

const (
	messageLimit = 2000
	// DefaultCommand is the slash command name.
	DefaultCommand = "trending"
)

type Config struct {
	Token            string
	GuildID          string
	RegisterCommands bool
	CommandName      string
}

// session is the subset of *discordgo.Session the adapter calls.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger

	dg  *discordgo.Session // nil in tests
	api session

	mu      sync.Mutex
	running bool
	ctx     context.Context
	runner  ManualRunner
	removes []func()
}

var ErrNoChannel = errors.New("discord: channel id is not set")

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.CommandName == "" {
		cfg.CommandName = DefaultCommand
	}
	dg, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	return &Adapter{cfg: cfg, log: log, dg: dg, api: dg, ctx: context.Background()}, nil
}

func newWithSession(cfg Config, api session, log logx.Logger) *Adapter {
	if cfg.CommandName == "" {
		cfg.CommandName = DefaultCommand
	}
	return &Adapter{cfg: cfg, log: log, api: api, ctx: context.Background()}
}

func (a *Adapter) Name() string { return "discord" }

// Start opens the gateway. Interactions for the slash command are handed to
// runner; the command is registered once the session is ready.
func (a *Adapter) Start(ctx context.Context, runner ManualRunner) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.ctx = ctx
	a.runner = runner
	if a.dg == nil {
		a.running = true
		return nil
	}

	a.removes = append(a.removes,
		a.dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			a.log.Info("gateway ready", logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))
			if a.cfg.RegisterCommands {
				a.registerCommand(s, r.User.ID)
			}
		}),
		a.dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			a.handleInteraction(i.Interaction)
		}),
	)
	if err := a.dg.Open(); err != nil {
		for _, rm := range a.removes {
			rm()
		}
		a.removes = nil
		return err
	}
	a.running = true
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	for _, rm := range a.removes {
		rm()
	}
	a.removes = nil
	if a.dg == nil {
		return nil
	}
	a.log.Info("closing gateway")
	return a.dg.Close()
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if to.IsZero() {
		return kit.MessageRef{}, ErrNoChannel
	}
	var first kit.MessageRef
	for i, part := range splitText(text, messageLimit) {
		m, err := a.api.ChannelMessageSend(to.ChatID, part, discordgo.WithContext(ctx))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{Chat: to, MessageID: m.ID}
		}
	}
	return first, nil
}

// EditText replaces a message; text over the limit is cut.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	_, err := a.api.ChannelMessageEdit(ref.Chat.ChatID, ref.MessageID, truncate(text, messageLimit), discordgo.WithContext(ctx))
	return err
}

// splitText cuts text into parts of at most limit runes, preferring line breaks.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for len(rs) > 0 {
		end := min(limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[:end]), "\n"))
		rs = rs[end:]
	}
	return out
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}
