package adapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "trendbot/internal/runtime/supervisor"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Offline skips the getMe handshake. Used by tests.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu  sync.Mutex
	sup *rtsup.Supervisor // non-nil while polling
	out chan<- kit.Update

	dropped atomic.Uint64

	chatMu sync.Mutex
	chats  map[string]*tele.Chat // @username -> resolved chat

	menuMu   sync.Mutex
	menuHash uint64
}

var (
	ErrNoChat    = errors.New("telegram: chat id is not set")
	ErrBadChatID = errors.New("telegram: chat id is neither numeric nor @username")
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, chats: map[string]*tele.Chat{}}
	b.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := updateFromMessage(c.Message()); ok {
			a.forward(up)
		}
		return nil
	})
	return a, nil
}

func (a *Adapter) Name() string { return "telegram" }

func updateFromMessage(m *tele.Message) (kit.Update, bool) {
	if m == nil || m.Chat == nil {
		return kit.Update{}, false
	}
	msg := &kit.Message{
		ID: m.ID,
		Chat: kit.ChatTarget{
			ChatID:   strconv.FormatInt(m.Chat.ID, 10),
			ThreadID: m.ThreadID,
		},
		Text:    m.Text,
		IsGroup: m.Chat.Type != tele.ChatPrivate,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return kit.Update{Kind: kit.UpdateMessage, Message: msg}, true
}

// forward hands an update to the current consumer, counting it as dropped
// when the channel is full.
func (a *Adapter) forward(up kit.Update) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

// Start begins long polling and forwards text messages to out.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	if a.sup != nil {
		a.mu.Unlock()
		return nil
	}
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.sup, a.out = sup, out
	a.mu.Unlock()

	sup.Go0("updates.drops", func(c context.Context) {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		defer a.reportDrops(cap(out))
		for {
			select {
			case <-c.Done():
				return
			case <-tick.C:
				a.reportDrops(cap(out))
			}
		}
	})
	// bot.Stop blocks until the poller acknowledges, so it never runs on a
	// supervised task.
	context.AfterFunc(sup.Context(), func() { go a.bot.Stop() })
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return c.Err()
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDrops(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

// Stop cancels polling and waits at most two seconds for the poller, since
// getUpdates may still be long-polling.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup, a.out = nil, nil
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.dropped.Load()))
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	switch err := sup.Wait(wctx); {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("telegram stop timed out", logx.Err(err))
	default:
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// recipient resolves a chat target. Numeric ids are used as is; @usernames
// are looked up once and cached.
func (a *Adapter) recipient(to kit.ChatTarget) (*tele.Chat, error) {
	raw := strings.TrimSpace(to.ChatID)
	if raw == "" {
		return nil, ErrNoChat
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &tele.Chat{ID: id}, nil
	}
	if !strings.HasPrefix(raw, "@") {
		return nil, fmt.Errorf("%w: %q", ErrBadChatID, raw)
	}

	a.chatMu.Lock()
	defer a.chatMu.Unlock()
	if c, ok := a.chats[raw]; ok {
		return c, nil
	}
	c, err := a.bot.ChatByUsername(raw)
	if err != nil {
		return nil, fmt.Errorf("telegram: resolve %s: %w", raw, err)
	}
	a.chats[raw] = c
	return c, nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chat, err := a.recipient(to)
	if err != nil {
		return kit.MessageRef{}, err
	}
	so := sendOptions(to, opt)
	chunks := splitMessage(text, textLimit, strings.EqualFold(so.ParseMode, tele.ModeHTML))

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{Chat: to, MessageID: strconv.Itoa(msg.ID)}
		}
	}
	return first, nil
}

// EditText replaces a sent message. Overflow beyond one message is sent as
// new messages below it.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	chat, err := a.recipient(ref.Chat)
	if err != nil {
		return err
	}
	so := sendOptions(ref.Chat, opt)
	chunks := splitMessage(text, textLimit, strings.EqualFold(so.ParseMode, tele.ModeHTML))

	edit := &tele.SendOptions{ParseMode: so.ParseMode, DisableWebPagePreview: so.DisableWebPagePreview}
	stored := tele.StoredMessage{MessageID: ref.MessageID, ChatID: chat.ID}
	if _, err := a.bot.Edit(stored, chunks[0], edit); err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, so); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMenuCommands sets the bot's command menu. It only calls Telegram
// when the list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	menu := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		menu = append(menu, tele.Command{Text: c.Command, Description: d})
		if len(menu) >= 100 {
			break
		}
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}
