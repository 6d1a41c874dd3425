package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "trendbot/internal/runtime/supervisor"
	kit "trendbot/internal/transport"
	logx "trendbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Router dispatches incoming chat commands to a bounded worker pool.
type Router struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases -> command
	ordered  []Command
	owners   []int64

	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands: map[string]*Command{},
		owners:   slices.Clone(owners),
		log:      log,
		adapter:  adapter,
		jobs:     make(chan func(), 64),
	}
}

// SetOwners updates the owner list. Safe during hot reload.
func (m *Router) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Router) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.owners)
}

// SetRegistry replaces the command set and pushes the menu to the platform
// when the adapter supports it. /help is always present.
func (m *Router) SetRegistry(ctx context.Context, cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Description: "list commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Adapter.SendText(ctx, req.Chat, m.helpText(), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return err
		},
	})

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		ordered = append(ordered, cc)
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = &cc
				}
			}
		}
	}

	m.mu.Lock()
	m.commands = byName
	m.ordered = ordered
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, buildMenuCommands(ordered)); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
	}
}

func (m *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop reads updates until ctx ends or updates is closed.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := range workers {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage {
				m.routeMessage(ctx, up)
			}
		}
	}
}

func (m *Router) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	if job != nil {
		job()
	}
}

// parseCommand splits "/name@bot arg..." into the command name and args.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return word, parts[1:], true
}

func (m *Router) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	m.mu.RLock()
	cmd, found := m.commands[word]
	m.mu.RUnlock()
	if !found {
		// Group chats carry other bots' commands; only answer in private.
		if !msg.IsGroup {
			_, _ = m.adapter.SendText(root, msg.Chat, "unknown command, try /help", nil)
		}
		return
	}

	if !allowed(cmd.Access, msg.FromID, m.ownersSnapshot()) {
		_, _ = m.adapter.SendText(root, msg.Chat, "unauthorized", nil)
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:  up,
		Chat:    msg.Chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("chat", msg.Chat.String()),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

// allowed applies owner-only access. An empty owner list opens every command.
func allowed(access Access, id int64, owners []int64) bool {
	if access != AccessOwnerOnly || len(owners) == 0 {
		return true
	}
	return slices.Contains(owners, id)
}
