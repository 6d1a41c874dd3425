package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"trendbot/internal/cycle"
	kit "trendbot/internal/transport"
	"trendbot/pkg/tgui"
)

// CycleRunner is the part of cycle.Runner the chat commands use.
type CycleRunner interface {
	Manual(ctx context.Context, trigger string, rep cycle.Reporter) error
	Last() (cycle.Report, bool)
	Running() bool
}

// PostClock reports the next scheduled post (zero when disabled).
type PostClock interface {
	NextPost(now time.Time) time.Time
}

const ackText = "⏳ Running trending cycle..."

// TrendingCommands returns /trending (alias /now) and /status.
func TrendingCommands(runner CycleRunner, clock PostClock) []Command {
	return []Command{
		{
			Name:        "trending",
			Aliases:     []string{"now"},
			Description: "post the trending digest now",
			Usage:       "/trending",
			Access:      AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle: func(ctx context.Context, req *Request) error {
				err := runner.Manual(ctx, cycle.TriggerTelegram, NewChatReporter(req.Adapter, req.Chat))
				if errors.Is(err, cycle.ErrCycleRunning) {
					// already reported to the chat as skipped
					return nil
				}
				return err
			},
		},
		{
			Name:        "status",
			Description: "last cycle and next post",
			Usage:       "/status",
			Access:      AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle: func(ctx context.Context, req *Request) error {
				msg := tgui.Message{
					Text: StatusText(runner, clock, time.Now()),
					Opt:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
				}
				_, err := msg.Send(ctx, req.Adapter, req.Chat)
				return err
			},
		},
	}
}

// StatusText renders /status in Telegram HTML.
func StatusText(runner CycleRunner, clock PostClock, now time.Time) string {
	b := tgui.New().Title("📊", "Status")
	if runner.Running() {
		b.Field("Cycle", "running")
	} else {
		b.Field("Cycle", "idle")
	}

	next := time.Time{}
	if clock != nil {
		next = clock.NextPost(now)
	}
	if next.IsZero() {
		b.Field("Next post", "disabled")
	} else {
		b.Field("Next post", next.Format("2006-01-02 15:04 MST"))
	}

	last, ok := runner.Last()
	if !ok {
		return b.Field("Last cycle", "none yet").String()
	}
	b.Line("Last cycle " + shortID(last.ID) + " at " + last.StartedAt.In(now.Location()).Format("2006-01-02 15:04") + ":")
	return b.Pre(last.Summary()).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ChatReporter acknowledges a manual trigger with a message and edits it
// into the final summary.
type ChatReporter struct {
	ad   kit.Adapter
	chat kit.ChatTarget

	mu  sync.Mutex
	ack kit.MessageRef
}

func NewChatReporter(ad kit.Adapter, chat kit.ChatTarget) *ChatReporter {
	return &ChatReporter{ad: ad, chat: chat}
}

func (r *ChatReporter) Acknowledge(ctx context.Context) error {
	ref, err := r.ad.SendText(ctx, r.chat, ackText, nil)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.ack = ref
	r.mu.Unlock()
	return nil
}

// Report edits the acknowledgement, or sends a new message when there is
// none or the edit fails.
func (r *ChatReporter) Report(ctx context.Context, rep cycle.Report) error {
	text := rep.Summary()
	r.mu.Lock()
	ack := r.ack
	r.mu.Unlock()
	if ack.MessageID != "" {
		if err := r.ad.EditText(ctx, ack, text, nil); err == nil {
			return nil
		}
	}
	_, err := r.ad.SendText(ctx, r.chat, text, nil)
	return err
}
