package transport

import (
	"context"
	"strconv"

	"trendbot/internal/publish"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	Chat         ChatTarget
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget addresses a chat. ChatID is a Telegram chat id or @username, or
// a Discord channel snowflake. ThreadID is a Telegram forum topic (0 if none).
type ChatTarget struct {
	ChatID   string
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == "" }

func (t ChatTarget) String() string {
	if t.ThreadID == 0 {
		return t.ChatID
	}
	return t.ChatID + "/" + strconv.Itoa(t.ThreadID)
}

type MessageRef struct {
	Chat      ChatTarget
	MessageID string
}

type SendOptions struct {
	// ParseMode is "HTML" or empty for plain text. Discord ignores it.
	ParseMode      string
	DisablePreview bool
}

type Notification struct {
	Priority int // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// Adapter is the outbound surface shared by every chat platform.
type Adapter interface {
	Name() string
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error

	// Destination binds card delivery to one chat.
	Destination(to ChatTarget) publish.Destination
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
