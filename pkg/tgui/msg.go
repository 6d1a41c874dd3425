package tgui

import (
	"context"
	"strings"

	kit "trendbot/internal/transport"
)

// Message is a rendered UI payload: text + send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send sends the Message via the provided adapter.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Edit replaces the text of the message referred by ref.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder assembles an HTML message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	lines []string
}

func New() *Builder { return &Builder{} }

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e := strings.TrimSpace(emoji); e != "" {
		return b.RawLine(Esc(e).String() + " " + B(t).String())
	}
	return b.RawLine(B(t).String())
}

// Line adds a single escaped line.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		s = ""
	}
	return b.RawLine(Esc(s).String())
}

// RawLine appends a line without escaping. Only use if you know what you're doing.
func (b *Builder) RawLine(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.RawLine("") }

// Field adds a "<b>Label:</b> value" row.
func (b *Builder) Field(label, value string) *Builder {
	label = strings.TrimSpace(label)
	if label == "" {
		return b
	}
	return b.RawLine(Field(label, strings.TrimSpace(value)).String())
}

// Pre adds a preformatted block.
func (b *Builder) Pre(code string) *Builder {
	code = strings.TrimRight(code, "\n")
	if code == "" {
		return b
	}
	return b.RawLine(Pre(code).String())
}

// String is the joined HTML text.
func (b *Builder) String() string {
	return strings.Trim(strings.Join(b.lines, "\n"), "\n")
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	return Message{
		Text: b.String(),
		Opt:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
	}
}
