package adapter

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"trendbot/internal/media"
	"trendbot/internal/present"
	"trendbot/internal/publish"
	kit "trendbot/internal/transport"
	"trendbot/pkg/tgui"
)

// Destination binds card delivery to one chat (and forum topic).
func (a *Adapter) Destination(to kit.ChatTarget) publish.Destination {
	return &destination{a: a, to: to}
}

type destination struct {
	a  *Adapter
	to kit.ChatTarget
}

func (d *destination) Name() string { return "telegram:" + d.to.String() }

// Check resolves the chat through getChat. Unset or malformed ids and chats
// the Bot API refuses are reported as configuration errors; anything else
// (network, 5xx, flood wait) is returned as is.
func (d *destination) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := d.a.recipient(d.to)
	if err == nil && chat.Username == "" {
		_, err = d.a.bot.ChatByID(chat.ID)
	}
	if chatMisconfigured(err) {
		return media.Misconfigured("telegram.chat_id", err)
	}
	return err
}

// chatMisconfigured reports errors that retrying cannot fix: a missing or
// malformed id, an unknown chat, a revoked token or a chat the bot was
// removed from.
func chatMisconfigured(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoChat) || errors.Is(err, ErrBadChatID) {
		return true
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 400, 401, 403:
			return true
		}
	}
	return false
}

func (d *destination) SendHeading(ctx context.Context, text string) error {
	_, err := d.a.SendText(ctx, d.to, tgui.B(text).String(), &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
	return err
}

// SendCards posts the chunk as consecutive runs in ranking order: adjacent
// cards with images go out as one album (a single photo for a run of one),
// adjacent cards without images as one text message. When a later run fails
// the cards of the earlier runs are reported through *publish.PartialError.
func (d *destination) SendCards(ctx context.Context, cards []present.DisplayCard) error {
	if len(cards) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := d.a.recipient(d.to)
	if err != nil {
		return err
	}
	so := &tele.SendOptions{ParseMode: tele.ModeHTML, ThreadID: d.to.ThreadID}

	sent := 0
	for _, run := range splitCards(cards) {
		if err := d.sendRun(ctx, chat, run, so); err != nil {
			if sent == 0 {
				return err
			}
			return &publish.PartialError{Delivered: sent, Err: err}
		}
		sent += run.size()
	}
	return nil
}

func (d *destination) sendRun(ctx context.Context, chat *tele.Chat, run cardRun, so *tele.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case len(run.album) == 1:
		_, err := d.a.bot.Send(chat, run.album[0], so)
		return err
	case len(run.album) > 1:
		_, err := d.a.bot.SendAlbum(chat, run.album, so)
		return err
	}
	_, err := d.a.SendText(ctx, d.to, strings.Join(run.texts, "\n\n"), &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
	return err
}

// cardRun holds either photos or text blocks, never both.
type cardRun struct {
	album tele.Album
	texts []string
}

func (r cardRun) size() int { return len(r.album) + len(r.texts) }

func splitCards(cards []present.DisplayCard) []cardRun {
	var runs []cardRun
	for _, c := range cards {
		photo := c.ImageURL != ""
		if n := len(runs); n == 0 || (len(runs[n-1].album) > 0) != photo {
			runs = append(runs, cardRun{})
		}
		last := &runs[len(runs)-1]
		if !photo {
			last.texts = append(last.texts, cardHTML(c, textLimit))
			continue
		}
		last.album = append(last.album, &tele.Photo{
			File:    tele.FromURL(c.ImageURL),
			Caption: cardHTML(c, captionLimit),
		})
	}
	return runs
}

// cardHTML renders a card as Telegram HTML within limit runes. Only the
// summary is shortened; title and detail lines are always kept.
func cardHTML(c present.DisplayCard, limit int) string {
	head := tgui.B(c.Heading).String()
	var lines strings.Builder
	for _, l := range c.Lines {
		lines.WriteString("\n" + tgui.Field(l.Label, l.Value).String())
	}
	tail := lines.String()

	summary := c.Summary
	budget := limit - tgui.RuneLen(head) - tgui.RuneLen(tail) - 2
	if tgui.RuneLen(tgui.Esc(summary).String()) > budget {
		summary = tgui.TruncEscaped(summary, budget)
	}
	if summary == "" {
		return head + tail
	}
	return head + "\n" + tgui.Esc(summary).String() + "\n" + tail
}
