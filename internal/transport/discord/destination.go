package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"trendbot/internal/media"
	"trendbot/internal/present"
	"trendbot/internal/publish"
	kit "trendbot/internal/transport"
)

// Embed limits enforced by the Discord API.
const (
	embedTitleLimit       = 256
	embedDescriptionLimit = 4096
	fieldNameLimit        = 256
	fieldValueLimit       = 1024
	maxEmbedFields        = 25
)

func (a *Adapter) Destination(to kit.ChatTarget) publish.Destination {
	return &destination{a: a, channelID: to.ChatID}
}

type destination struct {
	a         *Adapter
	channelID string
}

func (d *destination) Name() string { return "discord:" + d.channelID }

// Check looks the channel up, which fails for unknown channels and ones the
// bot cannot see.
func (d *destination) Check(ctx context.Context) error {
	if d.channelID == "" {
		return media.Misconfigured("discord.channel_id", ErrNoChannel)
	}
	_, err := d.a.api.Channel(d.channelID, discordgo.WithContext(ctx))
	if channelMisconfigured(err) {
		return media.Misconfigured("discord.channel_id", err)
	}
	return err
}

// channelMisconfigured reports REST rejections that retrying cannot fix.
func channelMisconfigured(err error) bool {
	var re *discordgo.RESTError
	if !errors.As(err, &re) || re.Response == nil {
		return false
	}
	switch re.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func (d *destination) SendHeading(ctx context.Context, text string) error {
	_, err := d.a.api.ChannelMessageSend(d.channelID, "**"+truncate(text, messageLimit-4)+"**", discordgo.WithContext(ctx))
	return err
}

// SendCards posts one message carrying one embed per card.
func (d *destination) SendCards(ctx context.Context, cards []present.DisplayCard) error {
	if len(cards) == 0 {
		return nil
	}
	embeds := make([]*discordgo.MessageEmbed, 0, len(cards))
	for _, c := range cards {
		embeds = append(embeds, cardEmbed(c))
	}
	_, err := d.a.api.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{Embeds: embeds}, discordgo.WithContext(ctx))
	return err
}

func cardEmbed(c present.DisplayCard) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       truncate(c.Heading, embedTitleLimit),
		Description: truncate(c.Summary, embedDescriptionLimit),
		Color:       c.Accent,
		Fields:      make([]*discordgo.MessageEmbedField, 0, len(c.Lines)),
	}
	for _, l := range c.Lines {
		if len(e.Fields) == maxEmbedFields {
			break
		}
		value := l.Value
		if value == "" {
			value = present.NotAvailable
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   truncate(l.Label, fieldNameLimit),
			Value:  truncate(value, fieldValueLimit),
			Inline: true,
		})
	}
	if c.ImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: c.ImageURL}
	}
	return e
}
