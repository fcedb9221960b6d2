package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// ticketPermissions is what the ticket owner and responder roles may do in a
// ticket channel.
const ticketPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks

var _ ticket.Platform = (*Adapter)(nil)

// ChannelExists reports whether the channel can still be fetched.
func (a *Adapter) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	err := a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.Channel(channelID)
		return apiErr
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, wrap("channel", err)
}

// CreateChannel creates a private text channel under spec.ParentID. The
// @everyone role, whose ID equals the guild ID, is denied access.
func (a *Adapter) CreateChannel(ctx context.Context, spec ticket.ChannelSpec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{{
		ID:   a.guildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionViewChannel,
	}}
	for _, id := range spec.MemberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: id, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketPermissions,
		})
	}
	for _, id := range spec.RoleIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketPermissions,
		})
	}

	var ch *discordgo.Channel
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		ch, apiErr = a.sess.GuildChannelCreateComplex(a.guildID, discordgo.GuildChannelCreateData{
			Name:                 spec.Name,
			Type:                 discordgo.ChannelTypeGuildText,
			ParentID:             spec.ParentID,
			PermissionOverwrites: overwrites,
		})
		return apiErr
	})
	if err != nil {
		return "", wrap("create channel", err)
	}
	return ch.ID, nil
}

// DeleteChannel deletes a channel.
func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	return wrap("delete channel", a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelDelete(channelID)
		return apiErr
	}))
}

// ChannelURL returns the web link to a channel of the home guild.
func (a *Adapter) ChannelURL(channelID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", a.guildID, channelID)
}

// Send posts msg and returns the new message ID.
func (a *Adapter) Send(ctx context.Context, channelID string, msg ticket.OutboundMessage) (string, error) {
	data := a.buildMessageSend(channelID, msg)
	var sent *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		sent, apiErr = a.sess.ChannelMessageSendComplex(channelID, data)
		return apiErr
	})
	if err != nil {
		return "", wrap("send message", err)
	}
	return sent.ID, nil
}

// FetchMessage checks that a message still exists.
func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) error {
	return wrap("fetch message", a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelMessage(channelID, messageID)
		return apiErr
	}))
}

// EditControls replaces the buttons of a message. An empty control set
// removes every button.
func (a *Adapter) EditControls(ctx context.Context, channelID, messageID string, controls []ticket.Control) error {
	components := buildComponents(controls)
	edit := discordgo.NewMessageEdit(channelID, messageID)
	edit.Components = &components
	return wrap("edit controls", a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelMessageEditComplex(edit)
		return apiErr
	}))
}

// DeleteMessage deletes a message.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return wrap("delete message", a.retryOnRateLimit(ctx, func() error {
		return a.sess.ChannelMessageDelete(channelID, messageID)
	}))
}

// PinMessage pins a message in its channel.
func (a *Adapter) PinMessage(ctx context.Context, channelID, messageID string) error {
	return wrap("pin message", a.retryOnRateLimit(ctx, func() error {
		return a.sess.ChannelMessagePin(channelID, messageID)
	}))
}

// buildMessageSend translates an OutboundMessage into a Discord MessageSend.
func (a *Adapter) buildMessageSend(channelID string, msg ticket.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{
		Content:    msg.Content,
		Components: buildComponents(msg.Controls),
	}
	if msg.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{buildEmbed(msg.Embed)}
	}
	if msg.ReplyTo != "" {
		data.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyTo,
			ChannelID: channelID,
			GuildID:   a.guildID,
		}
	}
	return data
}

func buildEmbed(e *ticket.Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	return embed
}

// buildComponents lays the controls out on a single action row. It never
// returns nil so that an edit with no controls clears the row.
func buildComponents(controls []ticket.Control) []discordgo.MessageComponent {
	if len(controls) == 0 {
		return []discordgo.MessageComponent{}
	}
	row := discordgo.ActionsRow{}
	for _, c := range controls {
		b := discordgo.Button{
			Label: c.Label,
			Style: buttonStyle(c.Style),
		}
		if c.Style == ticket.StyleLink {
			b.URL = c.URL
		} else {
			b.CustomID = c.CustomID
		}
		if c.Emoji != "" {
			b.Emoji = &discordgo.ComponentEmoji{Name: c.Emoji}
		}
		row.Components = append(row.Components, b)
	}
	return []discordgo.MessageComponent{row}
}

func buttonStyle(s ticket.ControlStyle) discordgo.ButtonStyle {
	switch s {
	case ticket.StyleSecondary:
		return discordgo.SecondaryButton
	case ticket.StyleSuccess:
		return discordgo.SuccessButton
	case ticket.StyleDanger:
		return discordgo.DangerButton
	case ticket.StyleLink:
		return discordgo.LinkButton
	default:
		return discordgo.PrimaryButton
	}
}
