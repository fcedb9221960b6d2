package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// AddRole grants a role to a member of the home guild.
func (a *Adapter) AddRole(ctx context.Context, userID, roleID string) error {
	return wrap("add role", a.retryOnRateLimit(ctx, func() error {
		return a.sess.GuildMemberRoleAdd(a.guildID, userID, roleID)
	}))
}

// MemberCount returns the approximate member count of the home guild.
func (a *Adapter) MemberCount(ctx context.Context) (int, error) {
	var g *discordgo.Guild
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		g, apiErr = a.sess.GuildWithCounts(a.guildID)
		return apiErr
	})
	if err != nil {
		return 0, wrap("member count", err)
	}
	return g.ApproximateMemberCount, nil
}

// RenameChannel sets a channel's name.
func (a *Adapter) RenameChannel(ctx context.Context, channelID, name string) error {
	return wrap("rename channel", a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name})
		return apiErr
	}))
}
