package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// CommandHello is the liveness command.
const CommandHello = "hello"

// Commands returns the guild slash commands the bot serves.
func Commands() []*discordgo.ApplicationCommand {
	var styles []*discordgo.ApplicationCommandOptionChoice
	for _, s := range []ticket.ControlStyle{ticket.StylePrimary, ticket.StyleSecondary, ticket.StyleSuccess, ticket.StyleDanger} {
		styles = append(styles, &discordgo.ApplicationCommandOptionChoice{Name: string(s), Value: string(s)})
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandHello,
			Description: "Say hello to the bot",
		},
		{
			Name:        ticket.CommandPostTicketForm,
			Description: "Post a ticket form in the forms channel",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "title", Description: "Form title", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Form description", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "style", Description: "Button style", Required: true, Choices: styles},
				{Type: discordgo.ApplicationCommandOptionString, Name: "channel_prefix", Description: "Prefix of the ticket channel names", Required: true},
			},
		},
	}
}

// RegisterCommands replaces the home guild's slash commands with cmds.
// Must be called after Connect.
func (a *Adapter) RegisterCommands(ctx context.Context, cmds []*discordgo.ApplicationCommand) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("discord: not connected")
	}

	appID := a.sess.ApplicationID()
	if appID == "" {
		return fmt.Errorf("discord: application id is unknown")
	}
	err := a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ApplicationCommandBulkOverwrite(appID, a.guildID, cmds)
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	a.logger.Info().Int("count", len(cmds)).Msg("slash commands registered")
	return nil
}
