package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// interaction answers one Discord interaction. Discord accepts exactly one
// initial response per interaction; everything after it goes out as a
// followup message.
type interaction struct {
	a     *Adapter
	ix    *discordgo.Interaction
	actor ticket.Actor

	mu    sync.Mutex
	acked bool
}

var _ ticket.Interaction = (*interaction)(nil)

func newInteraction(a *Adapter, ix *discordgo.Interaction) *interaction {
	return &interaction{a: a, ix: ix, actor: actorFor(ix)}
}

func (i *interaction) Actor() ticket.Actor { return i.actor }

// claim marks the interaction acknowledged and reports whether it already was.
func (i *interaction) claim() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	was := i.acked
	i.acked = true
	return was
}

func (i *interaction) release() {
	i.mu.Lock()
	i.acked = false
	i.mu.Unlock()
}

// Ephemeral responds with a message only the actor sees.
func (i *interaction) Ephemeral(ctx context.Context, content string) (ticket.Prompt, error) {
	if i.claim() {
		var msg *discordgo.Message
		err := i.a.retryOnRateLimit(ctx, func() error {
			var apiErr error
			msg, apiErr = i.a.sess.FollowupMessageCreate(i.ix, true, &discordgo.WebhookParams{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			})
			return apiErr
		})
		if err != nil {
			return nil, wrap("ephemeral followup", err)
		}
		return &prompt{a: i.a, ix: i.ix, followupID: msg.ID}, nil
	}

	err := i.a.retryOnRateLimit(ctx, func() error {
		return i.a.sess.InteractionRespond(i.ix, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
	})
	if err != nil {
		i.release()
		return nil, wrap("ephemeral response", err)
	}
	return &prompt{a: i.a, ix: i.ix}, nil
}

// Respond answers with a public message in the interaction's channel.
func (i *interaction) Respond(ctx context.Context, msg ticket.OutboundMessage) error {
	var embeds []*discordgo.MessageEmbed
	if msg.Embed != nil {
		embeds = []*discordgo.MessageEmbed{buildEmbed(msg.Embed)}
	}
	components := buildComponents(msg.Controls)

	if i.claim() {
		return wrap("followup", i.a.retryOnRateLimit(ctx, func() error {
			_, apiErr := i.a.sess.FollowupMessageCreate(i.ix, true, &discordgo.WebhookParams{
				Content:    msg.Content,
				Embeds:     embeds,
				Components: components,
			})
			return apiErr
		}))
	}

	err := i.a.retryOnRateLimit(ctx, func() error {
		return i.a.sess.InteractionRespond(i.ix, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    msg.Content,
				Embeds:     embeds,
				Components: components,
			},
		})
	})
	if err != nil {
		i.release()
		return wrap("respond", err)
	}
	return nil
}

// Defer acknowledges the interaction without a visible answer. It is a
// no-op once the interaction has been answered.
func (i *interaction) Defer(ctx context.Context) error {
	if i.claim() {
		return nil
	}
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if i.ix.Type == discordgo.InteractionApplicationCommand {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		}
	}
	err := i.a.retryOnRateLimit(ctx, func() error {
		return i.a.sess.InteractionRespond(i.ix, resp)
	})
	if err != nil {
		i.release()
		return wrap("defer", err)
	}
	return nil
}

// prompt deletes an ephemeral answer: the original response, or a followup
// when followupID is set.
type prompt struct {
	a          *Adapter
	ix         *discordgo.Interaction
	followupID string
}

func (p *prompt) Dismiss(ctx context.Context) error {
	return wrap("dismiss", p.a.retryOnRateLimit(ctx, func() error {
		if p.followupID != "" {
			return p.a.sess.FollowupMessageDelete(p.ix, p.followupID)
		}
		return p.a.sess.InteractionResponseDelete(p.ix)
	}))
}
