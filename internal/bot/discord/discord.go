// Package discord implements the ticket Platform, the inbound event stream
// and the guild operations for Discord using the Gateway WebSocket.
package discord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/ticket"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// inboundBuffer is the capacity of the event channel.
	inboundBuffer = 100
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	// ApplicationID is the bot's application ID, known once Open returns.
	ApplicationID() string

	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildWithCounts(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error

	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageDelete(interaction *discordgo.Interaction, messageID string, options ...discordgo.RequestOption) error

	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	*discordgo.Session
}

// ApplicationID returns the bot user ID, which Discord uses as the
// application ID of bot applications. The READY packet is handled inside
// Open, so State.User is populated by the time this is called.
func (r *realSession) ApplicationID() string {
	if r.State == nil || r.State.User == nil {
		return ""
	}
	return r.State.User.ID
}

// Adapter connects the ticket manager to one Discord guild.
type Adapter struct {
	sess     session
	botToken string
	guildID  string
	logger   zerolog.Logger

	mu            sync.Mutex
	connected     bool
	closed        bool
	botUserID     string
	inbound       chan ticket.Event
	done          chan struct{}
	removeHandler []func()
	baseBackoff   time.Duration
	maxBackoff    time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string // Discord bot token
	GuildID  string // the home guild; events from other guilds are ignored
	Logger   zerolog.Logger
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.GuildID == "" {
		return nil, fmt.Errorf("discord: guild id is required")
	}

	a := &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		guildID:     opts.GuildID,
		logger:      opts.Logger.With().Str("component", "discord").Logger(),
		inbound:     make(chan ticket.Event, inboundBuffer),
		done:        make(chan struct{}),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	return a, nil
}

// Connect opens the Gateway connection and verifies the home guild.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
		a.sess = &realSession{Session: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		a.logger.Info().Str("user", r.User.Username).Str("user_id", r.User.ID).Msg("connected")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		a.logger.Warn().Msg("gateway disconnected, discordgo will auto-reconnect")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Resumed) {
		a.logger.Info().Msg("gateway session resumed")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	var g *discordgo.Guild
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		g, apiErr = a.sess.Guild(a.guildID)
		return apiErr
	})
	if err != nil {
		_ = a.sess.Close()
		return fmt.Errorf("discord: home guild %s: %w", a.guildID, err)
	}
	a.logger.Info().Str("guild", g.Name).Str("guild_id", g.ID).Msg("home guild found")

	a.connected = true
	return nil
}

// Listen starts delivering interactions and member changes as ticket events.
// The returned channel is never closed; stop reading when ctx is done.
// Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan ticket.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}

	a.removeHandler = append(a.removeHandler,
		a.sess.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
			a.handleInteraction(ic)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
			a.handleMember(ticket.EventMemberJoined, m.Member)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
			a.handleMember(ticket.EventMemberLeft, m.Member)
		}),
	)
	return a.inbound, nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removeHandler {
		remove()
	}
	a.removeHandler = nil
	close(a.done)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// fromOtherAuthor reports whether msg was posted by someone other than the
// bot. Controls on such messages are not ours to answer.
func (a *Adapter) fromOtherAuthor(msg *discordgo.Message) bool {
	if msg == nil || msg.Author == nil {
		return false
	}
	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()
	return botID != "" && msg.Author.ID != botID
}

// emit hands ev to the event loop. It blocks while the buffer is full so
// that no interaction is dropped, and gives up once the adapter is closed.
func (a *Adapter) emit(ev ticket.Event) {
	select {
	case a.inbound <- ev:
	case <-a.done:
	}
}

// handleInteraction converts a component click or slash command into an event.
func (a *Adapter) handleInteraction(ic *discordgo.InteractionCreate) {
	if ic.Interaction == nil || ic.GuildID != a.guildID {
		return
	}
	ix := newInteraction(a, ic.Interaction)

	switch ic.Type {
	case discordgo.InteractionMessageComponent:
		data := ic.MessageComponentData()
		if a.fromOtherAuthor(ic.Message) {
			a.logger.Debug().Str("custom_id", data.CustomID).Str("author_id", ic.Message.Author.ID).
				Msg("ignoring control on foreign message")
			return
		}
		ev := ticket.Event{
			Kind:        ticket.EventKindForControl(data.CustomID),
			CustomID:    data.CustomID,
			ChannelID:   ic.ChannelID,
			Interaction: ix,
		}
		if ic.Message != nil {
			ev.MessageID = ic.Message.ID
		}
		a.emit(ev)

	case discordgo.InteractionApplicationCommand:
		data := ic.ApplicationCommandData()
		opts := make(map[string]string, len(data.Options))
		for _, o := range data.Options {
			opts[o.Name] = optionString(o)
		}
		a.emit(ticket.Event{
			Kind:        ticket.EventCommand,
			Command:     data.Name,
			ChannelID:   ic.ChannelID,
			Options:     opts,
			Interaction: ix,
		})

	default:
		a.logger.Debug().Str("type", ic.Type.String()).Msg("ignoring interaction")
	}
}

func (a *Adapter) handleMember(kind ticket.EventKind, m *discordgo.Member) {
	if m == nil || m.User == nil || m.GuildID != a.guildID {
		return
	}
	if m.User.Bot {
		return
	}
	a.emit(ticket.Event{
		Kind: kind,
		Member: &ticket.Member{
			UserID:   m.User.ID,
			UserName: m.User.Username,
			GuildID:  m.GuildID,
		},
	})
}

func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	if o.Type == discordgo.ApplicationCommandOptionString {
		return o.StringValue()
	}
	return fmt.Sprint(o.Value)
}

// actorFor extracts the invoking user of an interaction.
func actorFor(ix *discordgo.Interaction) ticket.Actor {
	if m := ix.Member; m != nil && m.User != nil {
		return ticket.Actor{
			ID:            m.User.ID,
			Name:          m.User.Username,
			AvatarURL:     m.AvatarURL(""),
			RoleIDs:       m.Roles,
			Administrator: m.Permissions&discordgo.PermissionAdministrator != 0,
		}
	}
	if u := ix.User; u != nil {
		return ticket.Actor{ID: u.ID, Name: u.Username, AvatarURL: u.AvatarURL("")}
	}
	return ticket.Actor{}
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.logger.Warn().Int("attempt", attempt+1).Int("max", maxRetries).Dur("wait", wait).Msg("rate limited, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// isNotFound reports whether err is Discord's answer for a deleted channel,
// message, webhook or interaction.
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage,
			discordgo.ErrCodeUnknownWebhook, discordgo.ErrCodeUnknownInteraction:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// wrap annotates err with op and maps not-found answers onto ticket.ErrNotFound.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("discord: %s: %w (%v)", op, ticket.ErrNotFound, err)
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}
