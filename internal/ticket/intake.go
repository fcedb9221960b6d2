package ticket

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/ticketyard/internal/store"
)

var channelNameInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// ChannelName builds the ticket channel name from the form prefix and the
// actor's name, in the lowercase dash-separated form Discord uses for text
// channels.
func ChannelName(prefix, actorName string) string {
	raw := strings.ToLower(strings.TrimSpace(prefix) + "-" + strings.TrimSpace(actorName))
	name := channelNameInvalid.ReplaceAllString(raw, "-")
	name = strings.Trim(name, "-")
	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" {
		name = "ticket"
	}
	return name
}

// PostIntakeForm posts a new intake form in the forms channel and records it.
func (m *Manager) PostIntakeForm(ctx context.Context, title, description string, style ControlStyle, prefix string) (*IntakeForm, error) {
	if m.formsChannelID == "" {
		return nil, fmt.Errorf("ticket: forms channel is not configured")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("ticket: channel prefix is required")
	}
	form := &IntakeForm{
		ChannelID:     m.formsChannelID,
		Label:         m.formLabel,
		Style:         style,
		ChannelPrefix: prefix,
	}
	msgID, err := m.platform.Send(ctx, form.ChannelID, OutboundMessage{
		Embed:    &Embed{Title: title, Description: description},
		Controls: form.Render(),
	})
	if err != nil {
		return nil, fmt.Errorf("ticket: post intake form: %w", err)
	}
	form.MessageID = msgID

	if err := m.store.Append(ctx, store.KindIntakeForm, store.Record{
		MessageID:     form.MessageID,
		ChannelID:     form.ChannelID,
		Label:         form.Label,
		Style:         string(form.Style),
		ChannelPrefix: form.ChannelPrefix,
	}); err != nil {
		m.logger.Error().Err(err).Str("message_id", msgID).Msg("persist intake form")
	}

	m.mu.Lock()
	m.reg.forms[form.MessageID] = form
	m.mu.Unlock()
	m.logger.Info().Str("message_id", msgID).Str("prefix", prefix).Msg("intake form posted")
	return form, nil
}

// OpenTicket handles an intake form submission: it creates a private ticket
// channel, posts both panels in their Active state, records them and
// acknowledges the actor.
func (m *Manager) OpenTicket(ctx context.Context, formMessageID string, ix Interaction) (*Session, error) {
	m.mu.Lock()
	form, ok := m.reg.forms[formMessageID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: intake form %s", ErrNotFound, formMessageID)
	}

	actor := ix.Actor()
	log := m.logger.With().Str("actor", actor.Name).Str("prefix", form.ChannelPrefix).Logger()

	channelID, err := m.platform.CreateChannel(ctx, ChannelSpec{
		Name:      ChannelName(form.ChannelPrefix, actor.Name),
		ParentID:  m.ticketsCategoryID,
		MemberIDs: []string{actor.ID},
		RoleIDs:   m.responderRoleIDs,
	})
	if err != nil {
		m.reportOpenFailure(ctx, ix)
		return nil, fmt.Errorf("ticket: create channel: %w", err)
	}

	notif := &Panel{
		Side:            SideNotification,
		ChannelID:       m.notificationsChannelID,
		TicketChannelID: channelID,
		viewURL:         m.platform.ChannelURL(channelID),
		state:           StateActive,
	}
	notif.MessageID, err = m.platform.Send(ctx, notif.ChannelID, OutboundMessage{
		Embed: &Embed{
			Title:        "New Ticket",
			Description:  fmt.Sprintf("%s opened a new ticket with prefix %s\n\n<#%s>", actor.Mention(), form.ChannelPrefix, channelID),
			ThumbnailURL: actor.AvatarURL,
		},
		Controls: notif.Render(),
	})
	if err != nil {
		m.deleteChannel(ctx, channelID)
		m.reportOpenFailure(ctx, ix)
		return nil, fmt.Errorf("ticket: post notification panel: %w", err)
	}

	tp := &Panel{
		Side:            SideTicket,
		ChannelID:       channelID,
		TicketChannelID: channelID,
		notifChannelID:  notif.ChannelID,
		notifMessageID:  notif.MessageID,
		state:           StateActive,
	}
	tp.MessageID, err = m.platform.Send(ctx, channelID, OutboundMessage{
		Content: actor.Mention(),
		Embed: &Embed{
			Title:        fmt.Sprintf("Hi %s!", actor.Name),
			Description:  "Thanks for opening a ticket. Staff will contact you soon; please describe your request in detail.\n\nIf nobody answers, press `🔔 Call Staff`.",
			ThumbnailURL: actor.AvatarURL,
		},
		Controls: tp.Render(),
	})
	if err != nil {
		if delErr := m.platform.DeleteMessage(ctx, notif.ChannelID, notif.MessageID); delErr != nil {
			m.logIO(delErr, "delete orphan notification", notif.MessageID)
		}
		m.deleteChannel(ctx, channelID)
		m.reportOpenFailure(ctx, ix)
		return nil, fmt.Errorf("ticket: post ticket panel: %w", err)
	}

	sess := &Session{ID: uuid.New(), TicketChannelID: channelID, Ticket: tp, Notification: notif}
	m.mu.Lock()
	err = m.reg.addSession(sess)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.store.Append(ctx, store.KindNotification, store.Record{
		MessageID:       notif.MessageID,
		ChannelID:       notif.ChannelID,
		TicketChannelID: channelID,
	}); err != nil {
		log.Error().Err(err).Msg("persist notification panel")
	}
	if err := m.store.Append(ctx, store.KindTicket, store.Record{
		MessageID:             tp.MessageID,
		ChannelID:             channelID,
		NotificationID:        notif.MessageID,
		NotificationChannelID: notif.ChannelID,
	}); err != nil {
		log.Error().Err(err).Msg("persist ticket panel")
	}

	if err := m.platform.PinMessage(ctx, channelID, tp.MessageID); err != nil {
		m.logIO(err, "pin ticket panel", tp.MessageID)
	}

	ack, err := ix.Ephemeral(ctx, fmt.Sprintf("Channel <#%s> created.", channelID))
	if err != nil {
		log.Warn().Err(err).Msg("ack ticket creation")
	} else {
		m.schedule(m.ackTTL, func() { m.dismiss(context.Background(), ack) })
	}

	log.Info().Str("session_id", sess.ID.String()).Str("ticket_channel_id", channelID).Msg("ticket opened")
	return sess, nil
}

func (m *Manager) reportOpenFailure(ctx context.Context, ix Interaction) {
	if _, err := ix.Ephemeral(ctx, "Could not open a ticket right now, please try again later."); err != nil {
		m.logger.Warn().Err(err).Msg("report ticket open failure")
	}
}
