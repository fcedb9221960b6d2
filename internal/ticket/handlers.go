package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CommandPostTicketForm is the administrative command that posts an intake form.
const CommandPostTicketForm = "post_ticket_form"

const (
	noPermissionNote = "You do not have permission to use this command."
	formGoneNote     = "This form is no longer active."
)

// Register wires the manager's handlers into d.
func (m *Manager) Register(d *Dispatcher) {
	d.HandleControl(string(SideTicket), m.handlePanelControl)
	d.HandleControl(string(SideNotification), m.handlePanelControl)
	d.HandleControl(intakePrefix, m.handleIntake)
	d.HandleCommand(CommandPostTicketForm, m.handlePostTicketForm)
}

// handlePanelControl routes a panel button to its transition. A control
// rendered for a state the panel has left is acknowledged and ignored.
func (m *Manager) handlePanelControl(ctx context.Context, ev Event) error {
	ix := ev.Interaction
	side, action, state, err := ParseCustomID(ev.CustomID)
	if err != nil {
		m.ack(ctx, ix)
		return err
	}

	m.mu.Lock()
	p, ok := m.reg.panels[ev.MessageID]
	current := StateClosed
	if ok {
		current = p.state
	}
	m.mu.Unlock()
	if !ok || p.Side != side || current != state {
		m.logger.Debug().Str("custom_id", ev.CustomID).Str("message_id", ev.MessageID).
			Str("panel_state", string(current)).Msg("ignoring stale control")
		m.ack(ctx, ix)
		return nil
	}

	switch action {
	case ActionRequestClose:
		err = m.RequestClose(ctx, ev.MessageID, ix)
	case ActionCancel:
		err = m.Cancel(ctx, ev.MessageID, ix)
	case ActionConfirm:
		err = m.Confirm(ctx, ev.MessageID, ix)
	case ActionCallForHelp:
		err = m.CallForHelp(ctx, ev.MessageID, ix)
	default:
		m.ack(ctx, ix)
		return fmt.Errorf("ticket: unknown action %q", action)
	}
	if errors.Is(err, ErrStaleControl) || errors.Is(err, ErrNotFound) {
		m.logger.Debug().Err(err).Str("custom_id", ev.CustomID).Msg("control absorbed")
		m.ack(ctx, ix)
		return nil
	}
	return err
}

func (m *Manager) handleIntake(ctx context.Context, ev Event) error {
	_, err := m.OpenTicket(ctx, ev.MessageID, ev.Interaction)
	if errors.Is(err, ErrNotFound) {
		m.notify(ctx, ev.Interaction, formGoneNote, defaultFormAckTTL)
		return nil
	}
	return err
}

// handlePostTicketForm checks privilege before touching anything, then
// posts and records a new intake form.
func (m *Manager) handlePostTicketForm(ctx context.Context, ev Event) error {
	ix := ev.Interaction
	if !m.perms.IsPrivileged(ix.Actor()) {
		m.logger.Warn().Err(ErrForbidden).Str("actor", ix.Actor().ID).Str("command", ev.Command).Msg("command refused")
		m.notify(ctx, ix, noPermissionNote, defaultFormAckTTL)
		return nil
	}

	title := ev.Options["title"]
	style, err := ParseStyle(ev.Options["style"])
	if err != nil {
		m.notify(ctx, ix, err.Error(), defaultFormAckTTL)
		return nil
	}
	form, err := m.PostIntakeForm(ctx, title, ev.Options["description"], style, ev.Options["channel_prefix"])
	if err != nil {
		m.notify(ctx, ix, "Could not post the form.", defaultFormAckTTL)
		return err
	}
	m.notify(ctx, ix, fmt.Sprintf("Form %s was created.", title), defaultFormAckTTL)
	m.logger.Info().Str("actor", ix.Actor().Name).Str("message_id", form.MessageID).Msg("ticket form command")
	return nil
}

// notify sends an ephemeral note that dismisses itself after ttl.
func (m *Manager) notify(ctx context.Context, ix Interaction, content string, ttl time.Duration) {
	prompt, err := ix.Ephemeral(ctx, content)
	if err != nil {
		m.logger.Warn().Err(err).Msg("send ephemeral note")
		return
	}
	m.schedule(ttl, func() { m.dismiss(context.Background(), prompt) })
}

func (m *Manager) ack(ctx context.Context, ix Interaction) {
	if ix == nil {
		return
	}
	if err := ix.Defer(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("ack interaction")
	}
}
