package ticket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/store"
)

const (
	confirmPrompt     = "Are you sure you want to close this ticket?"
	closedByUserNote  = "🔐 The user closed this ticket"
	channelGoneNote   = "🔐 The ticket channel was deleted"
	closeFailedNote   = "Could not start closing this ticket, please try again."
	defaultHelpTTL    = 20 * time.Second
	defaultAckTTL     = 15 * time.Second
	defaultFormAckTTL = 3 * time.Second
	defaultFormLabel  = "Submit"
)

// Manager owns every live panel, drives the close state machine and keeps
// the session store in step with it.
type Manager struct {
	platform Platform
	store    store.Store
	perms    Permissions
	logger   zerolog.Logger
	schedule func(time.Duration, func())

	notificationsChannelID string
	formsChannelID         string
	ticketsCategoryID      string
	responderRoleIDs       []string
	helpTTL                time.Duration
	ackTTL                 time.Duration
	throttle               time.Duration
	formLabel              string

	mu  sync.Mutex
	reg *registry
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Platform    Platform
	Store       store.Store
	Permissions Permissions // defaults to an empty AllowList (administrators only)
	Logger      zerolog.Logger

	NotificationsChannelID string
	FormsChannelID         string
	TicketsCategoryID      string
	ResponderRoleIDs       []string

	HelpTTL   time.Duration // call-for-help broadcast lifetime; defaults to 20s
	AckTTL    time.Duration // ticket-created acknowledgement lifetime; defaults to 15s
	Throttle  time.Duration // delay between reconciliation re-binds
	FormLabel string        // intake button label; defaults to "Submit"

	// Schedule runs f after d. Defaults to time.AfterFunc.
	Schedule func(d time.Duration, f func())
}

// NewManager creates a Manager with the given options.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("ticket: platform is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("ticket: store is required")
	}
	if opts.NotificationsChannelID == "" {
		return nil, fmt.Errorf("ticket: notifications channel is required")
	}
	m := &Manager{
		platform:               opts.Platform,
		store:                  opts.Store,
		perms:                  opts.Permissions,
		logger:                 opts.Logger.With().Str("component", "ticket").Logger(),
		schedule:               opts.Schedule,
		notificationsChannelID: opts.NotificationsChannelID,
		formsChannelID:         opts.FormsChannelID,
		ticketsCategoryID:      opts.TicketsCategoryID,
		responderRoleIDs:       opts.ResponderRoleIDs,
		helpTTL:                opts.HelpTTL,
		ackTTL:                 opts.AckTTL,
		throttle:               opts.Throttle,
		formLabel:              opts.FormLabel,
		reg:                    newRegistry(),
	}
	if m.perms == nil {
		m.perms = NewAllowList(nil)
	}
	if m.schedule == nil {
		m.schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if m.helpTTL <= 0 {
		m.helpTTL = defaultHelpTTL
	}
	if m.ackTTL <= 0 {
		m.ackTTL = defaultAckTTL
	}
	if m.formLabel == "" {
		m.formLabel = defaultFormLabel
	}
	return m, nil
}

// Panel returns the live panel hosted by messageID, or nil.
func (m *Manager) Panel(messageID string) *Panel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.panels[messageID]
}

// PanelState returns the state of the panel hosted by messageID.
func (m *Manager) PanelState(messageID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.reg.panels[messageID]
	if !ok {
		return "", false
	}
	return p.state, true
}

// Sessions returns a snapshot of every live session.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.snapshot()
}

// Forms returns a copy of every live intake form.
func (m *Manager) Forms() []IntakeForm {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IntakeForm, 0, len(m.reg.forms))
	for _, f := range m.reg.forms {
		out = append(out, *f)
	}
	return out
}

// RequestClose moves a panel from Active to ConfirmingClose: the control set
// is swapped for confirm/cancel and the actor gets an ephemeral prompt.
func (m *Manager) RequestClose(ctx context.Context, messageID string, ix Interaction) error {
	m.mu.Lock()
	p, ok := m.reg.panels[messageID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: panel %s", ErrNotFound, messageID)
	}
	if p.state != StateActive {
		m.mu.Unlock()
		return fmt.Errorf("%w: request-close on %s panel", ErrStaleControl, p.state)
	}
	p.state = StateConfirmingClose
	controls := p.Render()
	m.mu.Unlock()

	if err := m.platform.EditControls(ctx, p.ChannelID, p.MessageID, controls); err != nil {
		if !IsNotFound(err) {
			m.mu.Lock()
			if p.state == StateConfirmingClose {
				p.state = StateActive
			}
			m.mu.Unlock()
			m.notify(ctx, ix, closeFailedNote, defaultFormAckTTL)
			return fmt.Errorf("ticket: request close: %w", err)
		}
		m.logger.Debug().Str("message_id", p.MessageID).Msg("panel host vanished during request-close")
	}

	prompt, err := ix.Ephemeral(ctx, confirmPrompt)
	if err != nil {
		return fmt.Errorf("ticket: request close prompt: %w", err)
	}
	m.mu.Lock()
	if p.state == StateConfirmingClose {
		p.prompt = prompt
		prompt = nil
	}
	m.mu.Unlock()
	if prompt != nil {
		// The panel moved on while the prompt was being sent.
		m.dismiss(ctx, prompt)
	}
	return nil
}

// Cancel moves a panel from ConfirmingClose back to Active, restoring the
// original control set and dismissing the prompt.
func (m *Manager) Cancel(ctx context.Context, messageID string, ix Interaction) error {
	m.mu.Lock()
	p, ok := m.reg.panels[messageID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: panel %s", ErrNotFound, messageID)
	}
	if p.state != StateConfirmingClose {
		m.mu.Unlock()
		return fmt.Errorf("%w: cancel on %s panel", ErrStaleControl, p.state)
	}
	p.state = StateActive
	prompt := p.prompt
	p.prompt = nil
	controls := p.Render()
	m.mu.Unlock()

	if err := m.platform.EditControls(ctx, p.ChannelID, p.MessageID, controls); err != nil && !IsNotFound(err) {
		m.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("restore controls on cancel")
	}
	m.dismiss(ctx, prompt)
	if err := ix.Defer(ctx); err != nil {
		return fmt.Errorf("ticket: cancel ack: %w", err)
	}
	return nil
}

// Confirm closes a panel in ConfirmingClose and propagates the closure to
// its counterpart. The state change is claimed before any I/O so a second
// confirm on the same panel fails the precondition and does nothing.
func (m *Manager) Confirm(ctx context.Context, messageID string, ix Interaction) error {
	m.mu.Lock()
	p, ok := m.reg.panels[messageID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: panel %s", ErrNotFound, messageID)
	}
	if p.state != StateConfirmingClose {
		m.mu.Unlock()
		return fmt.Errorf("%w: confirm on %s panel", ErrStaleControl, p.state)
	}
	sess := m.reg.owners[messageID]
	p.state = StateClosed
	prompt := p.prompt
	p.prompt = nil

	var other *Panel
	var otherPrompt Prompt
	otherWasOpen := false
	if sess != nil {
		other = sess.counterpart(p)
		m.reg.removeSession(sess)
	}
	if other != nil {
		otherWasOpen = other.state != StateClosed
		other.state = StateClosed
		otherPrompt = other.prompt
		other.prompt = nil
	} else if p.Side == SideTicket && p.notifMessageID != "" {
		// The notification panel is not live, but its host message and
		// record may still be.
		other = &Panel{
			Side:            SideNotification,
			ChannelID:       p.notifChannelID,
			MessageID:       p.notifMessageID,
			TicketChannelID: p.TicketChannelID,
			state:           StateClosed,
		}
		otherWasOpen = true
	}
	m.mu.Unlock()

	log := m.logger.With().Str("side", string(p.Side)).Str("ticket_channel_id", p.TicketChannelID).Logger()
	log.Info().Str("actor", ix.Actor().Name).Msg("closing ticket")

	switch p.Side {
	case SideTicket:
		m.closeFromTicket(ctx, p, other, otherWasOpen, prompt, otherPrompt, ix)
	case SideNotification:
		m.closeFromNotification(ctx, p, other, prompt, otherPrompt, ix)
	}
	m.forget(ctx, p, other)
	return nil
}

// closeFromTicket deletes the ticket channel, then posts a closure notice
// under the notification panel and clears its controls.
func (m *Manager) closeFromTicket(ctx context.Context, p, notif *Panel, notifWasOpen bool, prompt, notifPrompt Prompt, ix Interaction) {
	if err := ix.Defer(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("ack confirm")
	}
	m.dismiss(ctx, prompt)
	m.deleteChannel(ctx, p.ChannelID)

	if notif == nil || !notifWasOpen {
		return
	}
	if _, err := m.platform.Send(ctx, notif.ChannelID, OutboundMessage{
		Embed:   &Embed{Description: closedByUserNote},
		ReplyTo: notif.MessageID,
	}); err != nil {
		m.logIO(err, "post closure notice", notif.MessageID)
	}
	m.clearControls(ctx, notif)
	m.dismiss(ctx, notifPrompt)
}

// closeFromNotification deletes the ticket channel, clears the notification
// panel's controls and answers with a public closure notice.
func (m *Manager) closeFromNotification(ctx context.Context, p, ticket *Panel, prompt, ticketPrompt Prompt, ix Interaction) {
	m.deleteChannel(ctx, p.TicketChannelID)
	m.dismiss(ctx, prompt)
	m.dismiss(ctx, ticketPrompt)
	m.clearControls(ctx, p)
	if err := ix.Respond(ctx, OutboundMessage{
		Embed: &Embed{Description: fmt.Sprintf("🔐 %s closed the ticket", ix.Actor().Mention())},
	}); err != nil {
		m.logIO(err, "respond closure notice", p.MessageID)
	}
}

// CallForHelp mentions every responder role in the ticket channel. The
// broadcast deletes itself after the help TTL; the panel state is unchanged.
func (m *Manager) CallForHelp(ctx context.Context, messageID string, ix Interaction) error {
	m.mu.Lock()
	p, ok := m.reg.panels[messageID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: panel %s", ErrNotFound, messageID)
	}
	if p.Side != SideTicket || p.state != StateActive {
		m.mu.Unlock()
		return fmt.Errorf("%w: call-for-help on %s %s panel", ErrStaleControl, p.Side, p.state)
	}
	channelID := p.ChannelID
	m.mu.Unlock()

	mentions := make([]string, 0, len(m.responderRoleIDs))
	for _, id := range m.responderRoleIDs {
		mentions = append(mentions, fmt.Sprintf("<@&%s>", id))
	}
	msgID, err := m.platform.Send(ctx, channelID, OutboundMessage{
		Content: strings.Join(mentions, " "),
		Embed:   &Embed{Description: fmt.Sprintf("🔔 %s called for staff.", ix.Actor().Mention())},
	})
	if err != nil {
		if ackErr := ix.Defer(ctx); ackErr != nil {
			m.logger.Warn().Err(ackErr).Msg("ack call-for-help")
		}
		return fmt.Errorf("ticket: call for help: %w", err)
	}
	m.schedule(m.helpTTL, func() {
		if err := m.platform.DeleteMessage(context.Background(), channelID, msgID); err != nil {
			m.logIO(err, "expire call-for-help", msgID)
		}
	})
	if err := ix.Defer(ctx); err != nil {
		return fmt.Errorf("ticket: call for help ack: %w", err)
	}
	return nil
}

// forget removes closed panels' records from the store.
func (m *Manager) forget(ctx context.Context, panels ...*Panel) {
	for _, p := range panels {
		if p == nil {
			continue
		}
		kind := store.KindTicket
		if p.Side == SideNotification {
			kind = store.KindNotification
		}
		if err := m.store.RemoveByHostMessageID(ctx, kind, p.MessageID); err != nil {
			m.logger.Error().Err(err).Str("kind", string(kind)).Str("message_id", p.MessageID).Msg("remove closed panel record")
		}
	}
}

func (m *Manager) clearControls(ctx context.Context, p *Panel) {
	if err := m.platform.EditControls(ctx, p.ChannelID, p.MessageID, nil); err != nil {
		m.logIO(err, "clear controls", p.MessageID)
	}
}

func (m *Manager) deleteChannel(ctx context.Context, channelID string) {
	if err := m.platform.DeleteChannel(ctx, channelID); err != nil {
		m.logIO(err, "delete ticket channel", channelID)
	}
}

func (m *Manager) dismiss(ctx context.Context, prompt Prompt) {
	if prompt == nil {
		return
	}
	if err := prompt.Dismiss(ctx); err != nil {
		m.logIO(err, "dismiss prompt", "")
	}
}

// logIO logs a failed external call. Vanished targets are expected during
// closes and reconciliation and are logged at debug.
func (m *Manager) logIO(err error, op, target string) {
	ev := m.logger.Error()
	if IsNotFound(err) {
		ev = m.logger.Debug()
	}
	ev.Err(err).Str("op", op).Str("target", target).Msg("platform call failed")
}
