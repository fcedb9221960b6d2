package ticket

import (
	"fmt"
	"strings"
)

// Side identifies which of a ticket's two panels a control belongs to.
type Side string

const (
	SideTicket       Side = "tp"
	SideNotification Side = "np"
)

// State is a panel's position in the close state machine.
type State string

const (
	StateActive          State = "active"
	StateConfirmingClose State = "confirming"
	StateClosed          State = "closed"
)

// Action is what a control does when activated.
type Action string

const (
	ActionRequestClose Action = "close"
	ActionCallForHelp  Action = "call"
	ActionConfirm      Action = "confirm"
	ActionCancel       Action = "cancel"
	ActionView         Action = "view"
	ActionOpen         Action = "open"
)

// ControlStyle is the visual style of a button.
type ControlStyle string

const (
	StylePrimary   ControlStyle = "primary"
	StyleSecondary ControlStyle = "secondary"
	StyleSuccess   ControlStyle = "success"
	StyleDanger    ControlStyle = "danger"
	StyleLink      ControlStyle = "link"
)

// ParseStyle validates a button style name for intake forms. Link is not
// accepted because a link button cannot be activated.
func ParseStyle(s string) (ControlStyle, error) {
	switch st := ControlStyle(strings.ToLower(strings.TrimSpace(s))); st {
	case StylePrimary, StyleSecondary, StyleSuccess, StyleDanger:
		return st, nil
	}
	return "", fmt.Errorf("ticket: unknown button style %q", s)
}

// Control is one button on a panel. Link controls carry a URL and no CustomID.
type Control struct {
	Action   Action
	Label    string
	Emoji    string
	Style    ControlStyle
	URL      string
	CustomID string
}

// intakePrefix is the custom ID namespace of intake form buttons.
const intakePrefix = "if"

// CustomID encodes the side, action and the state a control was rendered for.
func CustomID(side Side, action Action, state State) string {
	return fmt.Sprintf("%s:%s:%s", side, action, state)
}

// ParseCustomID decodes a panel control custom ID.
func ParseCustomID(id string) (Side, Action, State, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("ticket: malformed custom id %q", id)
	}
	side, action, state := Side(parts[0]), Action(parts[1]), State(parts[2])
	if side != SideTicket && side != SideNotification {
		return "", "", "", fmt.Errorf("ticket: unknown panel side in %q", id)
	}
	switch state {
	case StateActive, StateConfirmingClose:
	default:
		return "", "", "", fmt.Errorf("ticket: unknown state in %q", id)
	}
	return side, action, state, nil
}

// IntakeCustomID is the custom ID of every intake form button.
func IntakeCustomID() string {
	return intakePrefix + ":" + string(ActionOpen)
}

// RenderFor returns the control set a panel shows in a state. viewURL is
// the ticket channel link used by the notification panel.
func RenderFor(side Side, state State, viewURL string) []Control {
	switch state {
	case StateActive:
		if side == SideTicket {
			return []Control{
				{Action: ActionRequestClose, Label: "Close Ticket", Emoji: "🔐", Style: StyleDanger, CustomID: CustomID(side, ActionRequestClose, state)},
				{Action: ActionCallForHelp, Label: "Call Staff", Emoji: "🔔", Style: StylePrimary, CustomID: CustomID(side, ActionCallForHelp, state)},
			}
		}
		return []Control{
			{Action: ActionView, Label: "View", Emoji: "🔍", Style: StyleLink, URL: viewURL},
			{Action: ActionRequestClose, Label: "Close", Emoji: "🔐", Style: StyleDanger, CustomID: CustomID(side, ActionRequestClose, state)},
		}
	case StateConfirmingClose:
		return []Control{
			{Action: ActionConfirm, Label: "Confirm", Style: StyleSuccess, CustomID: CustomID(side, ActionConfirm, state)},
			{Action: ActionCancel, Label: "Cancel", Style: StyleDanger, CustomID: CustomID(side, ActionCancel, state)},
		}
	}
	return nil
}

// Panel is a host message plus the control state attached to it. The state
// and prompt fields are owned by Manager and guarded by its mutex.
type Panel struct {
	Side            Side
	ChannelID       string
	MessageID       string
	TicketChannelID string
	viewURL         string

	// notifChannelID and notifMessageID locate a ticket panel's notification
	// host, which may not be registered after a restart.
	notifChannelID string
	notifMessageID string

	state  State
	prompt Prompt
}

// State returns the panel's current state.
func (p *Panel) State() State {
	return p.state
}

// Render returns the control set for the panel's current state.
func (p *Panel) Render() []Control {
	return RenderFor(p.Side, p.state, p.viewURL)
}

// IntakeForm is a posted form whose single button opens a ticket. It has no
// state of its own.
type IntakeForm struct {
	ChannelID     string
	MessageID     string
	Label         string
	Style         ControlStyle
	ChannelPrefix string
}

// Render returns the form's single button.
func (f *IntakeForm) Render() []Control {
	return []Control{{Action: ActionOpen, Label: f.Label, Style: f.Style, CustomID: IntakeCustomID()}}
}
