package ticket

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Session pairs the panel inside a ticket channel with its notification
// panel. Either panel may be missing after a restart when its record was
// pruned.
type Session struct {
	ID              uuid.UUID
	TicketChannelID string
	Ticket          *Panel
	Notification    *Panel
}

// counterpart returns the other panel of the session.
func (s *Session) counterpart(p *Panel) *Panel {
	if p == s.Ticket {
		return s.Notification
	}
	return s.Ticket
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ID                  string `json:"id"`
	TicketChannelID     string `json:"ticket_channel_id"`
	TicketMessageID     string `json:"ticket_message_id,omitempty"`
	TicketState         State  `json:"ticket_state,omitempty"`
	NotificationID      string `json:"notification_message_id,omitempty"`
	NotificationState   State  `json:"notification_state,omitempty"`
	NotificationChannel string `json:"notification_channel_id,omitempty"`
}

// registry indexes live sessions, panels and forms. Callers hold Manager.mu.
type registry struct {
	sessions map[string]*Session    // by ticket channel ID
	panels   map[string]*Panel      // by host message ID
	owners   map[string]*Session    // by host message ID
	forms    map[string]*IntakeForm // by host message ID
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[string]*Session),
		panels:   make(map[string]*Panel),
		owners:   make(map[string]*Session),
		forms:    make(map[string]*IntakeForm),
	}
}

// addSession registers a fresh session. A second session for the same
// ticket channel is rejected.
func (r *registry) addSession(s *Session) error {
	if _, ok := r.sessions[s.TicketChannelID]; ok {
		return fmt.Errorf("%w: channel %s", ErrSessionExists, s.TicketChannelID)
	}
	r.sessions[s.TicketChannelID] = s
	for _, p := range []*Panel{s.Ticket, s.Notification} {
		if p != nil {
			r.panels[p.MessageID] = p
			r.owners[p.MessageID] = s
		}
	}
	return nil
}

// attach binds p into the session for its ticket channel, creating the
// session if needed. Re-attaching the same host message replaces the old
// panel, which keeps reconciliation idempotent.
func (r *registry) attach(p *Panel) *Session {
	s, ok := r.sessions[p.TicketChannelID]
	if !ok {
		s = &Session{ID: uuid.New(), TicketChannelID: p.TicketChannelID}
		r.sessions[p.TicketChannelID] = s
	}
	switch p.Side {
	case SideTicket:
		if s.Ticket != nil && s.Ticket.MessageID != p.MessageID {
			delete(r.panels, s.Ticket.MessageID)
			delete(r.owners, s.Ticket.MessageID)
		}
		s.Ticket = p
	case SideNotification:
		if s.Notification != nil && s.Notification.MessageID != p.MessageID {
			delete(r.panels, s.Notification.MessageID)
			delete(r.owners, s.Notification.MessageID)
		}
		s.Notification = p
	}
	r.panels[p.MessageID] = p
	r.owners[p.MessageID] = s
	return s
}

func (r *registry) removeSession(s *Session) {
	if cur, ok := r.sessions[s.TicketChannelID]; ok && cur == s {
		delete(r.sessions, s.TicketChannelID)
	}
	for _, p := range []*Panel{s.Ticket, s.Notification} {
		if p != nil && r.owners[p.MessageID] == s {
			delete(r.panels, p.MessageID)
			delete(r.owners, p.MessageID)
		}
	}
}

func (r *registry) snapshot() []SessionInfo {
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		info := SessionInfo{ID: s.ID.String(), TicketChannelID: s.TicketChannelID}
		if s.Ticket != nil {
			info.TicketMessageID = s.Ticket.MessageID
			info.TicketState = s.Ticket.state
		}
		if s.Notification != nil {
			info.NotificationID = s.Notification.MessageID
			info.NotificationState = s.Notification.state
			info.NotificationChannel = s.Notification.ChannelID
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketChannelID < out[j].TicketChannelID })
	return out
}
