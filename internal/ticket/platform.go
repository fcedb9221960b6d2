// Package ticket implements the ticket lifecycle: the paired ticket and
// notification panels, their close state machine, the intake form that opens
// tickets, and the startup reconciliation that re-attaches controls to the
// messages recorded in the session store.
package ticket

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a channel or message no longer exists.
	// Platform implementations wrap it so callers can use errors.Is.
	ErrNotFound = errors.New("ticket: not found")
	// ErrStaleControl reports an interaction on a control rendered for a
	// state the panel has since left.
	ErrStaleControl = errors.New("ticket: stale control")
	// ErrSessionExists reports a second session for the same ticket channel.
	ErrSessionExists = errors.New("ticket: session already exists")
	// ErrForbidden reports an administrative action by an unprivileged actor.
	ErrForbidden = errors.New("ticket: actor is not privileged")
)

// IsNotFound reports whether err means the target is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Actor is the user behind an interaction.
type Actor struct {
	ID            string
	Name          string
	AvatarURL     string
	RoleIDs       []string
	Administrator bool
}

// Mention returns the platform mention markup for the actor.
func (a Actor) Mention() string {
	return fmt.Sprintf("<@%s>", a.ID)
}

// Embed is the single rich block a message may carry.
type Embed struct {
	Title        string
	Description  string
	ThumbnailURL string
	Color        int
}

// OutboundMessage is a message to post.
type OutboundMessage struct {
	Content  string
	Embed    *Embed
	Controls []Control
	// ReplyTo is the ID of a message in the same channel to reply to.
	ReplyTo string
}

// ChannelSpec describes a private ticket channel to create.
type ChannelSpec struct {
	Name     string
	ParentID string
	// MemberIDs and RoleIDs may view and write; everyone else is denied.
	MemberIDs []string
	RoleIDs   []string
}

// Platform is the external channel/message store. Every method that targets
// an existing channel or message returns an error wrapping ErrNotFound when
// the target is gone.
type Platform interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	ChannelURL(channelID string) string

	Send(ctx context.Context, channelID string, msg OutboundMessage) (string, error)
	FetchMessage(ctx context.Context, channelID, messageID string) error
	EditControls(ctx context.Context, channelID, messageID string, controls []Control) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	PinMessage(ctx context.Context, channelID, messageID string) error
}

// Interaction is the response side of one inbound user action.
type Interaction interface {
	Actor() Actor
	// Ephemeral responds with a message only the actor can see. The returned
	// Prompt dismisses it.
	Ephemeral(ctx context.Context, content string) (Prompt, error)
	// Respond responds with a public message in the interaction's channel.
	Respond(ctx context.Context, msg OutboundMessage) error
	// Defer acknowledges the interaction without sending anything.
	Defer(ctx context.Context) error
}

// Prompt is a handle to an ephemeral response.
type Prompt interface {
	Dismiss(ctx context.Context) error
}

// Permissions decides whether an actor may run administrative commands.
type Permissions interface {
	IsPrivileged(actor Actor) bool
}

// AllowList grants privilege to administrators and to holders of any listed role.
type AllowList struct {
	roles map[string]struct{}
}

// NewAllowList builds an AllowList from role IDs.
func NewAllowList(roleIDs []string) AllowList {
	roles := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		roles[id] = struct{}{}
	}
	return AllowList{roles: roles}
}

// IsPrivileged implements Permissions.
func (a AllowList) IsPrivileged(actor Actor) bool {
	if actor.Administrator {
		return true
	}
	for _, id := range actor.RoleIDs {
		if _, ok := a.roles[id]; ok {
			return true
		}
	}
	return false
}
