// Package store persists session-binding records: which Discord message hosts
// which interactive control, grouped by record kind.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the category of a persisted binding.
type Kind string

const (
	KindNotification Kind = "notifications"
	KindTicket       Kind = "tickets"
	KindIntakeForm   Kind = "ticket_forms"
)

// Kinds lists every record kind in reconciliation order.
func Kinds() []Kind {
	return []Kind{KindNotification, KindTicket, KindIntakeForm}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var (
	// ErrDuplicate is returned when a record with the same kind and host
	// message already exists.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrUnknownKind is returned for a kind outside Kinds().
	ErrUnknownKind = errors.New("store: unknown record kind")
)

// Record is one persisted binding. Which of the correlation fields are set
// depends on Kind:
//
//	notifications: TicketChannelID
//	tickets:       NotificationID, NotificationChannelID (optional)
//	ticket_forms:  Label, Style, ChannelPrefix
type Record struct {
	Kind      Kind
	MessageID string
	ChannelID string

	TicketChannelID string

	NotificationID        string
	NotificationChannelID string

	Label         string
	Style         string
	ChannelPrefix string
}

// Store is durable, per-kind, insertion-ordered storage of records.
type Store interface {
	// Append adds rec to the end of the kind's sequence.
	Append(ctx context.Context, kind Kind, rec Record) error
	// RemoveByHostMessageID deletes every record of kind whose MessageID is in
	// ids. Unknown ids are ignored.
	RemoveByHostMessageID(ctx context.Context, kind Kind, ids ...string) error
	// LoadAll returns the kind's records in insertion order. Missing storage
	// yields an empty slice.
	LoadAll(ctx context.Context, kind Kind) ([]Record, error)
}

func checkKind(kind Kind) error {
	_, err := ParseKind(string(kind))
	return err
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
