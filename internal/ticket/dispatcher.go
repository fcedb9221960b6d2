package ticket

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EventKind classifies an inbound event.
type EventKind string

const (
	EventControlActivated EventKind = "control-activated"
	EventFormSubmitted    EventKind = "form-submitted"
	EventMemberJoined     EventKind = "member-joined"
	EventMemberLeft       EventKind = "member-left"
	EventCommand          EventKind = "command"
)

// EventKindForControl classifies a component interaction by its custom ID:
// intake form buttons are form submissions, everything else is a control
// activation.
func EventKindForControl(customID string) EventKind {
	if controlPrefix(customID) == intakePrefix {
		return EventFormSubmitted
	}
	return EventControlActivated
}

// Member identifies the subject of a member-joined or member-left event.
type Member struct {
	UserID   string
	UserName string
	GuildID  string
}

// Event is one inbound action delivered by the platform adapter.
type Event struct {
	Kind        EventKind
	CustomID    string
	ChannelID   string
	MessageID   string
	Command     string
	Options     map[string]string
	Member      *Member
	Interaction Interaction
}

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Dispatcher routes events to handlers registered per event kind, per
// control custom-ID prefix and per command name. A failing or panicking
// handler is logged and never takes the caller down.
type Dispatcher struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	kinds    map[EventKind][]HandlerFunc
	controls map[string]HandlerFunc
	commands map[string]HandlerFunc
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		kinds:    make(map[EventKind][]HandlerFunc),
		controls: make(map[string]HandlerFunc),
		commands: make(map[string]HandlerFunc),
	}
}

// Handle registers h for every event of kind. Several handlers may share a
// kind; they run in registration order.
func (d *Dispatcher) Handle(kind EventKind, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds[kind] = append(d.kinds[kind], h)
}

// HandleControl registers h for controls whose custom ID starts with
// prefix followed by ':'. Control routes take precedence over kind routes.
func (d *Dispatcher) HandleControl(prefix string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls[prefix] = h
}

// HandleCommand registers h for the named command.
func (d *Dispatcher) HandleCommand(name string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[name] = h
}

// Commands returns the registered command names.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	return names
}

// Dispatch routes ev to its handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	for _, h := range d.route(ev) {
		d.run(ctx, ev, h)
	}
}

func (d *Dispatcher) route(ev Event) []HandlerFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch ev.Kind {
	case EventControlActivated, EventFormSubmitted:
		if h, ok := d.controls[controlPrefix(ev.CustomID)]; ok {
			return []HandlerFunc{h}
		}
	case EventCommand:
		if h, ok := d.commands[ev.Command]; ok {
			return []HandlerFunc{h}
		}
		d.logger.Warn().Str("command", ev.Command).Msg("no handler for command")
		return nil
	}
	hs := d.kinds[ev.Kind]
	if len(hs) == 0 {
		d.logger.Debug().Str("kind", string(ev.Kind)).Str("custom_id", ev.CustomID).Msg("no handler for event")
	}
	return append([]HandlerFunc(nil), hs...)
}

func (d *Dispatcher) run(ctx context.Context, ev Event, h HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			d.eventLog(d.logger.Error(), ev).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
		}
	}()
	if err := h(ctx, ev); err != nil {
		d.eventLog(d.logger.Error(), ev).Err(err).Msg("handler failed")
	}
}

func (d *Dispatcher) eventLog(e *zerolog.Event, ev Event) *zerolog.Event {
	e = e.Str("kind", string(ev.Kind)).
		Str("custom_id", ev.CustomID).
		Str("channel_id", ev.ChannelID).
		Str("message_id", ev.MessageID)
	if ev.Command != "" {
		e = e.Str("command", ev.Command).Interface("options", ev.Options)
	}
	if ev.Member != nil {
		e = e.Str("member", ev.Member.UserID)
	}
	if ev.Interaction != nil {
		e = e.Str("actor", ev.Interaction.Actor().Name)
	}
	return e
}

func controlPrefix(customID string) string {
	prefix, _, _ := strings.Cut(customID, ":")
	return prefix
}
