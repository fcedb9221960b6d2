package ticket

import (
	"context"
	"fmt"
	"sync"
)

// MockPlatform implements Platform in memory for testing. Channels and
// messages can be seeded and removed to simulate external changes, and any
// operation can be made to fail.
type MockPlatform struct {
	mu       sync.Mutex
	channels map[string]bool
	messages map[string]*MockMessage
	order    []string
	counter  int
	fail     map[string]error
	failOnce map[string][]error

	Created         []ChannelSpec
	DeletedChannels []string
	DeletedMessages []string
	Pinned          []string
	Edits           []ControlEdit
}

// MockMessage is a message held by MockPlatform.
type MockMessage struct {
	ID        string
	ChannelID string
	Message   OutboundMessage
	Controls  []Control
}

// ControlEdit records one EditControls call.
type ControlEdit struct {
	ChannelID string
	MessageID string
	Controls  []Control
}

// NewMockPlatform creates an empty MockPlatform.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		channels: make(map[string]bool),
		messages: make(map[string]*MockMessage),
		fail:     make(map[string]error),
		failOnce: make(map[string][]error),
	}
}

// AddChannel seeds an existing channel.
func (m *MockPlatform) AddChannel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[id] = true
}

// AddMessage seeds an existing message in an existing channel.
func (m *MockPlatform) AddMessage(channelID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = true
	m.messages[id] = &MockMessage{ID: id, ChannelID: channelID}
	m.order = append(m.order, id)
}

// RemoveChannel deletes a channel and its messages out of band.
func (m *MockPlatform) RemoveChannel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeChannelLocked(id)
}

// RemoveMessage deletes a message out of band.
func (m *MockPlatform) RemoveMessage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, id)
}

// Fail makes every call of op return err until cleared with a nil err.
func (m *MockPlatform) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// FailOnce queues err for the next call of op only. Queued errors are
// consumed in order before any standing failure set with Fail.
func (m *MockPlatform) FailOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnce[op] = append(m.failOnce[op], err)
}

func (m *MockPlatform) failureLocked(op string) error {
	if q := m.failOnce[op]; len(q) > 0 {
		m.failOnce[op] = q[1:]
		return q[0]
	}
	return m.fail[op]
}

// HasChannel reports whether the channel exists.
func (m *MockPlatform) HasChannel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[id]
}

// Message returns a copy of a live message.
func (m *MockPlatform) Message(id string) (MockMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return MockMessage{}, false
	}
	return *msg, true
}

// Messages returns the live messages of a channel in creation order.
func (m *MockPlatform) Messages(channelID string) []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockMessage
	for _, id := range m.order {
		if msg, ok := m.messages[id]; ok && msg.ChannelID == channelID {
			out = append(out, *msg)
		}
	}
	return out
}

// EditCount returns the number of EditControls calls.
func (m *MockPlatform) EditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Edits)
}

func (m *MockPlatform) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("ChannelExists"); err != nil {
		return false, err
	}
	return m.channels[channelID], nil
}

func (m *MockPlatform) CreateChannel(ctx context.Context, spec ChannelSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("CreateChannel"); err != nil {
		return "", err
	}
	m.counter++
	id := fmt.Sprintf("chan-%d", m.counter)
	m.channels[id] = true
	m.Created = append(m.Created, spec)
	return id, nil
}

func (m *MockPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("DeleteChannel"); err != nil {
		return err
	}
	if !m.channels[channelID] {
		return fmt.Errorf("mock: channel %s: %w", channelID, ErrNotFound)
	}
	m.removeChannelLocked(channelID)
	m.DeletedChannels = append(m.DeletedChannels, channelID)
	return nil
}

func (m *MockPlatform) ChannelURL(channelID string) string {
	return "https://discord.test/channels/guild/" + channelID
}

func (m *MockPlatform) Send(ctx context.Context, channelID string, msg OutboundMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("Send"); err != nil {
		return "", err
	}
	if !m.channels[channelID] {
		return "", fmt.Errorf("mock: channel %s: %w", channelID, ErrNotFound)
	}
	m.counter++
	id := fmt.Sprintf("msg-%d", m.counter)
	m.messages[id] = &MockMessage{ID: id, ChannelID: channelID, Message: msg, Controls: msg.Controls}
	m.order = append(m.order, id)
	return id, nil
}

func (m *MockPlatform) FetchMessage(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("FetchMessage"); err != nil {
		return err
	}
	return m.lookupLocked(channelID, messageID)
}

func (m *MockPlatform) EditControls(ctx context.Context, channelID, messageID string, controls []Control) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("EditControls"); err != nil {
		return err
	}
	if err := m.lookupLocked(channelID, messageID); err != nil {
		return err
	}
	m.messages[messageID].Controls = controls
	m.Edits = append(m.Edits, ControlEdit{ChannelID: channelID, MessageID: messageID, Controls: controls})
	return nil
}

func (m *MockPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("DeleteMessage"); err != nil {
		return err
	}
	if err := m.lookupLocked(channelID, messageID); err != nil {
		return err
	}
	delete(m.messages, messageID)
	m.DeletedMessages = append(m.DeletedMessages, messageID)
	return nil
}

func (m *MockPlatform) PinMessage(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failureLocked("PinMessage"); err != nil {
		return err
	}
	if err := m.lookupLocked(channelID, messageID); err != nil {
		return err
	}
	m.Pinned = append(m.Pinned, messageID)
	return nil
}

func (m *MockPlatform) lookupLocked(channelID, messageID string) error {
	if !m.channels[channelID] {
		return fmt.Errorf("mock: channel %s: %w", channelID, ErrNotFound)
	}
	msg, ok := m.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return fmt.Errorf("mock: message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

func (m *MockPlatform) removeChannelLocked(id string) {
	delete(m.channels, id)
	for msgID, msg := range m.messages {
		if msg.ChannelID == id {
			delete(m.messages, msgID)
		}
	}
}

// MockInteraction implements Interaction and records every response.
type MockInteraction struct {
	mu         sync.Mutex
	actor      Actor
	ephemerals []*MockPrompt
	responses  []OutboundMessage
	defers     int

	// EphemeralErr, when set, fails every Ephemeral call.
	EphemeralErr error
}

// NewMockInteraction creates a MockInteraction for actor.
func NewMockInteraction(actor Actor) *MockInteraction {
	return &MockInteraction{actor: actor}
}

func (i *MockInteraction) Actor() Actor { return i.actor }

func (i *MockInteraction) Ephemeral(ctx context.Context, content string) (Prompt, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.EphemeralErr != nil {
		return nil, i.EphemeralErr
	}
	p := &MockPrompt{Content: content}
	i.ephemerals = append(i.ephemerals, p)
	return p, nil
}

func (i *MockInteraction) Respond(ctx context.Context, msg OutboundMessage) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.responses = append(i.responses, msg)
	return nil
}

func (i *MockInteraction) Defer(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.defers++
	return nil
}

// Prompts returns every ephemeral prompt sent so far.
func (i *MockInteraction) Prompts() []*MockPrompt {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*MockPrompt(nil), i.ephemerals...)
}

// Responses returns every public response sent so far.
func (i *MockInteraction) Responses() []OutboundMessage {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]OutboundMessage(nil), i.responses...)
}

// Defers returns how many times the interaction was deferred.
func (i *MockInteraction) Defers() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.defers
}

// MockPrompt records dismissals of an ephemeral prompt.
type MockPrompt struct {
	mu        sync.Mutex
	Content   string
	dismissed int
}

func (p *MockPrompt) Dismiss(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
	return nil
}

// Dismissed reports how many times Dismiss was called.
func (p *MockPrompt) Dismissed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissed
}
