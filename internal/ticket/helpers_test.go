package ticket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/store"
)

const (
	testNotifChannel = "notif-chan"
	testFormsChannel = "forms-chan"
	testCategory     = "cat-1"
	testResponder    = "role-staff"
)

// manualScheduler collects scheduled callbacks so tests can run them on demand.
type manualScheduler struct {
	mu      sync.Mutex
	pending []scheduledCall
}

type scheduledCall struct {
	d time.Duration
	f func()
}

func (s *manualScheduler) Schedule(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, scheduledCall{d: d, f: f})
}

func (s *manualScheduler) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.pending))
	for i, c := range s.pending {
		out[i] = c.d
	}
	return out
}

func (s *manualScheduler) RunAll() {
	s.mu.Lock()
	calls := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, c := range calls {
		c.f()
	}
}

type fixture struct {
	platform *MockPlatform
	store    *store.FileStore
	sched    *manualScheduler
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := NewMockPlatform()
	p.AddChannel(testNotifChannel)
	p.AddChannel(testFormsChannel)
	f := &fixture{
		platform: p,
		store:    store.NewFileStore(t.TempDir(), zerolog.Nop()),
		sched:    &manualScheduler{},
	}
	f.manager = f.newManager(t)
	return f
}

// newManager builds a fresh manager over the fixture's platform and store,
// as a process restart would.
func (f *fixture) newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerOpts{
		Platform:               f.platform,
		Store:                  f.store,
		Permissions:            NewAllowList([]string{"role-admin"}),
		Logger:                 zerolog.Nop(),
		NotificationsChannelID: testNotifChannel,
		FormsChannelID:         testFormsChannel,
		TicketsCategoryID:      testCategory,
		ResponderRoleIDs:       []string{testResponder},
		HelpTTL:                20 * time.Second,
		AckTTL:                 15 * time.Second,
		Schedule:               f.sched.Schedule,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func (f *fixture) postForm(t *testing.T, prefix string) *IntakeForm {
	t.Helper()
	form, err := f.manager.PostIntakeForm(context.Background(), "Support", "Ask us anything", StylePrimary, prefix)
	if err != nil {
		t.Fatalf("PostIntakeForm: %v", err)
	}
	return form
}

func (f *fixture) open(t *testing.T, prefix, actorName string) *Session {
	t.Helper()
	form := f.postForm(t, prefix)
	sess, err := f.manager.OpenTicket(context.Background(), form.MessageID, NewMockInteraction(Actor{ID: "u-" + actorName, Name: actorName}))
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}
	return sess
}

func (f *fixture) records(t *testing.T, kind store.Kind) []store.Record {
	t.Helper()
	recs, err := f.store.LoadAll(context.Background(), kind)
	if err != nil {
		t.Fatalf("LoadAll(%s): %v", kind, err)
	}
	return recs
}

func alice() *MockInteraction {
	return NewMockInteraction(Actor{ID: "u-alice", Name: "alice"})
}

func staff() *MockInteraction {
	return NewMockInteraction(Actor{ID: "u-staff", Name: "staff", RoleIDs: []string{testResponder}})
}

func controlIDs(cs []Control) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.CustomID
	}
	return out
}
