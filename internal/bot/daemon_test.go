package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/bot/discord"
	"github.com/zulandar/ticketyard/internal/config"
	"github.com/zulandar/ticketyard/internal/status"
	"github.com/zulandar/ticketyard/internal/store"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// --- Fake adapter ---

type fakeAdapter struct {
	*ticket.MockPlatform

	mu         sync.Mutex
	connectErr error
	listenErr  error
	connected  bool
	listening  bool
	closed     bool
	commands   []*discordgo.ApplicationCommand
	roleAdds   []string
	events     chan ticket.Event
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		MockPlatform: ticket.NewMockPlatform(),
		events:       make(chan ticket.Event, 10),
	}
}

func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeAdapter) Listen(ctx context.Context) (<-chan ticket.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	f.listening = true
	return f.events, nil
}

func (f *fakeAdapter) RegisterCommands(ctx context.Context, cmds []*discordgo.ApplicationCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = cmds
	return nil
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAdapter) AddRole(ctx context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleAdds = append(f.roleAdds, userID+"/"+roleID)
	return nil
}

func (f *fakeAdapter) MemberCount(ctx context.Context) (int, error) { return 3, nil }

func (f *fakeAdapter) RenameChannel(ctx context.Context, channelID, name string) error { return nil }

func (f *fakeAdapter) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeAdapter) roles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roleAdds...)
}

// --- Helpers ---

const testConfig = `
guild_id: "G1"
channels:
  notifications: "notif-chan"
  ticket_forms: "forms-chan"
  tickets_category: "cat-1"
roles:
  admin: ["role-admin"]
  responders: ["role-staff"]
  member_defaults: ["role-member"]
reconcile:
  throttle_ms: 1
`

func testCfg(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig + extra))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

type runResult struct {
	cancel context.CancelFunc
	errCh  chan error
}

func startDaemon(t *testing.T, d *Daemon) runResult {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	select {
	case <-d.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Run returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon not ready")
	}
	return runResult{cancel: cancel, errCh: errCh}
}

func (r runResult) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Tests ---

func TestNewDaemon_Validation(t *testing.T) {
	cfg := testCfg(t, "")
	st := store.NewFileStore(t.TempDir(), zerolog.Nop())
	a := newFakeAdapter()

	cases := []struct {
		name string
		opts DaemonOpts
		want string
	}{
		{"no config", DaemonOpts{Adapter: a, Store: st}, "config is required"},
		{"no adapter", DaemonOpts{Config: cfg, Store: st}, "adapter is required"},
		{"no store", DaemonOpts{Config: cfg, Adapter: a}, "store is required"},
	}
	for _, tc := range cases {
		_, err := NewDaemon(tc.opts)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestRun_ConnectFailureAborts(t *testing.T) {
	a := newFakeAdapter()
	a.connectErr = errors.New("invalid token")
	d, err := NewDaemon(DaemonOpts{Config: testCfg(t, ""), Adapter: a, Store: store.NewFileStore(t.TempDir(), zerolog.Nop())})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	err = d.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_ListenFailureClosesAdapter(t *testing.T) {
	a := newFakeAdapter()
	a.listenErr = errors.New("no gateway")
	d, _ := NewDaemon(DaemonOpts{Config: testCfg(t, ""), Adapter: a, Store: store.NewFileStore(t.TempDir(), zerolog.Nop())})
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !a.isClosed() {
		t.Error("adapter should be closed")
	}
}

func TestRun_ReconcilesBeforeListening(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter()
	a.AddChannel("notif-chan")
	a.AddChannel("ticket-1")
	a.AddMessage("notif-chan", "N1")

	st := store.NewFileStore(t.TempDir(), zerolog.Nop())
	live := store.Record{Kind: store.KindNotification, MessageID: "N1", ChannelID: "notif-chan", TicketChannelID: "ticket-1"}
	gone := store.Record{Kind: store.KindNotification, MessageID: "N2", ChannelID: "notif-chan", TicketChannelID: "ticket-2"}
	for _, r := range []store.Record{live, gone} {
		if err := st.Append(ctx, store.KindNotification, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	d, _ := NewDaemon(DaemonOpts{Config: testCfg(t, ""), Adapter: a, Store: st, Logger: zerolog.Nop()})
	run := startDaemon(t, d)
	defer run.stop(t)

	recs, err := st.LoadAll(ctx, store.KindNotification)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(recs) != 1 || recs[0].MessageID != "N1" {
		t.Errorf("records after reconcile = %+v", recs)
	}
	if a.EditCount() != 1 {
		t.Errorf("edits = %d, want 1", a.EditCount())
	}
	a.mu.Lock()
	listening, cmds := a.listening, len(a.commands)
	a.mu.Unlock()
	if !listening {
		t.Error("daemon should be listening once ready")
	}
	if cmds != len(discord.Commands()) {
		t.Errorf("registered %d commands, want %d", cmds, len(discord.Commands()))
	}
}

func TestRun_DispatchesEvents(t *testing.T) {
	a := newFakeAdapter()
	d, _ := NewDaemon(DaemonOpts{Config: testCfg(t, ""), Adapter: a, Store: store.NewFileStore(t.TempDir(), zerolog.Nop())})
	run := startDaemon(t, d)

	ix := ticket.NewMockInteraction(ticket.Actor{ID: "u-alice", Name: "alice"})
	a.events <- ticket.Event{Kind: ticket.EventCommand, Command: discord.CommandHello, Interaction: ix}
	a.events <- ticket.Event{Kind: ticket.EventMemberJoined, Member: &ticket.Member{UserID: "u-bob", GuildID: "G1"}}

	waitFor(t, "hello reply", func() bool { return len(ix.Prompts()) == 1 })
	if got := ix.Prompts()[0].Content; got != "Hello, <@u-alice>!" {
		t.Errorf("hello = %q", got)
	}
	waitFor(t, "default role", func() bool { return len(a.roles()) == 1 })
	if a.roles()[0] != "u-bob/role-member" {
		t.Errorf("roles = %v", a.roles())
	}

	run.stop(t)
	if !a.isClosed() {
		t.Error("adapter should be closed on shutdown")
	}
}

func TestRun_StartsStatusServer(t *testing.T) {
	a := newFakeAdapter()
	st := store.NewFileStore(t.TempDir(), zerolog.Nop())
	started := make(chan status.StartOpts, 1)
	statusFn := func(ctx context.Context, opts status.StartOpts) error {
		started <- opts
		<-ctx.Done()
		return nil
	}
	d, _ := NewDaemon(DaemonOpts{Config: testCfg(t, "status:\n  port: 9099\n"), Adapter: a, Store: st, Status: statusFn})
	run := startDaemon(t, d)
	defer run.stop(t)

	select {
	case opts := <-started:
		if opts.Port != 9099 || opts.Store != st || opts.Registry == nil {
			t.Errorf("opts = %+v", opts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("status server not started")
	}
}

func TestRun_NoStatusServerByDefault(t *testing.T) {
	a := newFakeAdapter()
	called := make(chan struct{}, 1)
	statusFn := func(ctx context.Context, opts status.StartOpts) error {
		called <- struct{}{}
		return nil
	}
	d, _ := NewDaemon(DaemonOpts{Config: testCfg(t, ""), Adapter: a, Store: store.NewFileStore(t.TempDir(), zerolog.Nop()), Status: statusFn})
	run := startDaemon(t, d)
	run.stop(t)

	select {
	case <-called:
		t.Error("status server started with port 0")
	default:
	}
}

func TestRun_CancelledDuringReconcile(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter()
	a.AddChannel("notif-chan")
	st := store.NewFileStore(t.TempDir(), zerolog.Nop())
	for _, id := range []string{"N1", "N2", "N3"} {
		a.AddChannel("t-" + id)
		a.AddMessage("notif-chan", id)
		rec := store.Record{Kind: store.KindNotification, MessageID: id, ChannelID: "notif-chan", TicketChannelID: "t-" + id}
		if err := st.Append(ctx, store.KindNotification, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	cfg := testCfg(t, "")
	hour := 3_600_000
	cfg.Reconcile.ThrottleMs = &hour
	d, _ := NewDaemon(DaemonOpts{Config: cfg, Adapter: a, Store: st})

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := d.Run(runCtx); err != nil {
		t.Errorf("Run: %v", err)
	}
	if !a.isClosed() {
		t.Error("adapter should be closed")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listening {
		t.Error("daemon must not listen before reconciliation finished")
	}
}
