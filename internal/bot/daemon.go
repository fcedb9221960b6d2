// Package bot runs the ticket bot: it connects the platform adapter,
// reconciles persisted sessions, and then pumps platform events through the
// dispatcher one at a time until shutdown.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/bot/discord"
	"github.com/zulandar/ticketyard/internal/config"
	"github.com/zulandar/ticketyard/internal/members"
	"github.com/zulandar/ticketyard/internal/status"
	"github.com/zulandar/ticketyard/internal/store"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// Adapter is the platform connection the daemon drives.
type Adapter interface {
	ticket.Platform
	members.Guild
	Connect(ctx context.Context) error
	Listen(ctx context.Context) (<-chan ticket.Event, error)
	RegisterCommands(ctx context.Context, cmds []*discordgo.ApplicationCommand) error
	Close() error
}

// StatusFunc runs the status server until ctx is done.
type StatusFunc func(ctx context.Context, opts status.StartOpts) error

// Daemon is the main bot process.
type Daemon struct {
	cfg     *config.Config
	adapter Adapter
	store   store.Store
	logger  zerolog.Logger
	status  StatusFunc

	// ready is closed once reconciliation finished and events are flowing.
	ready chan struct{}
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Config  *config.Config
	Adapter Adapter
	Store   store.Store
	Logger  zerolog.Logger
	// Status runs the status server when cfg.Status.Port is set. Defaults to
	// status.Start.
	Status StatusFunc
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: store is required")
	}
	st := opts.Status
	if st == nil {
		st = status.Start
	}
	return &Daemon{
		cfg:     opts.Config,
		adapter: opts.Adapter,
		store:   opts.Store,
		logger:  opts.Logger.With().Str("component", "bot").Logger(),
		status:  st,
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once the daemon has reconciled and is dispatching events.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Run connects, reconciles persisted sessions, then dispatches events until
// ctx is cancelled. Only a failed connect or an unusable configuration
// aborts; everything after that is logged and survived.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().Str("guild_id", d.cfg.GuildID).Msg("connecting")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	mgr, err := ticket.NewManager(ticket.ManagerOpts{
		Platform:               d.adapter,
		Store:                  d.store,
		Permissions:            ticket.NewAllowList(d.cfg.Roles.Admin),
		Logger:                 d.logger,
		NotificationsChannelID: d.cfg.Channels.Notifications,
		FormsChannelID:         d.cfg.Channels.TicketForms,
		TicketsCategoryID:      d.cfg.Channels.TicketsCategory,
		ResponderRoleIDs:       d.cfg.Roles.Responders,
		HelpTTL:                d.cfg.HelpTTL(),
		AckTTL:                 d.cfg.AckTTL(),
		Throttle:               d.cfg.ReconcileThrottle(),
		FormLabel:              d.cfg.Tickets.FormLabel,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build ticket manager: %w", err)
	}

	memberSvc, err := members.New(members.Opts{
		Guild:            d.adapter,
		Logger:           d.logger,
		DefaultRoleIDs:   d.cfg.Roles.MemberDefaults,
		CounterChannelID: d.cfg.Channels.MembersCounter,
		CounterFormat:    d.cfg.Members.CounterFormat,
		CounterCron:      d.cfg.Members.CounterCron,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build member handlers: %w", err)
	}

	// Reconciliation runs to completion before any event is accepted.
	if _, err := mgr.Reconcile(ctx); err != nil {
		if ctx.Err() != nil {
			d.shutdown()
			return nil
		}
		d.logger.Error().Err(err).Msg("reconciliation incomplete")
	}

	if err := d.adapter.RegisterCommands(ctx, discord.Commands()); err != nil {
		d.logger.Warn().Err(err).Msg("register slash commands")
	}

	dispatcher := ticket.NewDispatcher(d.logger)
	mgr.Register(dispatcher)
	memberSvc.Register(dispatcher)
	dispatcher.HandleCommand(discord.CommandHello, handleHello)

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	go memberSvc.Run(ctx)
	if d.cfg.Status.Port > 0 {
		go func() {
			err := d.status(ctx, status.StartOpts{
				Registry: mgr,
				Store:    d.store,
				Port:     d.cfg.Status.Port,
				Logger:   d.logger,
			})
			if err != nil {
				d.logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	d.logger.Info().Strs("commands", dispatcher.Commands()).Msg("online")
	close(d.ready)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case ev := <-inbound:
			dispatcher.Dispatch(ctx, ev)
		}
	}
}

func (d *Daemon) shutdown() {
	d.logger.Info().Msg("shutting down")
	if err := d.adapter.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("close adapter")
	}
	d.logger.Info().Msg("stopped")
}

// handleHello answers the liveness command.
func handleHello(ctx context.Context, ev ticket.Event) error {
	_, err := ev.Interaction.Ephemeral(ctx, fmt.Sprintf("Hello, %s!", ev.Interaction.Actor().Mention()))
	return err
}
