// Package members handles guild membership changes: new members receive the
// configured default roles, and a counter channel's name tracks the member
// count. The counter is refreshed on a cron schedule and only when a join or
// leave happened since the last refresh.
package members

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Guild is the part of the platform the member handlers need.
type Guild interface {
	AddRole(ctx context.Context, userID, roleID string) error
	MemberCount(ctx context.Context) (int, error)
	RenameChannel(ctx context.Context, channelID, name string) error
}

// Opts configures a Service.
type Opts struct {
	Guild          Guild
	Logger         zerolog.Logger
	DefaultRoleIDs []string
	// CounterChannelID is the channel renamed to show the member count.
	// Empty disables the counter.
	CounterChannelID string
	// CounterFormat is a fmt format with one %d verb.
	CounterFormat string
	// CounterCron is the refresh schedule.
	CounterCron string
}

// Service reacts to member-joined and member-left events.
type Service struct {
	guild          Guild
	logger         zerolog.Logger
	defaultRoleIDs []string
	counterChannel string
	counterFormat  string
	schedule       cron.Schedule

	dirty atomic.Bool
}

// New validates opts and returns a Service.
func New(opts Opts) (*Service, error) {
	if opts.Guild == nil {
		return nil, fmt.Errorf("members: guild is required")
	}
	s := &Service{
		guild:          opts.Guild,
		logger:         opts.Logger.With().Str("component", "members").Logger(),
		defaultRoleIDs: opts.DefaultRoleIDs,
		counterChannel: opts.CounterChannelID,
		counterFormat:  opts.CounterFormat,
	}
	if s.counterChannel == "" {
		return s, nil
	}
	if s.counterFormat == "" {
		s.counterFormat = "Members: %d"
	}
	sched, err := cronParser.Parse(opts.CounterCron)
	if err != nil {
		return nil, fmt.Errorf("members: counter cron %q: %w", opts.CounterCron, err)
	}
	s.schedule = sched
	// The first tick after startup brings the name up to date.
	s.dirty.Store(true)
	return s, nil
}

// Register installs the membership handlers on d.
func (s *Service) Register(d *ticket.Dispatcher) {
	d.Handle(ticket.EventMemberJoined, s.handleJoined)
	d.Handle(ticket.EventMemberLeft, s.handleLeft)
}

func (s *Service) handleJoined(ctx context.Context, ev ticket.Event) error {
	if ev.Member == nil {
		return fmt.Errorf("members: joined event without member")
	}
	s.dirty.Store(true)

	var errs []error
	for _, roleID := range s.defaultRoleIDs {
		if err := s.guild.AddRole(ctx, ev.Member.UserID, roleID); err != nil {
			errs = append(errs, fmt.Errorf("members: add role %s to %s: %w", roleID, ev.Member.UserID, err))
		}
	}
	if len(errs) == 0 {
		s.logger.Info().Str("user_id", ev.Member.UserID).Int("roles", len(s.defaultRoleIDs)).Msg("member joined")
	}
	return errors.Join(errs...)
}

func (s *Service) handleLeft(ctx context.Context, ev ticket.Event) error {
	s.dirty.Store(true)
	if ev.Member != nil {
		s.logger.Info().Str("user_id", ev.Member.UserID).Msg("member left")
	}
	return nil
}

// RefreshCounter renames the counter channel when membership changed since
// the last refresh. It reports whether a rename was attempted.
func (s *Service) RefreshCounter(ctx context.Context) (bool, error) {
	if s.counterChannel == "" || !s.dirty.Swap(false) {
		return false, nil
	}
	n, err := s.guild.MemberCount(ctx)
	if err != nil {
		s.dirty.Store(true)
		return true, fmt.Errorf("members: count: %w", err)
	}
	name := fmt.Sprintf(s.counterFormat, n)
	if err := s.guild.RenameChannel(ctx, s.counterChannel, name); err != nil {
		s.dirty.Store(true)
		return true, fmt.Errorf("members: rename counter: %w", err)
	}
	s.logger.Debug().Int("count", n).Msg("member counter refreshed")
	return true, nil
}

// Run refreshes the counter on schedule until ctx is done. It returns
// immediately when the counter is disabled.
func (s *Service) Run(ctx context.Context) {
	if s.schedule == nil {
		return
	}
	timer := time.NewTimer(s.untilNext(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.RefreshCounter(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("member counter refresh failed")
			}
			timer.Reset(s.untilNext(time.Now()))
		}
	}
}

// untilNext returns the delay until the schedule's next fire time after now.
func (s *Service) untilNext(now time.Time) time.Duration {
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
