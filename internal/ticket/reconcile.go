package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/ticketyard/internal/store"
)

// ReconcileReport summarizes one record kind's reconciliation pass.
type ReconcileReport struct {
	Kind    store.Kind `json:"kind"`
	Total   int        `json:"total"`
	Rebound int        `json:"rebound"`
	Pruned  int        `json:"pruned"`
	Failed  int        `json:"failed"`
	// Error is set when the kind's records could not be loaded at all.
	Error   string     `json:"error,omitempty"`
}

// errTicketChannelGone marks a notification record whose ticket channel no
// longer exists.
var errTicketChannelGone = errors.New("ticket channel gone")

// Reconcile re-attaches controls to every recorded panel and form, and prunes
// records whose host channel or message is gone. It walks the kinds in
// store.Kinds() order, and each kind's records in insertion order, one
// re-bind at a time with the configured throttle between them.
//
// Panels always come back Active: a close that was pending when the process
// stopped is dropped.
//
// A kind whose records cannot be loaded is reported and skipped. Only a
// cancelled ctx stops the pass early.
//
// Reconcile must finish before live events are dispatched.
func (m *Manager) Reconcile(ctx context.Context) ([]ReconcileReport, error) {
	var reports []ReconcileReport
	for _, kind := range store.Kinds() {
		rep, err := m.reconcileKind(ctx, kind)
		if err != nil {
			if ctx.Err() != nil {
				return reports, err
			}
			m.logger.Error().Err(err).Str("kind", string(kind)).Msg("reconcile kind skipped")
			rep.Error = err.Error()
			reports = append(reports, rep)
			continue
		}
		m.logger.Info().Str("kind", string(kind)).Int("total", rep.Total).Int("rebound", rep.Rebound).
			Int("pruned", rep.Pruned).Int("failed", rep.Failed).Msg("reconciled")
		reports = append(reports, rep)
	}
	return reports, nil
}

func (m *Manager) reconcileKind(ctx context.Context, kind store.Kind) (ReconcileReport, error) {
	rep := ReconcileReport{Kind: kind}
	recs, err := m.store.LoadAll(ctx, kind)
	if err != nil {
		return rep, fmt.Errorf("ticket: reconcile %s: %w", kind, err)
	}
	rep.Total = len(recs)

	var stale []string
	for i, rec := range recs {
		if i > 0 {
			if err := m.wait(ctx); err != nil {
				return rep, err
			}
		}
		log := m.logger.With().Str("kind", string(kind)).Str("message_id", rec.MessageID).Str("channel_id", rec.ChannelID).Logger()

		exists, err := m.platform.ChannelExists(ctx, rec.ChannelID)
		if err != nil {
			log.Error().Err(err).Msg("look up host channel")
			rep.Failed++
			continue
		}
		if !exists {
			log.Info().Msg("host channel gone, pruning record")
			stale = append(stale, rec.MessageID)
			continue
		}
		if err := m.platform.FetchMessage(ctx, rec.ChannelID, rec.MessageID); err != nil {
			if IsNotFound(err) {
				log.Info().Msg("host message gone, pruning record")
				stale = append(stale, rec.MessageID)
				continue
			}
			log.Error().Err(err).Msg("fetch host message")
			rep.Failed++
			continue
		}
		if err := m.rebind(ctx, kind, rec); err != nil {
			if errors.Is(err, errTicketChannelGone) {
				log.Info().Str("ticket_channel_id", rec.TicketChannelID).Msg("ticket channel gone, retiring notification")
				stale = append(stale, rec.MessageID)
				continue
			}
			if IsNotFound(err) {
				log.Info().Msg("host message vanished during re-bind, pruning record")
				stale = append(stale, rec.MessageID)
				continue
			}
			log.Error().Err(err).Msg("re-bind controls")
			rep.Failed++
			continue
		}
		rep.Rebound++
	}

	if len(stale) > 0 {
		if err := m.store.RemoveByHostMessageID(ctx, kind, stale...); err != nil {
			m.logger.Error().Err(err).Str("kind", string(kind)).Int("count", len(stale)).Msg("prune stale records")
		} else {
			rep.Pruned = len(stale)
		}
	}
	return rep, nil
}

// rebind rebuilds the default-state controls for rec, attaches them to the
// host message and registers the result.
func (m *Manager) rebind(ctx context.Context, kind store.Kind, rec store.Record) error {
	switch kind {
	case store.KindNotification:
		if rec.TicketChannelID != "" {
			alive, err := m.platform.ChannelExists(ctx, rec.TicketChannelID)
			if err != nil {
				return fmt.Errorf("look up ticket channel: %w", err)
			}
			if !alive {
				m.retireNotification(ctx, rec)
				return errTicketChannelGone
			}
		}
		p := &Panel{
			Side:            SideNotification,
			ChannelID:       rec.ChannelID,
			MessageID:       rec.MessageID,
			TicketChannelID: rec.TicketChannelID,
			viewURL:         m.platform.ChannelURL(rec.TicketChannelID),
			state:           StateActive,
		}
		if err := m.platform.EditControls(ctx, p.ChannelID, p.MessageID, p.Render()); err != nil {
			return err
		}
		m.mu.Lock()
		m.reg.attach(p)
		m.mu.Unlock()

	case store.KindTicket:
		notifChannel := rec.NotificationChannelID
		if notifChannel == "" {
			notifChannel = m.notificationsChannelID
		}
		p := &Panel{
			Side:            SideTicket,
			ChannelID:       rec.ChannelID,
			MessageID:       rec.MessageID,
			TicketChannelID: rec.ChannelID,
			notifChannelID:  notifChannel,
			notifMessageID:  rec.NotificationID,
			state:           StateActive,
		}
		if err := m.platform.EditControls(ctx, p.ChannelID, p.MessageID, p.Render()); err != nil {
			return err
		}
		// The notification panel re-bound in the previous pass is keyed by
		// the same ticket channel, so attach joins the two into one session.
		m.mu.Lock()
		m.reg.attach(p)
		m.mu.Unlock()

	case store.KindIntakeForm:
		style, err := ParseStyle(rec.Style)
		if err != nil {
			style = StylePrimary
		}
		label := rec.Label
		if label == "" {
			label = m.formLabel
		}
		f := &IntakeForm{
			ChannelID:     rec.ChannelID,
			MessageID:     rec.MessageID,
			Label:         label,
			Style:         style,
			ChannelPrefix: rec.ChannelPrefix,
		}
		if err := m.platform.EditControls(ctx, f.ChannelID, f.MessageID, f.Render()); err != nil {
			return err
		}
		m.mu.Lock()
		m.reg.forms[f.MessageID] = f
		m.mu.Unlock()

	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownKind, kind)
	}
	return nil
}

// retireNotification closes a notification panel whose ticket channel was
// deleted while the bot was down.
func (m *Manager) retireNotification(ctx context.Context, rec store.Record) {
	if _, err := m.platform.Send(ctx, rec.ChannelID, OutboundMessage{
		Embed:   &Embed{Description: channelGoneNote},
		ReplyTo: rec.MessageID,
	}); err != nil {
		m.logIO(err, "post closure notice", rec.MessageID)
	}
	if err := m.platform.EditControls(ctx, rec.ChannelID, rec.MessageID, nil); err != nil {
		m.logIO(err, "clear controls", rec.MessageID)
	}
}

func (m *Manager) wait(ctx context.Context) error {
	if m.throttle <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.throttle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
