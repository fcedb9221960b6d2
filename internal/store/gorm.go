package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/ticketyard/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps records in the session_records table. Insertion order is
// the auto-increment ID.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a migrated GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append inserts rec unless (kind, message) already exists.
func (s *GormStore) Append(ctx context.Context, kind Kind, rec Record) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SessionRecord
		err := tx.Where("kind = ? AND message_id = ?", string(kind), rec.MessageID).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, kind, rec.MessageID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: check existing %s/%s: %w", kind, rec.MessageID, err)
		}
		row := toModel(kind, rec)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store: insert %s/%s: %w", kind, rec.MessageID, err)
		}
		return nil
	})
}

// RemoveByHostMessageID deletes matching rows in one statement.
func (s *GormStore) RemoveByHostMessageID(ctx context.Context, kind Kind, ids ...string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).
		Where("kind = ? AND message_id IN ?", string(kind), ids).
		Delete(&models.SessionRecord{})
	if result.Error != nil {
		return fmt.Errorf("store: remove %d %s records: %w", len(ids), kind, result.Error)
	}
	return nil
}

// LoadAll returns the kind's rows ordered by insertion.
func (s *GormStore) LoadAll(ctx context.Context, kind Kind) ([]Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	var rows []models.SessionRecord
	if err := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load %s: %w", kind, err)
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, fromModel(row))
	}
	return recs, nil
}

func toModel(kind Kind, r Record) models.SessionRecord {
	return models.SessionRecord{
		Kind:                  string(kind),
		MessageID:             r.MessageID,
		ChannelID:             r.ChannelID,
		TicketChannelID:       r.TicketChannelID,
		NotificationID:        r.NotificationID,
		NotificationChannelID: r.NotificationChannelID,
		Label:                 r.Label,
		Style:                 r.Style,
		ChannelPrefix:         r.ChannelPrefix,
	}
}

func fromModel(m models.SessionRecord) Record {
	return Record{
		Kind:                  Kind(m.Kind),
		MessageID:             m.MessageID,
		ChannelID:             m.ChannelID,
		TicketChannelID:       m.TicketChannelID,
		NotificationID:        m.NotificationID,
		NotificationChannelID: m.NotificationChannelID,
		Label:                 m.Label,
		Style:                 m.Style,
		ChannelPrefix:         m.ChannelPrefix,
	}
}
