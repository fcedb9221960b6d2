package models

import "time"

// SessionRecord binds an interactive control to the Discord message hosting it.
// Rows are never updated: a binding is created when the control is posted and
// deleted when its host disappears or its ticket closes.
type SessionRecord struct {
	ID                    uint   `gorm:"primaryKey;autoIncrement"`
	Kind                  string `gorm:"size:32;not null;uniqueIndex:idx_kind_message"`
	MessageID             string `gorm:"size:32;not null;uniqueIndex:idx_kind_message"`
	ChannelID             string `gorm:"size:32;not null"`
	TicketChannelID       string `gorm:"size:32;index"`
	NotificationID        string `gorm:"size:32"`
	NotificationChannelID string `gorm:"size:32"`
	Label                 string `gorm:"size:80"`
	Style                 string `gorm:"size:16"`
	ChannelPrefix         string `gorm:"size:64"`
	CreatedAt             time.Time
}
