package models

import "time"

// QueuedNotification is the durable fallback record created when fan-out finds
// a room member with no live connection. It is retrieved later through the
// pull API; repeated enqueues for the same event are acceptable as distinct rows.
type QueuedNotification struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	RecipientID string `gorm:"type:text;not null;index" json:"recipient_id"`
	RoomID      string `gorm:"type:text;not null" json:"room_id"`
	// MessageID references the originating message, when there is one.
	MessageID *uint `json:"message_id,omitempty"`
	// Summary is the rendered "you missed this" text.
	Summary   string    `gorm:"type:text;not null" json:"summary"`
	IsRead    bool      `gorm:"index" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
