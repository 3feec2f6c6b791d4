package models

import (
	"time"
)

// Message kinds recognized by the store.
const (
	MessageText   = "text"
	MessageSystem = "system"
	MessageFile   = "file"
)

// TombstoneContent replaces the content of a soft-deleted message. The row is
// retained so room ordering and audit history stay intact.
const TombstoneContent = "[deleted]"

// Message is a single unit of content within exactly one room. Messages are
// totally ordered within their room by (created_at, id); the auto-increment id
// breaks ties for same-timestamp inserts.
type Message struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	RoomID   string `gorm:"type:text;not null;index:idx_room_order,priority:1" json:"room_id"`
	SenderID string `gorm:"type:text;not null;index" json:"sender_id"`
	Content  string `gorm:"type:text;not null" json:"content"`
	// Kind indicates the kind of message ("text", "system", "file").
	Kind string `gorm:"type:text;not null" json:"kind"`
	// ParentID references an earlier message in the same room for threaded replies.
	ParentID *uint `gorm:"index" json:"parent_id,omitempty"`
	// IsEdited is set the first time the sender edits the content.
	IsEdited bool       `json:"is_edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
	// IsDeleted marks a tombstoned message; content is hidden, the row persists.
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `gorm:"index:idx_room_order,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReadReceipt marks that a reader has observed a message. Unique per
// (message, reader); re-marking as read is a no-op.
type ReadReceipt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_msg_reader" json:"message_id"`
	ReaderID  string    `gorm:"type:text;not null;uniqueIndex:idx_msg_reader" json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}

// Reaction is one (user, emoji) mark on a message.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_msg_user_emoji" json:"message_id"`
	UserID    string    `gorm:"type:text;not null;uniqueIndex:idx_msg_user_emoji" json:"user_id"`
	Emoji     string    `gorm:"type:text;not null;uniqueIndex:idx_msg_user_emoji" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
