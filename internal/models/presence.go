package models

import "time"

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

// PresenceRecord is the last-known liveness state of one identity in one room.
// Records are created on first activity and retained as last-known state; they
// are never deleted, only updated.
type PresenceRecord struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"type:text;not null;uniqueIndex:idx_user_room" json:"user_id"`
	RoomID string `gorm:"type:text;not null;uniqueIndex:idx_user_room" json:"room_id"`
	// Status is "online", "offline" or "away".
	Status string `gorm:"type:text;not null" json:"status"`
	// IsTyping is a soft real-time flag, auto-cleared by the periodic sweep
	// once TypingStartedAt is older than the typing timeout.
	IsTyping        bool       `json:"is_typing"`
	TypingStartedAt *time.Time `json:"typing_started_at,omitempty"`
	LastSeen        time.Time  `json:"last_seen"`
	// LastReadAt advances whenever the user marks a message in the room as read.
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}
