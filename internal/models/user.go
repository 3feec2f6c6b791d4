package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local read model of an LMS account. The LMS owns accounts and
// authentication; this row only carries what outbound event frames need
// (username and display name for sender attribution).
type User struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	FullName string `gorm:"type:text" json:"full_name"`

	// Push delivery channel, populated when the user links the Telegram bot.
	TelegramChatID int64  `gorm:"index" json:"-"`
	Language       string `gorm:"default:en" json:"-"`
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// BeforeCreate is a GORM hook that assigns a UUID if the ID is unset.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
