package chathub

import (
	"time"

	"classhub/backend/internal/models"
)

func typingEvent(roomID string, user *models.User, isTyping bool, at time.Time) models.Event {
	return models.Event{
		Type:      models.EventTypingIndicator,
		UserID:    user.ID,
		Username:  user.Username,
		IsTyping:  models.Bool(isTyping),
		Timestamp: models.EventTimestamp(at),
		RoomID:    roomID,
		ActorID:   user.ID,
	}
}

func statusEvent(roomID string, user *models.User, online bool) models.Event {
	return models.Event{
		Type:      models.EventStatusUpdate,
		UserID:    user.ID,
		Username:  user.Username,
		IsOnline:  models.Bool(online),
		Timestamp: models.EventTimestamp(time.Now()),
		RoomID:    roomID,
		ActorID:   user.ID,
	}
}
