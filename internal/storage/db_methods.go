package storage

import (
	"errors"
	"log"
	"time"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveUser upserts the user directory row.
func (s *Service) SaveUser(user *models.User) error {
	return s.DB.Save(user).Error
}

// SaveUserIfNotExists returns the directory row for the username, creating it
// on first contact.
func (s *Service) SaveUserIfNotExists(username, fullName string) (*models.User, error) {
	var user models.User
	defaults := models.User{Username: username, FullName: fullName}
	result := s.DB.Where("username = ?", username).FirstOrCreate(&user, defaults)
	if result.Error != nil {
		log.Printf("ERROR: Failed to save user %s on first contact: %v", username, result.Error)
		return nil, result.Error
	}
	return &user, nil
}

func (s *Service) GetUserByID(id string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LinkTelegramChat binds a Telegram chat to the user as a push channel.
// Relinking moves the chat: any previous user holding it is unlinked first.
func (s *Service) LinkTelegramChat(userID string, chatID int64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("telegram_chat_id = ?", chatID).
			Update("telegram_chat_id", 0).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("telegram_chat_id", chatID).Error
	})
}

func (s *Service) UnlinkTelegramChat(chatID int64) error {
	return s.DB.Model(&models.User{}).
		Where("telegram_chat_id = ?", chatID).
		Update("telegram_chat_id", 0).Error
}

func (s *Service) SetUserLanguage(userID, lang string) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("language", lang).Error
}

func (s *Service) CreateRoom(room *models.Room) error {
	return s.DB.Create(room).Error
}

func (s *Service) GetRoomByID(id string) (*models.Room, error) {
	var room models.Room
	err := s.DB.First(&room, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("room " + id + " does not exist")
	}
	if err != nil {
		log.Printf("ERROR: Failed to get room %s: %v", id, err)
		return nil, err
	}
	return &room, nil
}

func (s *Service) GetRoomByKey(key string) (*models.Room, error) {
	var room models.Room
	err := s.DB.First(&room, "room_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("no room with key " + key)
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetOrCreateRoomByKey creates the room unless a row with the same RoomKey
// already exists, and returns the winning row either way. The unique index on
// room_key resolves concurrent first-call races: the loser's insert fails and
// it re-reads the winner's row.
func (s *Service) GetOrCreateRoomByKey(room *models.Room) (*models.Room, error) {
	var existing models.Room
	err := s.DB.Where("room_key = ?", room.RoomKey).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if createErr := s.DB.Create(room).Error; createErr != nil {
		// Lost the race to a concurrent creator; the row exists now.
		if retryErr := s.DB.Where("room_key = ?", room.RoomKey).First(&existing).Error; retryErr == nil {
			return &existing, nil
		}
		log.Printf("ERROR: Failed to create room %s: %v", room.RoomKey, createErr)
		return nil, createErr
	}
	return room, nil
}

func (s *Service) UpdateRoomMembers(roomID string, members []string) error {
	return s.DB.Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("member_ids", toStringArray(members)).Error
}

func (s *Service) SetRoomLocked(roomID string, locked bool) error {
	return s.DB.Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("is_locked", locked).Error
}

// DeactivateRoom flags the room inactive. Rooms are never hard-deleted.
func (s *Service) DeactivateRoom(roomID string) error {
	return s.DB.Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("is_active", false).Error
}

// SaveMessage persists the message and fills in its assigned ID and timestamp.
func (s *Service) SaveMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for room %s: %v", msg.RoomID, err)
		return err
	}
	return nil
}

func (s *Service) GetMessageByID(id uint) (*models.Message, error) {
	var msg models.Message
	err := s.DB.First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message does not exist")
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Service) UpdateMessage(msg *models.Message) error {
	return s.DB.Save(msg).Error
}

// GetRoomHistory returns the newest-first page of a room's messages. beforeID
// is a message-id cursor (0 means "from the latest"); a cursor stays correct
// under concurrent inserts where an offset would not.
func (s *Service) GetRoomHistory(roomID string, beforeID uint, limit int) ([]models.Message, error) {
	q := s.DB.Where("room_id = ?", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var history []models.Message
	err := q.Order("created_at desc").Order("id desc").Limit(limit).Find(&history).Error
	if err != nil {
		log.Printf("ERROR: Failed to get history for room %s: %v", roomID, err)
		return nil, err
	}
	return history, nil
}

// SaveReadReceipt records that readerID observed the message. It reports
// whether a new receipt row was created; re-marking as read is a no-op.
func (s *Service) SaveReadReceipt(messageID uint, readerID string, at time.Time) (bool, error) {
	receipt := models.ReadReceipt{MessageID: messageID, ReaderID: readerID, ReadAt: at}
	result := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt)
	if result.Error != nil {
		log.Printf("ERROR: Failed to save read receipt for message %d: %v", messageID, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) AddReaction(reaction *models.Reaction) (bool, error) {
	result := s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) RemoveReaction(messageID uint, userID, emoji string) error {
	return s.DB.
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.Reaction{}).Error
}

func (s *Service) ListReactions(messageID uint) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := s.DB.Where("message_id = ?", messageID).Order("created_at asc").Find(&reactions).Error
	return reactions, err
}

// upsertPresence loads or initializes the (user, room) record and applies mutate.
func (s *Service) upsertPresence(userID, roomID string, mutate func(*models.PresenceRecord)) error {
	var record models.PresenceRecord
	err := s.DB.Where(models.PresenceRecord{UserID: userID, RoomID: roomID}).
		Attrs(models.PresenceRecord{Status: models.StatusOffline}).
		FirstOrCreate(&record).Error
	if err != nil {
		return err
	}
	mutate(&record)
	return s.DB.Save(&record).Error
}

func (s *Service) SetPresenceStatus(userID, roomID, status string, at time.Time) error {
	return s.upsertPresence(userID, roomID, func(r *models.PresenceRecord) {
		r.Status = status
		r.LastSeen = at
		if status == models.StatusOffline {
			r.IsTyping = false
			r.TypingStartedAt = nil
		}
	})
}

func (s *Service) SetPresenceTyping(userID, roomID string, isTyping bool, at time.Time) error {
	return s.upsertPresence(userID, roomID, func(r *models.PresenceRecord) {
		r.IsTyping = isTyping
		r.LastSeen = at
		if isTyping {
			started := at
			r.TypingStartedAt = &started
		} else {
			r.TypingStartedAt = nil
		}
	})
}

func (s *Service) TouchPresenceRead(userID, roomID string, at time.Time) error {
	return s.upsertPresence(userID, roomID, func(r *models.PresenceRecord) {
		read := at
		r.LastReadAt = &read
	})
}

// GetPresence returns nil without error when the pair has never been seen;
// callers treat that as offline.
func (s *Service) GetPresence(userID, roomID string) (*models.PresenceRecord, error) {
	var record models.PresenceRecord
	err := s.DB.Where("user_id = ? AND room_id = ?", userID, roomID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) ListRoomPresence(roomID string) ([]models.PresenceRecord, error) {
	var records []models.PresenceRecord
	err := s.DB.Where("room_id = ?", roomID).Order("user_id asc").Find(&records).Error
	return records, err
}

// ClearStaleTyping clears every typing flag whose typing_started_at is older
// than the cutoff and returns the records it cleared so callers can broadcast
// the corresponding typing-off events.
func (s *Service) ClearStaleTyping(olderThan time.Time) ([]models.PresenceRecord, error) {
	var stale []models.PresenceRecord
	err := s.DB.
		Where("is_typing = ? AND typing_started_at IS NOT NULL AND typing_started_at < ?", true, olderThan).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(stale))
	for i := range stale {
		ids = append(ids, stale[i].ID)
		stale[i].IsTyping = false
		stale[i].TypingStartedAt = nil
	}
	err = s.DB.Model(&models.PresenceRecord{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"is_typing": false, "typing_started_at": nil}).Error
	if err != nil {
		log.Printf("ERROR: Failed to clear stale typing indicators: %v", err)
		return nil, err
	}
	return stale, nil
}

func (s *Service) SaveNotification(n *models.QueuedNotification) error {
	if err := s.DB.Create(n).Error; err != nil {
		log.Printf("ERROR: Failed to save notification for %s: %v", n.RecipientID, err)
		return err
	}
	return nil
}

func (s *Service) GetNotificationByID(id uint) (*models.QueuedNotification, error) {
	var n models.QueuedNotification
	err := s.DB.First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("notification does not exist")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Service) ListUnreadNotifications(recipientID string, beforeID uint, limit int) ([]models.QueuedNotification, error) {
	q := s.DB.Where("recipient_id = ? AND is_read = ?", recipientID, false)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var notifications []models.QueuedNotification
	err := q.Order("id desc").Limit(limit).Find(&notifications).Error
	return notifications, err
}

func (s *Service) MarkNotificationRead(id uint) error {
	return s.DB.Model(&models.QueuedNotification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
}

func (s *Service) CountUnreadNotifications(recipientID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.QueuedNotification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}
