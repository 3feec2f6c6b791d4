package storage

import (
	"context"
	"time"

	"classhub/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Storage is the persistence contract consumed by the registry, presence
// tracker, message store and notification path. The Service implementation is
// the only component that touches message rows directly.
type Storage interface {
	// Users
	SaveUser(user *models.User) error
	SaveUserIfNotExists(username, fullName string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	LinkTelegramChat(userID string, chatID int64) error
	UnlinkTelegramChat(chatID int64) error
	SetUserLanguage(userID, lang string) error

	// Rooms
	CreateRoom(room *models.Room) error
	GetRoomByID(id string) (*models.Room, error)
	GetRoomByKey(key string) (*models.Room, error)
	GetOrCreateRoomByKey(room *models.Room) (*models.Room, error)
	UpdateRoomMembers(roomID string, members []string) error
	SetRoomLocked(roomID string, locked bool) error
	DeactivateRoom(roomID string) error

	// Messages
	SaveMessage(msg *models.Message) error
	GetMessageByID(id uint) (*models.Message, error)
	UpdateMessage(msg *models.Message) error
	GetRoomHistory(roomID string, beforeID uint, limit int) ([]models.Message, error)
	SaveReadReceipt(messageID uint, readerID string, at time.Time) (bool, error)
	AddReaction(reaction *models.Reaction) (bool, error)
	RemoveReaction(messageID uint, userID, emoji string) error
	ListReactions(messageID uint) ([]models.Reaction, error)

	// Presence
	SetPresenceStatus(userID, roomID, status string, at time.Time) error
	SetPresenceTyping(userID, roomID string, isTyping bool, at time.Time) error
	TouchPresenceRead(userID, roomID string, at time.Time) error
	GetPresence(userID, roomID string) (*models.PresenceRecord, error)
	ListRoomPresence(roomID string) ([]models.PresenceRecord, error)
	ClearStaleTyping(olderThan time.Time) ([]models.PresenceRecord, error)

	// Notifications
	SaveNotification(n *models.QueuedNotification) error
	GetNotificationByID(id uint) (*models.QueuedNotification, error)
	ListUnreadNotifications(recipientID string, beforeID uint, limit int) ([]models.QueuedNotification, error)
	MarkNotificationRead(id uint) error
	CountUnreadNotifications(recipientID string) (int64, error)

	// Redis caches and cross-node event bridge
	CacheMembership(roomID string, members []string, ttl time.Duration) error
	GetCachedMembership(roomID string) ([]string, bool, error)
	GetCachedUnreadCount(userID string) (int64, bool, error)
	SetCachedUnreadCount(userID string, count int64, ttl time.Duration) error
	InvalidateUnreadCount(userID string) error
	PublishEvent(roomID string, payload []byte) error
	SubscribeRooms() *redis.PubSub
}

// Service implements Storage over PostgreSQL (gorm) and Redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

var _ Storage = (*Service)(nil)

// Migrate creates or updates the tables for every model the engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Message{},
		&models.ReadReceipt{},
		&models.Reaction{},
		&models.PresenceRecord{},
		&models.QueuedNotification{},
	)
}
