// Package notify is the fallback path for recipients who were not live at
// delivery time: a durable "you missed this" record plus the pull API for
// catching up. Outbound delivery beyond the live connection (mobile push,
// email) is handed to the task queue for an external bridge.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/config"
	"classhub/backend/internal/models"
	"classhub/backend/internal/queue"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"
)

// TaskNotificationPush is the queue task consumed by the worker binary.
const TaskNotificationPush = "notification:push"

// PushPayload is the queue payload for one notification hand-off.
type PushPayload struct {
	NotificationID uint   `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	RoomID         string `json:"room_id"`
	Summary        string `json:"summary"`
}

// Broadcaster pushes a live frame to a room's subscribers. Used to surface a
// new notification on the recipient's feed room when they are connected to it.
type Broadcaster interface {
	Broadcast(roomID string, ev models.Event)
}

// Service implements the notification fallback path.
type Service struct {
	Storage  storage.Storage
	Registry *roster.Registry
	Queue    queue.Client // optional; best-effort hand-off to the push bridge
	Live     Broadcaster  // optional; set during wiring
}

func NewService(s storage.Storage, registry *roster.Registry) *Service {
	return &Service{Storage: s, Registry: registry}
}

// Enqueue durably records a missed event for the recipient. Repeated enqueues
// for re-delivery attempts are acceptable as distinct records. After the
// durable write the notification is surfaced on the recipient's feed room and
// handed to the push bridge, both best-effort.
func (s *Service) Enqueue(recipientID, roomID string, messageID *uint, summary string) error {
	n := &models.QueuedNotification{
		RecipientID: recipientID,
		RoomID:      roomID,
		MessageID:   messageID,
		Summary:     summary,
	}
	if err := s.Storage.SaveNotification(n); err != nil {
		return apperr.Transient(err, "notification write failed")
	}
	if err := s.Storage.InvalidateUnreadCount(recipientID); err != nil {
		log.Printf("WARNING: unread-count invalidation failed for %s: %v", recipientID, err)
	}

	s.pushToFeed(recipientID, n)
	s.handOff(n)
	return nil
}

// pushToFeed delivers the notification frame to the recipient's lazily
// created feed room, reaching clients that poll nothing but their feed.
func (s *Service) pushToFeed(recipientID string, n *models.QueuedNotification) {
	if s.Live == nil {
		return
	}
	feed, err := s.Registry.GetOrCreateFeedRoom(recipientID)
	if err != nil {
		log.Printf("WARNING: feed room lookup failed for %s: %v", recipientID, err)
		return
	}
	s.Live.Broadcast(feed.ID, models.Event{
		Type:      models.EventNotification,
		Message:   n.Summary,
		Timestamp: models.EventTimestamp(n.CreatedAt),
		RoomID:    feed.ID,
	})
}

func (s *Service) handOff(n *models.QueuedNotification) {
	if s.Queue == nil {
		return
	}
	payload, err := json.Marshal(PushPayload{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		RoomID:         n.RoomID,
		Summary:        n.Summary,
	})
	if err != nil {
		log.Printf("ERROR: Cannot marshal push payload for notification %d: %v", n.ID, err)
		return
	}
	if err := s.Queue.Enqueue(context.Background(), queue.Task{Type: TaskNotificationPush, Payload: payload}); err != nil {
		log.Printf("WARNING: push hand-off failed for notification %d: %v", n.ID, err)
	}
}

// ListUnread returns the recipient's unread notifications, newest first.
// beforeID is a cursor for pagination.
func (s *Service) ListUnread(recipientID string, beforeID uint, limit int) ([]models.QueuedNotification, error) {
	if limit <= 0 {
		limit = config.DefaultNotificationLimit
	}
	return s.Storage.ListUnreadNotifications(recipientID, beforeID, limit)
}

// MarkRead clears one notification. Forbidden unless it belongs to recipientID.
func (s *Service) MarkRead(notificationID uint, recipientID string) error {
	n, err := s.Storage.GetNotificationByID(notificationID)
	if err != nil {
		return err
	}
	if n.RecipientID != recipientID {
		return apperr.PermissionDenied("notification belongs to another user")
	}
	if n.IsRead {
		return nil
	}
	if err := s.Storage.MarkNotificationRead(notificationID); err != nil {
		return apperr.Transient(err, "notification update failed")
	}
	if err := s.Storage.InvalidateUnreadCount(recipientID); err != nil {
		log.Printf("WARNING: unread-count invalidation failed for %s: %v", recipientID, err)
	}
	return nil
}

// UnreadCount returns the recipient's unread total. Clients poll this
// frequently, so the answer is served from a short-TTL cache when possible.
func (s *Service) UnreadCount(recipientID string) (int64, error) {
	if count, ok, err := s.Storage.GetCachedUnreadCount(recipientID); err == nil && ok {
		return count, nil
	}
	count, err := s.Storage.CountUnreadNotifications(recipientID)
	if err != nil {
		return 0, err
	}
	if err := s.Storage.SetCachedUnreadCount(recipientID, count, config.UnreadCountCacheTTL); err != nil {
		log.Printf("WARNING: unread-count cache write failed for %s: %v", recipientID, err)
	}
	return count, nil
}
