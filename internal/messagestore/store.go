// Package messagestore is the single write path for messages: every message
// enters the system through Append, which persists first and broadcasts
// second. Read receipts, edits, tombstones and reactions layer on top of the
// per-room append-only log.
package messagestore

import (
	"log"
	"strings"
	"time"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/config"
	"classhub/backend/internal/models"
	"classhub/backend/internal/presence"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"
)

// Broadcaster is the fan-out side of the engine. Invoked synchronously after
// each successful durable write, in append order, which gives every room's
// subscribers the same relative event order.
type Broadcaster interface {
	Broadcast(roomID string, ev models.Event)
}

// Store validates and persists messages, then hands them to the broadcaster.
type Store struct {
	Storage    storage.Storage
	Registry   *roster.Registry
	Presence   *presence.Tracker
	Dispatcher Broadcaster
}

func NewStore(s storage.Storage, registry *roster.Registry, tracker *presence.Tracker) *Store {
	return &Store{Storage: s, Registry: registry, Presence: tracker}
}

// Append validates, persists and broadcasts one message. It is the only path
// that produces a message row. A storage failure prevents any broadcast; a
// broadcast can never precede its durable write.
func (st *Store) Append(roomID, senderID, content, kind string, parentID *uint) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Invalid("message content is empty")
	}
	if kind == "" {
		kind = models.MessageText
	}

	room, err := st.Storage.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	if room.IsLocked {
		return nil, apperr.RoomLocked("room is locked to new messages")
	}
	if !room.IsActive {
		return nil, apperr.RoomLocked("room has been deactivated")
	}
	if err := st.Registry.Authorize(senderID, roomID, roster.ActionWrite); err != nil {
		return nil, err
	}

	if parentID != nil {
		parent, err := st.Storage.GetMessageByID(*parentID)
		if err != nil {
			return nil, err
		}
		// A reply may only point at a strictly earlier message of the same
		// room, which rules out reference cycles.
		if parent.RoomID != roomID {
			return nil, apperr.Invalid("reply parent belongs to another room")
		}
	}

	msg := &models.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		Kind:     kind,
		ParentID: parentID,
	}
	if err := st.Storage.SaveMessage(msg); err != nil {
		return nil, apperr.Transient(err, "message write failed")
	}

	st.broadcastMessage(room, msg)
	return msg, nil
}

// AppendSystem records a system message (participant joined, room locked and
// the like) authored by the engine rather than a member.
func (st *Store) AppendSystem(roomID, content string) (*models.Message, error) {
	msg := &models.Message{
		RoomID:   roomID,
		SenderID: "system",
		Content:  content,
		Kind:     models.MessageSystem,
	}
	if err := st.Storage.SaveMessage(msg); err != nil {
		return nil, apperr.Transient(err, "system message write failed")
	}
	if st.Dispatcher != nil {
		st.Dispatcher.Broadcast(roomID, models.Event{
			Type:           models.EventChatMessage,
			MessageID:      msg.ID,
			Content:        msg.Content,
			SenderID:       msg.SenderID,
			SenderUsername: "system",
			SenderFullName: "System",
			MessageType:    msg.Kind,
			Timestamp:      models.EventTimestamp(msg.CreatedAt),
			RoomID:         roomID,
			ActorID:        msg.SenderID,
		})
	}
	return msg, nil
}

// Edit replaces a message's content. Only the original sender may edit, and
// an edit always stamps the edited-at time.
func (st *Store) Edit(messageID uint, editorID, newContent string) (*models.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, apperr.Invalid("message content is empty")
	}
	msg, err := st.Storage.GetMessageByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, apperr.PermissionDenied("only the sender may edit a message")
	}
	if msg.IsDeleted {
		return nil, apperr.NotFound("message has been deleted")
	}
	now := time.Now()
	msg.Content = newContent
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := st.Storage.UpdateMessage(msg); err != nil {
		return nil, apperr.Transient(err, "message update failed")
	}
	return msg, nil
}

// SoftDelete tombstones a message: the content is hidden but the row persists
// for audit and ordering continuity. Allowed for the sender and moderators.
func (st *Store) SoftDelete(messageID uint, actorID string) error {
	msg, err := st.Storage.GetMessageByID(messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		if err := st.Registry.Authorize(actorID, msg.RoomID, roster.ActionManage); err != nil {
			return apperr.PermissionDenied("only the sender or a moderator may delete a message")
		}
	}
	if msg.IsDeleted {
		return nil
	}
	msg.IsDeleted = true
	msg.Content = models.TombstoneContent
	if err := st.Storage.UpdateMessage(msg); err != nil {
		return apperr.Transient(err, "message update failed")
	}
	return nil
}

// MarkRead records that readerID observed the message. Idempotent: repeated
// calls leave exactly one receipt row. The reader's last-read stamp for the
// room advances as a side effect.
func (st *Store) MarkRead(messageID uint, readerID string) error {
	msg, err := st.Storage.GetMessageByID(messageID)
	if err != nil {
		return err
	}
	if err := st.Registry.Authorize(readerID, msg.RoomID, roster.ActionRead); err != nil {
		return err
	}
	if _, err := st.Storage.SaveReadReceipt(messageID, readerID, time.Now()); err != nil {
		return apperr.Transient(err, "read receipt write failed")
	}
	st.Presence.TouchLastRead(readerID, msg.RoomID)
	return nil
}

// History returns the newest-first page of a room's messages for an
// authorized reader. beforeID is an opaque message-id cursor.
func (st *Store) History(roomID, requesterID string, beforeID uint, limit int) ([]models.Message, error) {
	if err := st.Registry.Authorize(requesterID, roomID, roster.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}
	return st.Storage.GetRoomHistory(roomID, beforeID, limit)
}

// AddReaction records one (user, emoji) mark and broadcasts it to everyone in
// the room, the reactor included. Duplicate reactions are no-ops.
func (st *Store) AddReaction(messageID uint, userID, emoji string) error {
	if emoji == "" {
		return apperr.Invalid("emoji is required")
	}
	msg, err := st.Storage.GetMessageByID(messageID)
	if err != nil {
		return err
	}
	if err := st.Registry.Authorize(userID, msg.RoomID, roster.ActionWrite); err != nil {
		return err
	}
	created, err := st.Storage.AddReaction(&models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji})
	if err != nil {
		return apperr.Transient(err, "reaction write failed")
	}
	if created {
		st.broadcastReaction(models.EventReactionAdded, msg, userID, emoji)
	}
	return nil
}

// RemoveReaction drops one (user, emoji) mark; a no-op if it was never there.
func (st *Store) RemoveReaction(messageID uint, userID, emoji string) error {
	msg, err := st.Storage.GetMessageByID(messageID)
	if err != nil {
		return err
	}
	if err := st.Storage.RemoveReaction(messageID, userID, emoji); err != nil {
		return apperr.Transient(err, "reaction delete failed")
	}
	st.broadcastReaction(models.EventReactionRemoved, msg, userID, emoji)
	return nil
}

func (st *Store) broadcastMessage(room *models.Room, msg *models.Message) {
	if st.Dispatcher == nil {
		return
	}
	sender := st.lookupUser(msg.SenderID)
	st.Dispatcher.Broadcast(room.ID, models.Event{
		Type:           models.EventChatMessage,
		MessageID:      msg.ID,
		Content:        msg.Content,
		SenderID:       sender.ID,
		SenderUsername: sender.Username,
		SenderFullName: sender.DisplayName(),
		MessageType:    msg.Kind,
		Timestamp:      models.EventTimestamp(msg.CreatedAt),
		RoomID:         room.ID,
		ActorID:        msg.SenderID,
	})
}

func (st *Store) broadcastReaction(eventType string, msg *models.Message, userID, emoji string) {
	if st.Dispatcher == nil {
		return
	}
	user := st.lookupUser(userID)
	st.Dispatcher.Broadcast(msg.RoomID, models.Event{
		Type:      eventType,
		MessageID: msg.ID,
		UserID:    user.ID,
		Username:  user.Username,
		Emoji:     emoji,
		Timestamp: models.EventTimestamp(time.Now()),
		RoomID:    msg.RoomID,
		ActorID:   userID,
	})
}

func (st *Store) lookupUser(userID string) *models.User {
	user, err := st.Storage.GetUserByID(userID)
	if err != nil {
		log.Printf("WARNING: user lookup failed for %s: %v", userID, err)
	}
	if user == nil {
		return &models.User{ID: userID, Username: userID}
	}
	return user
}
