package chathub

import (
	"encoding/json"
	"strings"
	"time"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/models"
)

// MessageStore is the durable write path the hub drives on inbound frames.
// Implemented by the message store; appended messages are broadcast from
// inside Append, after the durability point.
type MessageStore interface {
	Append(roomID, senderID, content, kind string, parentID *uint) (*models.Message, error)
	MarkRead(messageID uint, readerID string) error
}

// SetMessageStore wires the durable write path into the hub.
func (m *Manager) SetMessageStore(store MessageStore) { m.store = store }

// HandleFrame routes one raw inbound frame from a client connection.
// Malformed frames and rejected writes are answered with an error frame on
// the same connection; the connection stays open either way.
func (m *Manager) HandleFrame(client Client, raw []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		m.sendError(client, models.Event{Type: models.EventError, Message: "Invalid JSON format"})
		return
	}

	switch frame.Type {
	case models.FrameChatMessage:
		m.handleChatMessage(client, frame)
	case models.FrameTypingIndicator:
		m.handleTyping(client, frame)
	case models.FrameMarkAsRead:
		m.handleMarkRead(client, frame)
	default:
		m.sendError(client, models.Event{Type: models.EventError, Message: "Invalid JSON format"})
	}
}

func (m *Manager) handleChatMessage(client Client, frame models.InboundFrame) {
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		return
	}
	if m.store == nil {
		return
	}
	_, err := m.store.Append(client.GetRoomID(), client.GetUserID(), content, models.MessageText, nil)
	if err != nil {
		m.sendError(client, models.ErrorEvent(string(apperr.CodeOf(err)), err.Error()))
	}
}

func (m *Manager) handleTyping(client Client, frame models.InboundFrame) {
	roomID := client.GetRoomID()
	m.Presence.SetTyping(client.GetUserID(), roomID, frame.IsTyping)
	if m.Dispatcher != nil {
		user := m.lookupUser(client.GetUserID())
		m.Dispatcher.Broadcast(roomID, typingEvent(roomID, user, frame.IsTyping, time.Now()))
	}
}

func (m *Manager) handleMarkRead(client Client, frame models.InboundFrame) {
	if frame.MessageID == 0 || m.store == nil {
		return
	}
	if err := m.store.MarkRead(frame.MessageID, client.GetUserID()); err != nil {
		m.sendError(client, models.ErrorEvent(string(apperr.CodeOf(err)), err.Error()))
	}
}

// sendError answers only the offending connection. Best-effort: a client that
// is full or already closed just misses the frame.
func (m *Manager) sendError(client Client, ev models.Event) {
	client.TrySend(ev)
}
