package models

import "time"

// Inbound frame types accepted on a websocket connection.
const (
	FrameChatMessage     = "chat_message"
	FrameTypingIndicator = "typing_indicator"
	FrameMarkAsRead      = "mark_as_read"
)

// Outbound event types pushed to subscribers.
const (
	EventChatMessage     = "chat_message"
	EventTypingIndicator = "typing_indicator"
	EventStatusUpdate    = "user_status_update"
	EventReactionAdded   = "reaction_added"
	EventReactionRemoved = "reaction_removed"
	EventNotification    = "notification"
	EventError           = "error"
)

// InboundFrame is one JSON frame read from a client connection.
type InboundFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	IsTyping  bool   `json:"is_typing"`
	MessageID uint   `json:"message_id"`
}

// Event is one serialized frame pushed to a live subscriber. A single struct
// covers every outbound type; fields irrelevant to a type stay omitted so each
// frame matches the wire format the existing clients expect.
type Event struct {
	Type string `json:"type"`

	// chat_message fields
	MessageID      uint   `json:"message_id,omitempty"`
	Content        string `json:"content,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	SenderUsername string `json:"sender_username,omitempty"`
	SenderFullName string `json:"sender_full_name,omitempty"`
	MessageType    string `json:"message_type,omitempty"`

	// typing_indicator / user_status_update fields
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	IsTyping *bool  `json:"is_typing,omitempty"`
	IsOnline *bool  `json:"is_online,omitempty"`

	// reaction fields
	Emoji string `json:"emoji,omitempty"`

	// error / notification fields
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`

	// RoomID routes the event internally; it is not part of the wire frame.
	RoomID string `json:"-"`
	// ActorID drives the per-type exclusion rule during fan-out.
	ActorID string `json:"-"`
}

// Bool returns a pointer for the optional boolean event fields.
func Bool(v bool) *bool { return &v }

// EventTimestamp formats t the way the existing clients parse timestamps.
func EventTimestamp(t time.Time) string { return t.Format(time.RFC3339Nano) }

// ErrorEvent builds an error frame with a stable machine-readable code.
func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}
