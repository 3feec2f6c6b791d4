package chathub

import "classhub/backend/internal/models"

// Client is the interface for one live connection to a user's client. It
// abstracts the underlying transport so the hub can manage websocket
// connections and test doubles uniformly.
type Client interface {
	// GetConnID returns the opaque identifier of this connection. One user may
	// hold several connections at once (multiple tabs or devices).
	GetConnID() string
	// GetUserID returns the authenticated identity behind the connection.
	GetUserID() string
	// GetRoomID returns the room this connection addresses with inbound frames,
	// taken from the join URL.
	GetRoomID() string

	// TrySend queues an outbound event frame without blocking. It reports
	// false when the client cannot accept the event, either because its send
	// buffer is full or because the connection has been closed.
	TrySend(ev models.Event) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the connection and its send channel. Safe to call more
	// than once.
	Close()
}
