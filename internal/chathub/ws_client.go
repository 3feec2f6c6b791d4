package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"classhub/backend/internal/config"
	"classhub/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketClient implements the chathub.Client interface over a gorilla
// websocket connection.
type WebSocketClient struct {
	ConnID string
	UserID string
	RoomID string
	Conn   *websocket.Conn
	Hub    *Manager

	mu     sync.Mutex
	send   chan models.Event
	closed bool
}

// NewWebSocketClient wraps an upgraded connection for the given identity and
// the room addressed by the join URL.
func NewWebSocketClient(hub *Manager, userID, roomID string, conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{
		ConnID: uuid.New().String(),
		UserID: userID,
		RoomID: roomID,
		Conn:   conn,
		Hub:    hub,
		send:   make(chan models.Event, config.ClientSendBuffer),
	}
}

func (c *WebSocketClient) GetConnID() string { return c.ConnID }
func (c *WebSocketClient) GetUserID() string { return c.UserID }
func (c *WebSocketClient) GetRoomID() string { return c.RoomID }

// TrySend queues an outbound event without blocking. It reports false when the
// buffer is full or the connection is already closed. The mutex is held across
// the send so a concurrent Close can never close the channel mid-send.
func (c *WebSocketClient) TrySend(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the send channel down, which stops the write pump. Safe to call
// from both the hub and the read pump's defer; late senders see the closed
// flag instead of the closed channel.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message from %s: %v", c.UserID, err)
			}
			break
		}
		c.Hub.HandleFrame(c, message)
	}
}

// writePump drains the Send channel into the websocket and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed by the hub; close the websocket too.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Error encoding event for client %s: %v", c.UserID, err)
				continue
			}

			// One event per websocket message; the existing clients parse
			// each text message as a single JSON frame.
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
