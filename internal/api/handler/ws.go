package handler

import (
	"log"
	"net/http"

	"classhub/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the HTTP connection and subscribes it to the room
// addressed by the join URL. Anonymous handshakes are rejected before the
// upgrade, so no frame is ever sent to an unauthenticated caller.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, err := h.identityFromRequest(c)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// Resolve the stable room key (numeric id, direct key, course_<id>,
	// lesson_<id> or user_<id>) before the upgrade so access failures map to
	// plain HTTP statuses.
	room, err := h.Registry.ResolveKey(c.Param("room_key"))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, userID, room.ID, conn)
	if err := h.Hub.Register(client); err != nil {
		conn.Close()
		return
	}
	if err := h.Hub.JoinRoom(client, room.ID); err != nil {
		log.Printf("join refused for %s in room %s: %v", userID, room.ID, err)
		h.Hub.Unregister(client)
		conn.Close()
		return
	}

	client.Run()
}
