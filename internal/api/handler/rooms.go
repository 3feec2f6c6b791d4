package handler

import (
	"log"
	"net/http"
	"strconv"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/roster"

	"github.com/gin-gonic/gin"
)

type createDirectRoomRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateDirectRoom returns the 1:1 room with another user, creating it on
// first use. Idempotent for either ordering of the pair.
func (h *Handler) CreateDirectRoom(c *gin.Context) {
	var req createDirectRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("user_id is required"))
		return
	}
	room, err := h.Registry.GetOrCreateDirectRoom(currentUser(c), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type createGroupRoomRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (h *Handler) CreateGroupRoom(c *gin.Context) {
	var req createGroupRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("invalid request body"))
		return
	}
	room, err := h.Registry.CreateGroupRoom(currentUser(c), req.Name, req.Members)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// ListMessages returns a newest-first page of room history. The before query
// parameter is a message-id cursor.
func (h *Handler) ListMessages(c *gin.Context) {
	before := parseUintQuery(c, "before")
	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := h.Store.History(c.Param("id"), currentUser(c), before, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	Content  string `json:"content" binding:"required"`
	Kind     string `json:"kind"`
	ParentID *uint  `json:"parent_id"`
}

// SendMessage appends a message through the same durable write path the
// websocket frames use.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("content is required"))
		return
	}
	msg, err := h.Store.Append(c.Param("id"), currentUser(c), req.Content, req.Kind, req.ParentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListPresence answers "who's online" for the room, including typing state.
func (h *Handler) ListPresence(c *gin.Context) {
	roomID := c.Param("id")
	if err := h.Registry.Authorize(currentUser(c), roomID, roster.ActionRead); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": h.Hub.Presence.Snapshot(roomID)})
}

// MarkRoomRead marks the newest message of the room as read, advancing the
// caller's last-read stamp.
func (h *Handler) MarkRoomRead(c *gin.Context) {
	roomID := c.Param("id")
	messages, err := h.Store.History(roomID, currentUser(c), 0, 1)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(messages) > 0 {
		if err := h.Store.MarkRead(messages[0].ID, currentUser(c)); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type participantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) AddParticipant(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("user_id is required"))
		return
	}
	roomID := c.Param("id")
	if err := h.Registry.AddParticipant(roomID, currentUser(c), req.UserID); err != nil {
		writeError(c, err)
		return
	}
	h.announce(roomID, req.UserID+" joined the room")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) RemoveParticipant(c *gin.Context) {
	roomID := c.Param("id")
	userID := c.Param("user_id")
	if err := h.Registry.RemoveParticipant(roomID, currentUser(c), userID); err != nil {
		writeError(c, err)
		return
	}
	h.announce(roomID, userID+" left the room")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type lockRequest struct {
	Locked bool `json:"locked"`
}

// SetRoomLock locks or unlocks the room for new writes, the forum-topic lock
// equivalent.
func (h *Handler) SetRoomLock(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("invalid request body"))
		return
	}
	if err := h.Registry.SetLocked(c.Param("id"), currentUser(c), req.Locked); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": req.Locked})
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) EditMessage(c *gin.Context) {
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("content is required"))
		return
	}
	id := parseUintParam(c, "id")
	msg, err := h.Store.Edit(id, currentUser(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id := parseUintParam(c, "id")
	if err := h.Store.SoftDelete(id, currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *Handler) AddReaction(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("emoji is required"))
		return
	}
	id := parseUintParam(c, "id")
	if err := h.Store.AddReaction(id, currentUser(c), req.Emoji); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) RemoveReaction(c *gin.Context) {
	id := parseUintParam(c, "id")
	if err := h.Store.RemoveReaction(id, currentUser(c), c.Param("emoji")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// announce records a system message so membership changes reach live
// subscribers through the ordinary append path.
func (h *Handler) announce(roomID, text string) {
	if _, err := h.Store.AppendSystem(roomID, text); err != nil {
		log.Printf("WARNING: system message failed for room %s: %v", roomID, err)
	}
}

func parseUintParam(c *gin.Context, name string) uint {
	v, _ := strconv.ParseUint(c.Param(name), 10, 64)
	return uint(v)
}

func parseUintQuery(c *gin.Context, name string) uint {
	v, _ := strconv.ParseUint(c.Query(name), 10, 64)
	return uint(v)
}
