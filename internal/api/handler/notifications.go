package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ListNotifications returns the caller's unread notifications, newest first.
func (h *Handler) ListNotifications(c *gin.Context) {
	before := parseUintQuery(c, "before")
	limit, _ := strconv.Atoi(c.Query("limit"))
	notifications, err := h.Notify.ListUnread(currentUser(c), before, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkNotificationRead clears one of the caller's notifications.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id := parseUintParam(c, "id")
	if err := h.Notify.MarkRead(id, currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UnreadCount answers the frequently polled unread total from the cache.
func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.Notify.UnreadCount(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}
