package handler

import (
	"errors"
	"net/http"
	"strings"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/chathub"
	"classhub/backend/internal/messagestore"
	"classhub/backend/internal/notify"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler holds the engine components the HTTP layer fronts.
type Handler struct {
	Hub       *chathub.Manager
	Store     *messagestore.Store
	Registry  *roster.Registry
	Notify    *notify.Service
	Storage   storage.Storage
	JWTSecret []byte
}

func NewHandler(hub *chathub.Manager, store *messagestore.Store, registry *roster.Registry, n *notify.Service, s storage.Storage, jwtSecret string) *Handler {
	return &Handler{
		Hub:       hub,
		Store:     store,
		Registry:  registry,
		Notify:    n,
		Storage:   s,
		JWTSecret: []byte(jwtSecret),
	}
}

// RegisterRoutes wires the pull API and the websocket endpoint into gin.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/auth/token", h.IssueToken)
	r.GET("/ws/:room_key", h.ServeWebSocket)

	api := r.Group("/api", h.RequireAuth)
	{
		api.POST("/rooms/direct", h.CreateDirectRoom)
		api.POST("/rooms/group", h.CreateGroupRoom)
		api.GET("/rooms/:id/messages", h.ListMessages)
		api.POST("/rooms/:id/messages", h.SendMessage)
		api.GET("/rooms/:id/presence", h.ListPresence)
		api.POST("/rooms/:id/read", h.MarkRoomRead)
		api.POST("/rooms/:id/participants", h.AddParticipant)
		api.DELETE("/rooms/:id/participants/:user_id", h.RemoveParticipant)
		api.POST("/rooms/:id/lock", h.SetRoomLock)

		api.PATCH("/messages/:id", h.EditMessage)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.POST("/messages/:id/reactions", h.AddReaction)
		api.DELETE("/messages/:id/reactions/:emoji", h.RemoveReaction)

		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
		api.GET("/notifications/unread-count", h.UnreadCount)
	}
}

// RequireAuth resolves the bearer token into an identity and stores it on the
// request context.
func (h *Handler) RequireAuth(c *gin.Context) {
	userID, err := h.identityFromRequest(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    string(apperr.CodeUnauthenticated),
			"message": "missing or invalid token",
		})
		return
	}
	c.Set("user_id", userID)
	c.Next()
}

func (h *Handler) identityFromRequest(c *gin.Context) (string, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", errors.New("authorization token missing")
		}
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	return h.ResolveIdentity(token)
}

func currentUser(c *gin.Context) string {
	return c.GetString("user_id")
}

// writeError maps a component error onto the HTTP response, always carrying
// the stable code so client UIs can react programmatically.
func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	c.JSON(apperr.HTTPStatus(code), gin.H{
		"code":    string(code),
		"message": err.Error(),
	})
}
