package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"classhub/backend/internal/api/handler"
	"classhub/backend/internal/chathub"
	"classhub/backend/internal/messagestore"
	"classhub/backend/internal/notify"
	"classhub/backend/internal/presence"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type openEnrollment struct{}

func (openEnrollment) MembersOfCourse(courseID string) ([]string, error)  { return nil, nil }
func (openEnrollment) IsInstructor(userID, courseID string) (bool, error) { return false, nil }
func (openEnrollment) IsModerator(userID string) (bool, error)            { return false, nil }
func (openEnrollment) CourseOfLesson(lessonID string) (string, error) {
	return "", fmt.Errorf("unknown lesson")
}

func newTestRouter(t *testing.T) (*gin.Engine, *handler.Handler, *storage.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	mr := miniredis.RunT(t)
	s := storage.NewStorageService(db, redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	registry := roster.NewRegistry(s, openEnrollment{})
	tracker := presence.NewTracker(s)
	hub := chathub.NewManager(registry, tracker, s)
	notifySvc := notify.NewService(s, registry)
	dispatcher := chathub.NewDispatcher(hub, registry, notifySvc, s)
	notifySvc.Live = dispatcher
	store := messagestore.NewStore(s, registry, tracker)
	store.Dispatcher = dispatcher
	hub.SetMessageStore(store)

	h := handler.NewHandler(hub, store, registry, notifySvc, s, "test-secret")
	r := gin.New()
	h.RegisterRoutes(r)
	return r, h, s
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	}
	return w, parsed
}

func issueToken(t *testing.T, r *gin.Engine, username string) (token, userID string) {
	t.Helper()
	w, body := doJSON(t, r, http.MethodGet, "/auth/token?username="+username, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	return body["token"].(string), body["user_id"].(string)
}

func TestIssueToken(t *testing.T) {
	r, h, _ := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/auth/token", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token, userID := issueToken(t, r, "alice")
	resolved, err := h.ResolveIdentity(token)
	require.NoError(t, err)
	assert.Equal(t, userID, resolved)

	// A second call returns the same identity.
	_, again := issueToken(t, r, "alice")
	assert.Equal(t, userID, again)
}

func TestRequireAuth(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, body := doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", body["code"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := issueToken(t, r, "alice")
	w, body = doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["unread_count"])
}

// TestDirectRoomFlow drives the pull API end to end: create a direct room from
// both sides, send a message, page the history back.
func TestDirectRoomFlow(t *testing.T) {
	r, _, _ := newTestRouter(t)
	aliceToken, _ := issueToken(t, r, "alice")
	bobToken, bobID := issueToken(t, r, "bob")

	w, room := doJSON(t, r, http.MethodPost, "/api/rooms/direct", aliceToken,
		fmt.Sprintf(`{"user_id":%q}`, bobID))
	require.Equal(t, http.StatusOK, w.Code)
	roomID := room["id"].(string)

	// Bob opening the conversation from his side lands in the same room.
	aliceID := room["created_by_id"].(string)
	w, sameRoom := doJSON(t, r, http.MethodPost, "/api/rooms/direct", bobToken,
		fmt.Sprintf(`{"user_id":%q}`, aliceID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, roomID, sameRoom["id"])

	w, msg := doJSON(t, r, http.MethodPost, "/api/rooms/"+roomID+"/messages", aliceToken,
		`{"content":"hello bob"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "hello bob", msg["content"])

	w, page := doJSON(t, r, http.MethodGet, "/api/rooms/"+roomID+"/messages", bobToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	messages := page["messages"].([]interface{})
	require.Len(t, messages, 1)

	// An outsider is rejected with the stable code.
	malloryToken, _ := issueToken(t, r, "mallory")
	w, body := doJSON(t, r, http.MethodGet, "/api/rooms/"+roomID+"/messages", malloryToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission_denied", body["code"])
}

// TestLockedRoomRejectsSend verifies error mapping for the lock: 403 with the
// room_locked code.
func TestLockedRoomRejectsSend(t *testing.T) {
	r, _, s := newTestRouter(t)
	aliceToken, _ := issueToken(t, r, "alice")
	_, bobID := issueToken(t, r, "bob")

	w, room := doJSON(t, r, http.MethodPost, "/api/rooms/direct", aliceToken,
		fmt.Sprintf(`{"user_id":%q}`, bobID))
	require.Equal(t, http.StatusOK, w.Code)
	roomID := room["id"].(string)

	require.NoError(t, s.SetRoomLocked(roomID, true))

	w, body := doJSON(t, r, http.MethodPost, "/api/rooms/"+roomID+"/messages", aliceToken,
		`{"content":"too late"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "room_locked", body["code"])
}

func TestGroupRoomAndParticipants(t *testing.T) {
	r, _, _ := newTestRouter(t)
	aliceToken, aliceID := issueToken(t, r, "alice")
	_, bobID := issueToken(t, r, "bob")
	_, carolID := issueToken(t, r, "carol")

	w, room := doJSON(t, r, http.MethodPost, "/api/rooms/group", aliceToken,
		fmt.Sprintf(`{"name":"Study group","members":[%q]}`, bobID))
	require.Equal(t, http.StatusCreated, w.Code)
	roomID := room["id"].(string)
	assert.Equal(t, aliceID, room["created_by_id"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/rooms/"+roomID+"/participants", aliceToken,
		fmt.Sprintf(`{"user_id":%q}`, carolID))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/rooms/"+roomID+"/participants/"+bobID, aliceToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Lock the room through the API and observe the effect.
	w, _ = doJSON(t, r, http.MethodPost, "/api/rooms/"+roomID+"/lock", aliceToken, `{"locked":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, r, http.MethodPost, "/api/rooms/"+roomID+"/messages", aliceToken,
		`{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "room_locked", body["code"])
}

func TestNotificationEndpoints(t *testing.T) {
	r, h, _ := newTestRouter(t)
	bobToken, bobID := issueToken(t, r, "bob")

	require.NoError(t, h.Notify.Enqueue(bobID, "room-1", nil, "alice: hello"))

	w, body := doJSON(t, r, http.MethodGet, "/api/notifications", bobToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	notifications := body["notifications"].([]interface{})
	require.Len(t, notifications, 1)
	first := notifications[0].(map[string]interface{})
	assert.Equal(t, "alice: hello", first["summary"])

	w, body = doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", bobToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["unread_count"])

	id := uint(first["id"].(float64))
	w, _ = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", id), bobToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", bobToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["unread_count"])
}
