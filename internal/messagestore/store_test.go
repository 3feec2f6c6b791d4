package messagestore_test

import (
	"fmt"
	"sync"
	"testing"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/messagestore"
	"classhub/backend/internal/models"
	"classhub/backend/internal/presence"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingBroadcaster captures events handed to the fan-out side so tests can
// assert on ordering and content without a live hub.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.Event
}

func (b *recordingBroadcaster) Broadcast(roomID string, ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) all() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Event(nil), b.events...)
}

type moderatorEnrollment struct{}

func (moderatorEnrollment) MembersOfCourse(courseID string) ([]string, error)  { return nil, nil }
func (moderatorEnrollment) IsInstructor(userID, courseID string) (bool, error) { return false, nil }
func (moderatorEnrollment) IsModerator(userID string) (bool, error)            { return userID == "admin", nil }
func (moderatorEnrollment) CourseOfLesson(lessonID string) (string, error) {
	return "", fmt.Errorf("unknown lesson")
}

func newTestStore(t *testing.T) (*messagestore.Store, *recordingBroadcaster, *roster.Registry, *storage.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	mr := miniredis.RunT(t)
	s := storage.NewStorageService(db, redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	registry := roster.NewRegistry(s, moderatorEnrollment{})
	tracker := presence.NewTracker(s)
	store := messagestore.NewStore(s, registry, tracker)
	broadcaster := &recordingBroadcaster{}
	store.Dispatcher = broadcaster
	return store, broadcaster, registry, s
}

// TestAppend_StoreThenBroadcast verifies the core ordering invariant: the
// broadcast frame carries the id and timestamp of the already persisted row.
func TestAppend_StoreThenBroadcast(t *testing.T) {
	store, broadcaster, registry, s := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	require.NoError(t, s.SaveUser(&models.User{ID: "alice", Username: "alice", FullName: "Alice A"}))

	msg, err := store.Append(room.ID, "alice", "hello", models.MessageText, nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventChatMessage, events[0].Type)
	assert.Equal(t, msg.ID, events[0].MessageID)
	assert.Equal(t, "hello", events[0].Content)
	assert.Equal(t, "alice", events[0].SenderID)
	assert.Equal(t, "alice", events[0].SenderUsername)
	assert.Equal(t, "Alice A", events[0].SenderFullName)
	assert.Equal(t, "alice", events[0].ActorID)
	assert.Equal(t, room.ID, events[0].RoomID)
	assert.NotEmpty(t, events[0].Timestamp)
}

func TestAppend_PerRoomOrder(t *testing.T) {
	store, broadcaster, registry, _ := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := store.Append(room.ID, "alice", fmt.Sprintf("message %d", i), models.MessageText, nil)
		require.NoError(t, err)
	}

	events := broadcaster.all()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprintf("message %d", i+1), ev.Content, "broadcasts follow append order")
	}
	assert.True(t, events[0].MessageID < events[1].MessageID && events[1].MessageID < events[2].MessageID)
}

func TestAppend_Validation(t *testing.T) {
	store, broadcaster, registry, s := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)

	_, err = store.Append(room.ID, "alice", "   ", models.MessageText, nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalid))

	_, err = store.Append(room.ID, "mallory", "hi", models.MessageText, nil)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	_, err = store.Append("missing-room", "alice", "hi", models.MessageText, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	assert.Empty(t, broadcaster.all(), "rejected writes must not broadcast")
	history, err := s.GetRoomHistory(room.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, history, "rejected writes must not persist")
}

// TestAppend_LockedRoom verifies that a locked or deactivated room rejects new
// messages with no row written and no frame broadcast.
func TestAppend_LockedRoom(t *testing.T) {
	store, broadcaster, registry, s := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)

	require.NoError(t, s.SetRoomLocked(room.ID, true))
	_, err = store.Append(room.ID, "alice", "hi", models.MessageText, nil)
	assert.True(t, apperr.Is(err, apperr.CodeRoomLocked))

	require.NoError(t, s.SetRoomLocked(room.ID, false))
	require.NoError(t, s.DeactivateRoom(room.ID))
	_, err = store.Append(room.ID, "alice", "hi", models.MessageText, nil)
	assert.True(t, apperr.Is(err, apperr.CodeRoomLocked))

	assert.Empty(t, broadcaster.all())
}

func TestAppend_ThreadedReply(t *testing.T) {
	store, _, registry, _ := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	other, err := registry.GetOrCreateDirectRoom("alice", "carol")
	require.NoError(t, err)

	parent, err := store.Append(room.ID, "alice", "first", models.MessageText, nil)
	require.NoError(t, err)

	reply, err := store.Append(room.ID, "bob", "a reply", models.MessageText, &parent.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)

	// A reply may not point across rooms.
	_, err = store.Append(other.ID, "alice", "cross reply", models.MessageText, &parent.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInvalid))
}

func TestEdit(t *testing.T) {
	store, _, registry, _ := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	msg, err := store.Append(room.ID, "alice", "helo", models.MessageText, nil)
	require.NoError(t, err)

	_, err = store.Edit(msg.ID, "bob", "hijacked")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	edited, err := store.Edit(msg.ID, "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)
}

func TestSoftDelete(t *testing.T) {
	store, _, registry, s := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	msg, err := store.Append(room.ID, "alice", "regret", models.MessageText, nil)
	require.NoError(t, err)

	err = store.SoftDelete(msg.ID, "bob")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	// A moderator may delete another user's message.
	require.NoError(t, store.SoftDelete(msg.ID, "admin"))

	after, err := s.GetMessageByID(msg.ID)
	require.NoError(t, err)
	assert.True(t, after.IsDeleted)
	assert.Equal(t, models.TombstoneContent, after.Content)

	// The row survives for ordering continuity.
	history, err := store.History(room.ID, "alice", 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// Tombstoned messages reject edits.
	_, err = store.Edit(msg.ID, "alice", "undelete?")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestMarkRead(t *testing.T) {
	store, _, registry, s := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	msg, err := store.Append(room.ID, "alice", "hello", models.MessageText, nil)
	require.NoError(t, err)

	err = store.MarkRead(msg.ID, "mallory")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	require.NoError(t, store.MarkRead(msg.ID, "bob"))
	require.NoError(t, store.MarkRead(msg.ID, "bob"), "re-marking as read is a no-op")

	var count int64
	require.NoError(t, s.DB.Model(&models.ReadReceipt{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	rec, err := s.GetPresence("bob", room.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotNil(t, rec.LastReadAt, "marking read advances the last-read stamp")
}

func TestHistory(t *testing.T) {
	store, _, registry, _ := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err := store.Append(room.ID, "alice", fmt.Sprintf("message %d", i), models.MessageText, nil)
		require.NoError(t, err)
	}

	_, err = store.History(room.ID, "mallory", 0, 10)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	page, err := store.History(room.ID, "bob", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "message 4", page[0].Content)
	assert.Equal(t, "message 3", page[1].Content)
}

// TestReactions verifies that only the first add of a (user, emoji) pair
// broadcasts and that removal broadcasts its own event.
func TestReactions(t *testing.T) {
	store, broadcaster, registry, _ := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)
	msg, err := store.Append(room.ID, "alice", "hello", models.MessageText, nil)
	require.NoError(t, err)
	before := len(broadcaster.all())

	require.NoError(t, store.AddReaction(msg.ID, "bob", "👍"))
	require.NoError(t, store.AddReaction(msg.ID, "bob", "👍"), "duplicate reaction is a no-op")

	events := broadcaster.all()[before:]
	require.Len(t, events, 1)
	assert.Equal(t, models.EventReactionAdded, events[0].Type)
	assert.Equal(t, msg.ID, events[0].MessageID)
	assert.Equal(t, "bob", events[0].UserID)
	assert.Equal(t, "👍", events[0].Emoji)

	require.NoError(t, store.RemoveReaction(msg.ID, "bob", "👍"))
	events = broadcaster.all()[before:]
	require.Len(t, events, 2)
	assert.Equal(t, models.EventReactionRemoved, events[1].Type)

	err = store.AddReaction(msg.ID, "mallory", "👍")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
}

func TestAppendSystem(t *testing.T) {
	store, broadcaster, registry, _ := newTestStore(t)
	room, err := registry.GetOrCreateDirectRoom("alice", "bob")
	require.NoError(t, err)

	msg, err := store.AppendSystem(room.ID, "bob joined the room")
	require.NoError(t, err)
	assert.Equal(t, models.MessageSystem, msg.Kind)
	assert.Equal(t, "system", msg.SenderID)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventChatMessage, events[0].Type)
	assert.Equal(t, "system", events[0].SenderUsername)
}
