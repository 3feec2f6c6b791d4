package chathub_test

import (
	"fmt"
	"sync"
	"testing"

	"classhub/backend/internal/chathub"
	"classhub/backend/internal/models"
	"classhub/backend/internal/presence"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MockClient struct {
	connID string
	userID string
	roomID string
	Recv   chan models.Event

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID, roomID string) *MockClient {
	return &MockClient{
		connID: uuid.New().String(),
		userID: userID,
		roomID: roomID,
		Recv:   make(chan models.Event, 16),
	}
}

func (c *MockClient) GetConnID() string { return c.connID }

func (c *MockClient) GetUserID() string { return c.userID }

func (c *MockClient) GetRoomID() string { return c.roomID }

func (c *MockClient) TrySend(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Recv <- ev:
		return true
	default:
		return false
	}
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drain returns every event buffered on the client so far.
func (c *MockClient) drain() []models.Event {
	var events []models.Event
	for {
		select {
		case ev := <-c.Recv:
			events = append(events, ev)
		default:
			return events
		}
	}
}

type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) Append(roomID, senderID, content, kind string, parentID *uint) (*models.Message, error) {
	args := m.Called(roomID, senderID, content, kind, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageStore) MarkRead(messageID uint, readerID string) error {
	args := m.Called(messageID, readerID)
	return args.Error(0)
}

// recordingFallback captures offline notification enqueues.
type recordingFallback struct {
	mu       sync.Mutex
	enqueued []string // recipient ids, in call order
}

func (f *recordingFallback) Enqueue(recipientID, roomID string, messageID *uint, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, recipientID)
	return nil
}

func (f *recordingFallback) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.enqueued...)
}

// openEnrollment is a permissive enrollment stub; direct and group rooms do
// not consult it.
type openEnrollment struct{}

func (openEnrollment) MembersOfCourse(courseID string) ([]string, error)  { return nil, nil }
func (openEnrollment) IsInstructor(userID, courseID string) (bool, error) { return false, nil }
func (openEnrollment) IsModerator(userID string) (bool, error)            { return false, nil }
func (openEnrollment) CourseOfLesson(lessonID string) (string, error) {
	return "", fmt.Errorf("unknown lesson")
}

type testHub struct {
	manager    *chathub.Manager
	dispatcher *chathub.Dispatcher
	registry   *roster.Registry
	tracker    *presence.Tracker
	storage    *storage.Service
	fallback   *recordingFallback
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))

	mr := miniredis.RunT(t)
	s := storage.NewStorageService(db, redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	registry := roster.NewRegistry(s, openEnrollment{})
	tracker := presence.NewTracker(s)
	manager := chathub.NewManager(registry, tracker, s)
	fallback := &recordingFallback{}
	dispatcher := chathub.NewDispatcher(manager, registry, fallback, s)

	return &testHub{
		manager:    manager,
		dispatcher: dispatcher,
		registry:   registry,
		tracker:    tracker,
		storage:    s,
		fallback:   fallback,
	}
}
