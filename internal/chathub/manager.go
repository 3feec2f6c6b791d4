package chathub

import (
	"log"
	"sync"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/models"
	"classhub/backend/internal/presence"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"
)

// roomSubscribers is the live subscriber set of one room. Each room carries
// its own lock so connect/disconnect churn in one room never contends with
// fan-out in another.
type roomSubscribers struct {
	mu      sync.Mutex
	clients map[string]Client // keyed by connection id
}

// Manager tracks live connections and their room subscriptions. It is the
// single source of truth for "who is reachable right now" and the only
// component that mutates the live-subscriber map.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*roomSubscribers
	conns  map[string]Client
	joined map[string]map[string]bool // connection id -> joined room ids

	Registry   *roster.Registry
	Presence   *presence.Tracker
	Storage    storage.Storage
	Dispatcher *Dispatcher // set during wiring, after the dispatcher exists

	store MessageStore
}

func NewManager(registry *roster.Registry, tracker *presence.Tracker, s storage.Storage) *Manager {
	return &Manager{
		rooms:    make(map[string]*roomSubscribers),
		conns:    make(map[string]Client),
		joined:   make(map[string]map[string]bool),
		Registry: registry,
		Presence: tracker,
		Storage:  s,
	}
}

// Register tracks a freshly handshaken connection. Anonymous connections are
// rejected; the websocket handler closes them without sending a frame.
func (m *Manager) Register(client Client) error {
	if client.GetUserID() == "" {
		return apperr.Unauthenticated("connection has no authenticated identity")
	}
	m.mu.Lock()
	m.conns[client.GetConnID()] = client
	m.joined[client.GetConnID()] = make(map[string]bool)
	m.mu.Unlock()
	return nil
}

// JoinRoom subscribes the connection to a room after a read-authorization
// check. Idempotent. The first connection a user brings into a room flips
// their presence to online and announces it to the other subscribers.
func (m *Manager) JoinRoom(client Client, roomID string) error {
	if err := m.Registry.Authorize(client.GetUserID(), roomID, roster.ActionRead); err != nil {
		return err
	}

	// Record the room under m.mu before touching the subscriber set, so a
	// concurrent Unregister always sees the room and sweeps the set.
	m.mu.Lock()
	rooms, registered := m.joined[client.GetConnID()]
	if registered {
		rooms[roomID] = true
	}
	m.mu.Unlock()
	if !registered {
		return apperr.Conflict("connection is not registered")
	}

	set := m.roomSet(roomID)
	set.mu.Lock()
	_, already := set.clients[client.GetConnID()]
	set.clients[client.GetConnID()] = client
	firstForUser := !already && !m.userInSetLocked(set, client.GetUserID(), client.GetConnID())
	set.mu.Unlock()

	// An Unregister may have run its sweep between the bookkeeping above and
	// the insert. Undo the insert rather than leave a dead connection that
	// every future broadcast would trip over.
	m.mu.RLock()
	_, stillRegistered := m.conns[client.GetConnID()]
	m.mu.RUnlock()
	if !stillRegistered {
		set.mu.Lock()
		delete(set.clients, client.GetConnID())
		set.mu.Unlock()
		return apperr.Conflict("connection is not registered")
	}

	if already {
		return nil
	}

	// Presence and the status broadcast touch storage; never do that while
	// holding the room lock.
	if firstForUser {
		m.Presence.SetOnline(client.GetUserID(), roomID)
		m.announceStatus(roomID, client.GetUserID(), true)
	}
	return nil
}

// LeaveRoom unsubscribes the connection from the room; a no-op if not joined.
func (m *Manager) LeaveRoom(client Client, roomID string) {
	set := m.roomSet(roomID)
	set.mu.Lock()
	_, wasJoined := set.clients[client.GetConnID()]
	delete(set.clients, client.GetConnID())
	lastForUser := wasJoined && !m.userInSetLocked(set, client.GetUserID(), client.GetConnID())
	set.mu.Unlock()

	if !wasJoined {
		return
	}

	m.mu.Lock()
	if rooms, ok := m.joined[client.GetConnID()]; ok {
		delete(rooms, roomID)
	}
	m.mu.Unlock()

	if lastForUser {
		m.Presence.SetOffline(client.GetUserID(), roomID)
		m.announceStatus(roomID, client.GetUserID(), false)
	}
}

// Unregister removes the connection from every room it had joined, emitting a
// presence-offline event per room, and forgets the connection. Idempotent.
func (m *Manager) Unregister(client Client) {
	m.mu.Lock()
	rooms := m.joined[client.GetConnID()]
	delete(m.joined, client.GetConnID())
	delete(m.conns, client.GetConnID())
	m.mu.Unlock()

	for roomID := range rooms {
		m.LeaveRoom(client, roomID)
	}
	client.Close()
}

// SubscribersOf returns a point-in-time copy of the room's live subscribers.
// Used exclusively by the dispatcher; never cached.
func (m *Manager) SubscribersOf(roomID string) []Client {
	m.mu.RLock()
	set, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	set.mu.Lock()
	subscribers := make([]Client, 0, len(set.clients))
	for _, c := range set.clients {
		subscribers = append(subscribers, c)
	}
	set.mu.Unlock()
	return subscribers
}

// ConnectedUsers returns the distinct user ids with at least one live
// connection in the room.
func (m *Manager) ConnectedUsers(roomID string) map[string]bool {
	users := make(map[string]bool)
	for _, c := range m.SubscribersOf(roomID) {
		users[c.GetUserID()] = true
	}
	return users
}

func (m *Manager) roomSet(roomID string) *roomSubscribers {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rooms[roomID]
	if !ok {
		set = &roomSubscribers{clients: make(map[string]Client)}
		m.rooms[roomID] = set
	}
	return set
}

// userInSetLocked reports whether another connection of the same user is in
// the set. Caller holds set.mu.
func (m *Manager) userInSetLocked(set *roomSubscribers, userID, exceptConnID string) bool {
	for connID, c := range set.clients {
		if connID != exceptConnID && c.GetUserID() == userID {
			return true
		}
	}
	return false
}

func (m *Manager) announceStatus(roomID, userID string, online bool) {
	if m.Dispatcher == nil {
		return
	}
	user := m.lookupUser(userID)
	m.Dispatcher.Broadcast(roomID, statusEvent(roomID, user, online))
}

// lookupUser loads the directory row behind an identity, degrading to the raw
// id when the row is missing so a frame can always be built.
func (m *Manager) lookupUser(userID string) *models.User {
	user, err := m.Storage.GetUserByID(userID)
	if err != nil {
		log.Printf("WARNING: user lookup failed for %s: %v", userID, err)
	}
	if user == nil {
		return &models.User{ID: userID, Username: userID}
	}
	return user
}
