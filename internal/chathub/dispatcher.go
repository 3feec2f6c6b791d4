package chathub

import (
	"log"
	"time"

	"classhub/backend/internal/models"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"

	"github.com/google/uuid"
)

// Fallback is the notification path for room members who have no live
// connection at delivery time.
type Fallback interface {
	Enqueue(recipientID, roomID string, messageID *uint, summary string) error
}

// Dispatcher delivers durable events to every live, authorized subscriber of
// the affected room and routes offline members into the fallback path. It is
// always invoked synchronously after the durability point, so nothing is
// broadcast that was not stored first.
type Dispatcher struct {
	Manager  *Manager
	Registry *roster.Registry
	Fallback Fallback
	Storage  storage.Storage

	// nodeID tags published envelopes so the bridge can skip events this node
	// already delivered locally.
	nodeID string
}

func NewDispatcher(m *Manager, registry *roster.Registry, fallback Fallback, s storage.Storage) *Dispatcher {
	d := &Dispatcher{
		Manager:  m,
		Registry: registry,
		Fallback: fallback,
		Storage:  s,
		nodeID:   uuid.New().String(),
	}
	m.Dispatcher = d
	return d
}

// Broadcast pushes the event to every live subscriber of the room, applying
// the per-type exclusion rule, then publishes it for peer nodes and, for new
// messages, enqueues fallback notifications for offline members.
func (d *Dispatcher) Broadcast(roomID string, ev models.Event) {
	d.deliverLocal(roomID, ev)
	d.publish(roomID, ev)
	if ev.Type == models.EventChatMessage {
		d.enqueueOffline(roomID, ev)
	}
}

// deliverLocal fans the event out to this node's subscribers. Delivery to one
// connection is best-effort: a subscriber that cannot accept the event is
// unregistered, and delivery continues to the rest.
func (d *Dispatcher) deliverLocal(roomID string, ev models.Event) {
	for _, client := range d.Manager.SubscribersOf(roomID) {
		if excluded(ev, client) {
			continue
		}
		if !client.TrySend(ev) {
			log.Printf("Dropping slow connection %s (user %s)", client.GetConnID(), client.GetUserID())
			d.Manager.Unregister(client)
		}
	}
}

// excluded applies the per-event visibility rule: typing indicators and
// presence changes are not echoed to the actor; new messages and reactions go
// to everyone, sender included.
func excluded(ev models.Event, client Client) bool {
	switch ev.Type {
	case models.EventTypingIndicator, models.EventStatusUpdate:
		return client.GetUserID() == ev.ActorID
	default:
		return false
	}
}

// enqueueOffline persists a queued notification for every authorized member
// of the room with zero live connections. Membership comes from the registry,
// not from the possibly empty subscriber set, so offline members are never
// silently skipped. The sender is excluded.
func (d *Dispatcher) enqueueOffline(roomID string, ev models.Event) {
	if d.Fallback == nil {
		return
	}
	members, err := d.Registry.ResolveMembership(roomID)
	if err != nil {
		log.Printf("ERROR: Cannot resolve members of room %s for fallback: %v", roomID, err)
		return
	}
	connected := d.Manager.ConnectedUsers(roomID)

	var messageID *uint
	if ev.MessageID > 0 {
		id := ev.MessageID
		messageID = &id
	}
	summary := ev.SenderUsername + ": " + ev.Content

	for _, member := range members {
		if member == ev.SenderID || connected[member] {
			continue
		}
		if err := d.Fallback.Enqueue(member, roomID, messageID, summary); err != nil {
			log.Printf("ERROR: Fallback enqueue failed for %s in room %s: %v", member, roomID, err)
		}
	}
}

// AnnounceTypingExpired broadcasts typing-off events for presence records the
// periodic sweep just cleared, so subscribers do not keep showing a typing
// indicator for a user whose connection died uncleanly.
func (d *Dispatcher) AnnounceTypingExpired(records []models.PresenceRecord) {
	for _, rec := range records {
		user := d.Manager.lookupUser(rec.UserID)
		d.Broadcast(rec.RoomID, typingEvent(rec.RoomID, user, false, time.Now()))
	}
}
