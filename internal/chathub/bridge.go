package chathub

import (
	"encoding/json"
	"log"
	"strings"

	"classhub/backend/internal/models"
)

// eventEnvelope is the payload published on the Redis room channels so that
// peer nodes can deliver the event to their own live subscribers. The actor id
// rides alongside the frame because it is internal routing state, not part of
// the wire format.
type eventEnvelope struct {
	NodeID string       `json:"node_id"`
	RoomID string       `json:"room_id"`
	Actor  string       `json:"actor,omitempty"`
	Event  models.Event `json:"event"`
}

// publish sends the event to peer nodes. Best-effort: a Redis outage degrades
// the deployment to single-node delivery, it never fails the caller.
func (d *Dispatcher) publish(roomID string, ev models.Event) {
	payload, err := json.Marshal(eventEnvelope{
		NodeID: d.nodeID,
		RoomID: roomID,
		Actor:  ev.ActorID,
		Event:  ev,
	})
	if err != nil {
		log.Printf("ERROR: Cannot marshal envelope for room %s: %v", roomID, err)
		return
	}
	if err := d.Storage.PublishEvent(roomID, payload); err != nil {
		log.Printf("WARNING: Cross-node publish failed for room %s: %v", roomID, err)
	}
}

// StartBridge launches the goroutine that listens on the Redis room channels
// and delivers events originating on other nodes to this node's subscribers.
// Remote events are delivered only; the origin node alone runs the offline
// fallback, so a queued notification is never duplicated across nodes.
func (d *Dispatcher) StartBridge() {
	go func() {
		pubsub := d.Storage.SubscribeRooms()
		defer pubsub.Close()

		for msg := range pubsub.Channel() {
			var env eventEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("ERROR: Cannot unmarshal bridge envelope: %v", err)
				continue
			}
			if env.NodeID == d.nodeID {
				continue
			}
			roomID := env.RoomID
			if roomID == "" {
				roomID = strings.TrimPrefix(msg.Channel, "room:")
			}
			ev := env.Event
			ev.RoomID = roomID
			ev.ActorID = env.Actor
			d.deliverLocal(roomID, ev)
		}
	}()
}
