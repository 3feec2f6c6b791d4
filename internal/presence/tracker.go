// Package presence maintains per-(user, room) liveness and typing state.
// Operations never fail hard: a record that has never been seen simply reads
// as offline.
package presence

import (
	"log"
	"time"

	"classhub/backend/internal/config"
	"classhub/backend/internal/models"
	"classhub/backend/internal/storage"
)

// Tracker updates and expires presence records. Current time is injected so
// tests can drive the typing-expiry sweep with simulated elapsed time.
type Tracker struct {
	Storage storage.Storage
	Timeout time.Duration

	now func() time.Time
}

func NewTracker(s storage.Storage) *Tracker {
	return &Tracker{Storage: s, Timeout: config.TypingTimeout, now: time.Now}
}

// SetNow overrides the tracker's clock. Test hook.
func (t *Tracker) SetNow(now func() time.Time) { t.now = now }

// SetOnline records that the identity has a live connection in the room.
func (t *Tracker) SetOnline(userID, roomID string) {
	if err := t.Storage.SetPresenceStatus(userID, roomID, models.StatusOnline, t.now()); err != nil {
		log.Printf("WARNING: presence online update failed for %s in %s: %v", userID, roomID, err)
	}
}

// SetOffline records a disconnect; it also clears any typing flag.
func (t *Tracker) SetOffline(userID, roomID string) {
	if err := t.Storage.SetPresenceStatus(userID, roomID, models.StatusOffline, t.now()); err != nil {
		log.Printf("WARNING: presence offline update failed for %s in %s: %v", userID, roomID, err)
	}
}

// SetTyping sets or clears the typing flag. A fresh true refreshes the
// started-at stamp, resetting the expiry window.
func (t *Tracker) SetTyping(userID, roomID string, isTyping bool) {
	if err := t.Storage.SetPresenceTyping(userID, roomID, isTyping, t.now()); err != nil {
		log.Printf("WARNING: typing update failed for %s in %s: %v", userID, roomID, err)
	}
}

// TouchLastRead advances the reader's last-read stamp for the room.
func (t *Tracker) TouchLastRead(userID, roomID string) {
	if err := t.Storage.TouchPresenceRead(userID, roomID, t.now()); err != nil {
		log.Printf("WARNING: last-read update failed for %s in %s: %v", userID, roomID, err)
	}
}

// Snapshot returns the current presence of every known member of the room.
func (t *Tracker) Snapshot(roomID string) []models.PresenceRecord {
	records, err := t.Storage.ListRoomPresence(roomID)
	if err != nil {
		log.Printf("WARNING: presence snapshot failed for room %s: %v", roomID, err)
		return nil
	}
	return records
}

// IsOnline reports whether the identity currently reads as online in the room.
// A lookup miss means "never seen" and defaults to offline.
func (t *Tracker) IsOnline(userID, roomID string) bool {
	record, err := t.Storage.GetPresence(userID, roomID)
	if err != nil {
		log.Printf("WARNING: presence lookup failed for %s in %s: %v", userID, roomID, err)
		return false
	}
	return record != nil && record.Status == models.StatusOnline
}

// ReapStaleTypingIndicators clears every typing flag older than the timeout
// and returns the cleared records so the caller can broadcast typing-off
// events. This sweep is the authoritative expiry mechanism: it covers typers
// whose connection died without ever sending a typing-off frame.
func (t *Tracker) ReapStaleTypingIndicators() []models.PresenceRecord {
	cutoff := t.now().Add(-t.Timeout)
	cleared, err := t.Storage.ClearStaleTyping(cutoff)
	if err != nil {
		log.Printf("WARNING: typing sweep failed: %v", err)
		return nil
	}
	return cleared
}
