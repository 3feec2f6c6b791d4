package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// RoomKind classifies how a room's membership is resolved.
type RoomKind string

const (
	// RoomDirect is a 1:1 conversation; exactly two members, stored on the row.
	RoomDirect RoomKind = "direct"
	// RoomGroup is an explicitly managed member list.
	RoomGroup RoomKind = "group"
	// RoomCourse derives its membership from course enrollment.
	RoomCourse RoomKind = "course"
	// RoomLessonThread is a per-lesson comment thread; membership follows the course.
	RoomLessonThread RoomKind = "lesson_thread"
	// RoomNotificationFeed is a per-user feed; exactly one member, created lazily.
	RoomNotificationFeed RoomKind = "notification_feed"
)

// Room represents a logical communication channel: a direct chat, a group chat,
// a course-wide chat, a lesson comment thread, or a per-user notification feed.
type Room struct {
	// ID is the unique identifier for the room (UUID).
	ID string `gorm:"primaryKey" json:"id"`
	// Kind determines the membership-resolution policy.
	Kind RoomKind `gorm:"type:text;not null;index" json:"kind"`
	// Name is the display name of the room.
	Name string `gorm:"type:text" json:"name"`
	// RoomKey is the stable, deterministic address clients reconnect with.
	// Direct rooms use the sorted member pair, derived kinds use course_/lesson_/user_ prefixes.
	RoomKey string `gorm:"uniqueIndex;not null" json:"room_key"`
	// CourseID links course and lesson-thread rooms to their enrollment source.
	CourseID string `gorm:"index" json:"course_id,omitempty"`
	// CreatedByID is the identity that created the room; holds manage rights.
	CreatedByID string `gorm:"type:text" json:"created_by_id"`
	// MemberIDs is the stored member set for direct/group rooms and the last
	// synced enrollment snapshot for course/lesson rooms.
	MemberIDs pq.StringArray `gorm:"type:text[]" json:"member_ids"`
	// IsActive is false once the room has been deactivated. Rooms are never hard-deleted.
	IsActive bool `json:"is_active"`
	// IsLocked rejects new writes while set (locked forum thread equivalent).
	IsLocked  bool      `json:"is_locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the room if none was assigned.
func (r *Room) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// HasMember reports whether id is in the stored member set.
func (r *Room) HasMember(id string) bool {
	for _, m := range r.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// DirectRoomKey builds the order-independent key for a 1:1 room, so that
// (a, b) and (b, a) resolve to the same row. The first id is length-prefixed,
// which keeps distinct pairs distinct even when ids contain the separator.
func DirectRoomKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("direct_%d_%s_%s", len(pair[0]), pair[0], pair[1])
}

// CourseRoomKey derives the stable key for a course-wide chat room.
func CourseRoomKey(courseID string) string { return "course_" + courseID }

// LessonRoomKey derives the stable key for a lesson comment thread.
func LessonRoomKey(lessonID string) string { return "lesson_" + lessonID }

// FeedRoomKey derives the stable key for a user's notification feed.
func FeedRoomKey(userID string) string { return "user_" + userID }
