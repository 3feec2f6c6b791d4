// Package roster is the room registry: it resolves who belongs to a room and
// whether an identity may read, write or manage it. Direct and group rooms own
// their member list; course and lesson rooms delegate to the enrollment
// collaborator and cache the answer.
package roster

import (
	"log"
	"strings"

	"classhub/backend/internal/apperr"
	"classhub/backend/internal/config"
	"classhub/backend/internal/models"
	"classhub/backend/internal/storage"

	"github.com/google/uuid"
)

// Action is the authorization level being requested for a room.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionManage
)

// Enrollment is the external course-enrollment collaborator. The engine never
// manages course membership itself.
type Enrollment interface {
	MembersOfCourse(courseID string) ([]string, error)
	IsInstructor(userID, courseID string) (bool, error)
	IsModerator(userID string) (bool, error)
	CourseOfLesson(lessonID string) (string, error)
}

// Registry resolves membership and authorization for rooms.
type Registry struct {
	Storage    storage.Storage
	Enrollment Enrollment
}

func NewRegistry(s storage.Storage, e Enrollment) *Registry {
	return &Registry{Storage: s, Enrollment: e}
}

// ResolveMembership returns the authorized member set of the room. For course
// and lesson rooms the enrollment source is consulted through a short-TTL
// cache so fan-out does not pay a round trip per event.
func (r *Registry) ResolveMembership(roomID string) ([]string, error) {
	room, err := r.Storage.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	return r.membersOf(room)
}

func (r *Registry) membersOf(room *models.Room) ([]string, error) {
	switch room.Kind {
	case models.RoomCourse, models.RoomLessonThread:
		return r.courseMembers(room)
	default:
		return append([]string(nil), room.MemberIDs...), nil
	}
}

func (r *Registry) courseMembers(room *models.Room) ([]string, error) {
	if cached, ok, err := r.Storage.GetCachedMembership(room.ID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("WARNING: membership cache read failed for room %s: %v", room.ID, err)
	}

	members, err := r.Enrollment.MembersOfCourse(room.CourseID)
	if err != nil {
		// Fall back to the last synced snapshot rather than failing fan-out.
		if len(room.MemberIDs) > 0 {
			log.Printf("WARNING: enrollment lookup failed for course %s, using snapshot: %v", room.CourseID, err)
			return append([]string(nil), room.MemberIDs...), nil
		}
		return nil, apperr.Transient(err, "enrollment lookup failed")
	}

	if err := r.Storage.CacheMembership(room.ID, members, config.MembershipCacheTTL); err != nil {
		log.Printf("WARNING: membership cache write failed for room %s: %v", room.ID, err)
	}
	if err := r.Storage.UpdateRoomMembers(room.ID, members); err != nil {
		log.Printf("WARNING: membership snapshot update failed for room %s: %v", room.ID, err)
	}
	return members, nil
}

// Authorize checks whether userID may perform action on the room. Write
// requires membership; manage requires the room creator, a course instructor,
// or an external moderator role.
func (r *Registry) Authorize(userID, roomID string, action Action) error {
	room, err := r.Storage.GetRoomByID(roomID)
	if err != nil {
		return err
	}
	members, err := r.membersOf(room)
	if err != nil {
		return err
	}
	isMember := contains(members, userID)

	switch action {
	case ActionRead, ActionWrite:
		if isMember {
			return nil
		}
		return apperr.PermissionDenied("not a member of this room")
	case ActionManage:
		if room.CreatedByID == userID {
			return nil
		}
		if room.CourseID != "" {
			if ok, err := r.Enrollment.IsInstructor(userID, room.CourseID); err == nil && ok {
				return nil
			}
		}
		if ok, err := r.Enrollment.IsModerator(userID); err == nil && ok {
			return nil
		}
		return apperr.PermissionDenied("manage requires the room creator or a moderator")
	default:
		return apperr.Invalid("unknown action")
	}
}

// GetOrCreateDirectRoom returns the 1:1 room between two identities, creating
// it on first use. The key is order-independent, so (a, b) and (b, a) always
// resolve to the same room, including under a concurrent first-call race.
func (r *Registry) GetOrCreateDirectRoom(a, b string) (*models.Room, error) {
	if a == "" || b == "" || a == b {
		return nil, apperr.Invalid("a direct room needs two distinct members")
	}
	room := &models.Room{
		Kind:        models.RoomDirect,
		Name:        "Direct chat",
		RoomKey:     models.DirectRoomKey(a, b),
		CreatedByID: a,
		MemberIDs:   toArray(a, b),
		IsActive:    true,
	}
	return r.Storage.GetOrCreateRoomByKey(room)
}

// CreateGroupRoom creates an explicitly managed group room. The creator is
// always part of the member set and holds manage rights.
func (r *Registry) CreateGroupRoom(creatorID, name string, members []string) (*models.Room, error) {
	if creatorID == "" {
		return nil, apperr.Invalid("creator is required")
	}
	if name == "" {
		name = "Group chat"
	}
	all := toArray(creatorID)
	for _, m := range members {
		if m != creatorID && !contains(all, m) {
			all = append(all, m)
		}
	}
	room := &models.Room{
		Kind:        models.RoomGroup,
		Name:        name,
		RoomKey:     "group_" + newRoomKeySuffix(),
		CreatedByID: creatorID,
		MemberIDs:   all,
		IsActive:    true,
	}
	if err := r.Storage.CreateRoom(room); err != nil {
		return nil, err
	}
	return room, nil
}

// GetOrCreateCourseRoom returns the course-wide chat room, populating the
// membership snapshot from the enrollment collaborator on creation.
func (r *Registry) GetOrCreateCourseRoom(courseID string) (*models.Room, error) {
	if courseID == "" {
		return nil, apperr.Invalid("course id is required")
	}
	members, err := r.Enrollment.MembersOfCourse(courseID)
	if err != nil {
		return nil, apperr.Transient(err, "enrollment lookup failed")
	}
	room := &models.Room{
		Kind:      models.RoomCourse,
		Name:      "Course chat: " + courseID,
		RoomKey:   models.CourseRoomKey(courseID),
		CourseID:  courseID,
		MemberIDs: toArray(members...),
		IsActive:  true,
	}
	return r.Storage.GetOrCreateRoomByKey(room)
}

// GetOrCreateLessonRoom returns the comment thread for a lesson. Membership
// follows the lesson's course.
func (r *Registry) GetOrCreateLessonRoom(lessonID string) (*models.Room, error) {
	if lessonID == "" {
		return nil, apperr.Invalid("lesson id is required")
	}
	courseID, err := r.Enrollment.CourseOfLesson(lessonID)
	if err != nil {
		return nil, apperr.Transient(err, "lesson lookup failed")
	}
	members, err := r.Enrollment.MembersOfCourse(courseID)
	if err != nil {
		return nil, apperr.Transient(err, "enrollment lookup failed")
	}
	room := &models.Room{
		Kind:      models.RoomLessonThread,
		Name:      "Lesson thread: " + lessonID,
		RoomKey:   models.LessonRoomKey(lessonID),
		CourseID:  courseID,
		MemberIDs: toArray(members...),
		IsActive:  true,
	}
	return r.Storage.GetOrCreateRoomByKey(room)
}

// GetOrCreateFeedRoom returns the per-user notification feed room, created
// lazily on first notification. Its single member is its owner.
func (r *Registry) GetOrCreateFeedRoom(userID string) (*models.Room, error) {
	if userID == "" {
		return nil, apperr.Invalid("user id is required")
	}
	room := &models.Room{
		Kind:        models.RoomNotificationFeed,
		Name:        "Notifications",
		RoomKey:     models.FeedRoomKey(userID),
		CreatedByID: userID,
		MemberIDs:   toArray(userID),
		IsActive:    true,
	}
	return r.Storage.GetOrCreateRoomByKey(room)
}

// ResolveKey maps a stable room key from a join URL to its room, creating
// derived rooms (course, lesson, feed) on first use. Plain keys are treated
// as room ids first, then as direct-room keys.
func (r *Registry) ResolveKey(key string) (*models.Room, error) {
	switch {
	case strings.HasPrefix(key, "course_"):
		return r.GetOrCreateCourseRoom(strings.TrimPrefix(key, "course_"))
	case strings.HasPrefix(key, "lesson_"):
		return r.GetOrCreateLessonRoom(strings.TrimPrefix(key, "lesson_"))
	case strings.HasPrefix(key, "user_"):
		return r.GetOrCreateFeedRoom(strings.TrimPrefix(key, "user_"))
	}
	room, err := r.Storage.GetRoomByID(key)
	if err == nil {
		return room, nil
	}
	if apperr.Is(err, apperr.CodeNotFound) {
		return r.Storage.GetRoomByKey(key)
	}
	return nil, err
}

// AddParticipant grows a group room's member list. Only group rooms manage
// membership directly; course membership belongs to the enrollment source.
func (r *Registry) AddParticipant(roomID, actorID, userID string) error {
	room, err := r.Storage.GetRoomByID(roomID)
	if err != nil {
		return err
	}
	if room.Kind != models.RoomGroup {
		return apperr.Invalid("participants can only be managed on group rooms")
	}
	if err := r.Authorize(actorID, roomID, ActionManage); err != nil {
		return err
	}
	if room.HasMember(userID) {
		return nil
	}
	return r.Storage.UpdateRoomMembers(roomID, append(room.MemberIDs, userID))
}

// RemoveParticipant shrinks a group room's member list; a no-op for non-members.
func (r *Registry) RemoveParticipant(roomID, actorID, userID string) error {
	room, err := r.Storage.GetRoomByID(roomID)
	if err != nil {
		return err
	}
	if room.Kind != models.RoomGroup {
		return apperr.Invalid("participants can only be managed on group rooms")
	}
	if err := r.Authorize(actorID, roomID, ActionManage); err != nil {
		return err
	}
	remaining := make([]string, 0, len(room.MemberIDs))
	for _, m := range room.MemberIDs {
		if m != userID {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == len(room.MemberIDs) {
		return nil
	}
	return r.Storage.UpdateRoomMembers(roomID, remaining)
}

// SetLocked locks or unlocks a room for new writes.
func (r *Registry) SetLocked(roomID, actorID string, locked bool) error {
	if err := r.Authorize(actorID, roomID, ActionManage); err != nil {
		return err
	}
	return r.Storage.SetRoomLocked(roomID, locked)
}

// Deactivate retires the room. Rooms are never hard-deleted.
func (r *Registry) Deactivate(roomID, actorID string) error {
	if err := r.Authorize(actorID, roomID, ActionManage); err != nil {
		return err
	}
	return r.Storage.DeactivateRoom(roomID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func toArray(ids ...string) []string {
	return append([]string(nil), ids...)
}

func newRoomKeySuffix() string { return uuid.New().String() }
