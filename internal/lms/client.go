// Package lms is the thin client for the course-enrollment collaborator: the
// LMS owns courses, lessons and roles, and this engine only asks it narrow
// membership questions.
package lms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"classhub/backend/internal/roster"
)

// Client implements roster.Enrollment against the LMS HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

var _ roster.Enrollment = (*Client)(nil)

func (c *Client) MembersOfCourse(courseID string) ([]string, error) {
	var out struct {
		Members []string `json:"members"`
	}
	if err := c.get("/api/internal/courses/"+courseID+"/members", &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *Client) IsInstructor(userID, courseID string) (bool, error) {
	var out struct {
		Instructor bool `json:"instructor"`
	}
	err := c.get("/api/internal/courses/"+courseID+"/instructors/"+userID, &out)
	if err != nil {
		return false, err
	}
	return out.Instructor, nil
}

func (c *Client) IsModerator(userID string) (bool, error) {
	var out struct {
		Moderator bool `json:"moderator"`
	}
	err := c.get("/api/internal/users/"+userID+"/moderator", &out)
	if err != nil {
		return false, err
	}
	return out.Moderator, nil
}

func (c *Client) CourseOfLesson(lessonID string) (string, error) {
	var out struct {
		CourseID string `json:"course_id"`
	}
	if err := c.get("/api/internal/lessons/"+lessonID, &out); err != nil {
		return "", err
	}
	return out.CourseID, nil
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.HTTP.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lms: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
