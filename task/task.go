// Package task defines the task and comment model, the update merge rules,
// list query composition and SQLite persistence.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/GoCodeAlone/tms/access"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrUnknownUser is returned when a task references a user id that does
	// not exist.
	ErrUnknownUser = errors.New("referenced user does not exist")
	// ErrInvalidComment is returned for empty or oversized comment text.
	ErrInvalidComment = errors.New("invalid comment")
)

// Length limits for task and comment text, counted in characters.
const (
	MaxTitleLength       = 1024
	MaxDescriptionLength = 65536
	MaxCommentLength     = 65536
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// UserRef points at a user account. Only ID is significant for ownership
// and change-sets; Email is filled in on reads.
type UserRef struct {
	ID    int64  `json:"id"`
	Email string `json:"email,omitempty"`
}

// Task is a tracked unit of work.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	Author      UserRef   `json:"author"`
	Assignee    *UserRef  `json:"assignee"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Resource returns the ownership attributes used for access decisions.
func (t *Task) Resource() access.Resource {
	r := access.Resource{AuthorID: t.Author.ID}
	if t.Assignee != nil {
		id := t.Assignee.ID
		r.AssigneeID = &id
	}
	return r
}

// clone returns a deep copy of t.
func (t *Task) clone() *Task {
	c := *t
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	return &c
}

// Comment is an immutable note attached to exactly one task.
type Comment struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Author    UserRef   `json:"author"`
	TaskID    int64     `json:"taskId"`
	CreatedAt time.Time `json:"createdDate"`
}

// Store persists and retrieves tasks and their comments.
type Store interface {
	// Create persists a new task and sets its ID and timestamps.
	Create(ctx context.Context, t *Task) error

	// Get retrieves a task by ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Task, error)

	// Update saves every field of an existing task.
	Update(ctx context.Context, t *Task) error

	// Delete removes a task and its comments.
	Delete(ctx context.Context, id int64) error

	// List returns one page of tasks matching q.
	List(ctx context.Context, q Query) (Page[Task], error)

	// AddComment persists a comment and sets its ID and CreatedAt.
	AddComment(ctx context.Context, c *Comment) error

	// ListComments returns a task's comments, oldest first.
	ListComments(ctx context.Context, taskID int64, p PageRequest) (Page[Comment], error)
}
