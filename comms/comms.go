// Package comms provides the in-process activity bus that carries task and
// comment events to live subscribers.
package comms

import (
	"context"
	"time"

	"github.com/GoCodeAlone/tms/access"
)

// EventType identifies the kind of activity.
type EventType string

const (
	TypeTaskCreated  EventType = "task.created"
	TypeTaskUpdated  EventType = "task.updated"
	TypeTaskDeleted  EventType = "task.deleted"
	TypeCommentAdded EventType = "comment.added"
)

// Event describes one change to a task. The ownership fields reflect the
// task at the time of the change so subscribers can filter by access.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TaskID     int64     `json:"taskId"`
	ActorID    int64     `json:"actorId"`
	AuthorID   int64     `json:"authorId"`
	AssigneeID *int64    `json:"assigneeId,omitempty"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
}

// Resource returns the ownership attributes of the task the event is about.
func (e *Event) Resource() access.Resource {
	return access.Resource{AuthorID: e.AuthorID, AssigneeID: e.AssigneeID}
}

// Handler processes a published event.
type Handler func(ctx context.Context, ev *Event) error

// Bus fans events out to subscribers and keeps a bounded history.
type Bus interface {
	// Publish delivers ev to every subscriber. ID and Timestamp are filled
	// in when empty.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler under subscriberID. Returns an
	// unsubscribe function.
	Subscribe(subscriberID string, handler Handler) (unsubscribe func())

	// History returns up to limit recent events in chronological order.
	// limit <= 0 returns the whole retained history.
	History(limit int) ([]*Event, error)
}
