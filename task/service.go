package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/GoCodeAlone/tms/access"
	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
)

// Service runs task operations for an authenticated principal. Every
// operation loads the task first (ErrNotFound wins over a denial), asks
// the access engine, and only then writes.
type Service struct {
	store  Store
	bus    comms.Bus
	logger *slog.Logger
}

// NewService returns a Service. bus may be nil.
func NewService(store Store, bus comms.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, bus: bus, logger: logger}
}

func (s *Service) publish(ctx context.Context, typ comms.EventType, actor auth.Principal, t *Task, summary string) {
	if s.bus == nil {
		return
	}
	r := t.Resource()
	ev := &comms.Event{
		Type:       typ,
		TaskID:     t.ID,
		ActorID:    actor.ID,
		AuthorID:   r.AuthorID,
		AssigneeID: r.AssigneeID,
		Summary:    summary,
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish activity", slog.String("type", string(typ)), slog.Any("err", err))
	}
}

// Create stores a new task. A non-admin is always the author; an admin may
// name another author. Anyone may set an assignee.
func (s *Service) Create(ctx context.Context, p auth.Principal, cs ChangeSet) (*Task, error) {
	if !p.IsAdmin() {
		cs.Author = nil
	}
	t, err := Draft(cs)
	if err != nil {
		return nil, err
	}
	if t.Author.ID == 0 {
		t.Author = UserRef{ID: p.ID, Email: p.Identity}
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("task created", slog.Int64("task_id", t.ID), slog.Int64("actor", p.ID))
	s.publish(ctx, comms.TypeTaskCreated, p, t, t.Title)
	return t, nil
}

// load fetches a task and checks action against it.
func (s *Service) load(ctx context.Context, p auth.Principal, id int64, action access.Action) (*Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.Check(p, t.Resource(), action); err != nil {
		s.logger.Warn("access denied",
			slog.Int64("task_id", id),
			slog.Int64("principal", p.ID),
			slog.String("action", string(action)))
		return nil, err
	}
	return t, nil
}

// Get returns a task the principal may read.
func (s *Service) Get(ctx context.Context, p auth.Principal, id int64) (*Task, error) {
	return s.load(ctx, p, id, access.Read)
}

// Update merges cs into the task. Admins get a full merge, owners a
// partial one restricted to content fields.
func (s *Service) Update(ctx context.Context, p auth.Principal, id int64, cs ChangeSet) (*Task, error) {
	current, err := s.load(ctx, p, id, access.UpdateActionFor(p))
	if err != nil {
		return nil, err
	}
	next, err := Merge(access.TierFor(p), current, cs)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, next); err != nil {
		return nil, err
	}
	s.logger.Info("task updated", slog.Int64("task_id", id), slog.Int64("actor", p.ID))
	// Ownership changes are announced to the previous owners too.
	s.publish(ctx, comms.TypeTaskUpdated, p, next, next.Title)
	if current.Author.ID != next.Author.ID || !sameAssignee(current, next) {
		s.publish(ctx, comms.TypeTaskUpdated, p, current, current.Title)
	}
	return next, nil
}

func sameAssignee(a, b *Task) bool {
	if a.Assignee == nil || b.Assignee == nil {
		return a.Assignee == b.Assignee
	}
	return a.Assignee.ID == b.Assignee.ID
}

// Delete removes a task and its comments. Only the author or an admin may.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id int64) error {
	t, err := s.load(ctx, p, id, access.Delete)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", slog.Int64("task_id", id), slog.Int64("actor", p.ID))
	s.publish(ctx, comms.TypeTaskDeleted, p, t, t.Title)
	return nil
}

// List returns tasks filtered by author and assignee. Non-admins may only
// name themselves; with no filter they see the tasks they own.
func (s *Service) List(ctx context.Context, p auth.Principal, authorID, assigneeID *int64, sort Sort, page PageRequest) (Page[Task], error) {
	if err := access.CheckListScope(p, authorID, assigneeID); err != nil {
		return Page[Task]{}, err
	}
	filter := ComposeFilter(authorID, assigneeID)
	if !p.IsAdmin() && filter.Unrestricted() {
		filter = ownedBy(p)
	}
	return s.list(ctx, p, Query{Filter: filter, Sort: sort, Page: page})
}

// ListAll returns every task to an admin and the owned tasks to anyone else.
func (s *Service) ListAll(ctx context.Context, p auth.Principal, sort Sort, page PageRequest) (Page[Task], error) {
	var filter Predicate
	if !p.IsAdmin() {
		filter = ownedBy(p)
	}
	return s.list(ctx, p, Query{Filter: filter, Sort: sort, Page: page})
}

func (s *Service) list(ctx context.Context, p auth.Principal, q Query) (Page[Task], error) {
	if len(q.Sort) == 0 {
		q.Sort = DefaultSort
	}
	s.logger.Debug("list tasks",
		slog.Int64("actor", p.ID),
		slog.String("sort", q.Sort.String()),
		slog.Int("page", q.Page.Page),
		slog.Int("size", q.Page.Size),
	)
	return s.store.List(ctx, q)
}

func ownedBy(p auth.Principal) Predicate {
	id := p.ID
	return ComposeFilter(&id, &id)
}

// AddComment attaches text to a task the principal owns.
func (s *Service) AddComment(ctx context.Context, p auth.Principal, taskID int64, text string) (*Comment, error) {
	t, err := s.load(ctx, p, taskID, access.Comment)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidComment)
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, fmt.Errorf("%w: text must be at most %d characters", ErrInvalidComment, MaxCommentLength)
	}
	c := &Comment{Text: text, Author: UserRef{ID: p.ID, Email: p.Identity}, TaskID: taskID}
	if err := s.store.AddComment(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("comment added", slog.Int64("task_id", taskID), slog.Int64("comment_id", c.ID))
	s.publish(ctx, comms.TypeCommentAdded, p, t, t.Title)
	return c, nil
}

// ListComments returns a task's comments, oldest first, to anyone who may
// read the task.
func (s *Service) ListComments(ctx context.Context, p auth.Principal, taskID int64, page PageRequest) (Page[Comment], error) {
	if _, err := s.load(ctx, p, taskID, access.Read); err != nil {
		return Page[Comment]{}, err
	}
	return s.store.ListComments(ctx, taskID, page)
}
