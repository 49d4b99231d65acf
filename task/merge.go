package task

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/GoCodeAlone/tms/access"
)

// ErrInvalidChangeSet is returned when a change-set carries a value that
// cannot be applied. Nothing is merged in that case.
var ErrInvalidChangeSet = errors.New("invalid change set")

// ChangeSet is a sparse task update. A nil field is absent and leaves the
// task unchanged; a JSON null decodes to nil as well.
type ChangeSet struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Author      *UserRef  `json:"author,omitempty"`
	Assignee    *UserRef  `json:"assignee,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidChangeSet, fmt.Sprintf(format, args...))
}

// validateContent checks the fields a partial update may touch.
func (cs ChangeSet) validateContent() error {
	if cs.Title != nil {
		n := utf8.RuneCountInString(*cs.Title)
		if n < 1 || n > MaxTitleLength {
			return invalid("title must be between 1 and %d characters", MaxTitleLength)
		}
	}
	if cs.Description != nil && utf8.RuneCountInString(*cs.Description) > MaxDescriptionLength {
		return invalid("description must be at most %d characters", MaxDescriptionLength)
	}
	if cs.Status != nil && !cs.Status.Valid() {
		return invalid("unknown status %q", *cs.Status)
	}
	if cs.Priority != nil && !cs.Priority.Valid() {
		return invalid("unknown priority %q", *cs.Priority)
	}
	return nil
}

// validateRefs checks the user references only a full update applies.
func (cs ChangeSet) validateRefs() error {
	if cs.Author != nil && cs.Author.ID <= 0 {
		return invalid("author id must be positive")
	}
	if cs.Assignee != nil && cs.Assignee.ID <= 0 {
		return invalid("assignee id must be positive")
	}
	return nil
}

// applyContent copies title, description, status and priority.
func (cs ChangeSet) applyContent(t *Task) {
	if cs.Title != nil {
		t.Title = *cs.Title
	}
	if cs.Description != nil {
		t.Description = *cs.Description
	}
	if cs.Status != nil {
		t.Status = *cs.Status
	}
	if cs.Priority != nil {
		t.Priority = *cs.Priority
	}
}

// MergePartial applies the owner allow-list: title, description, status and
// priority. Author and assignee in cs are ignored. current is not modified.
func MergePartial(current *Task, cs ChangeSet) (*Task, error) {
	if err := cs.validateContent(); err != nil {
		return nil, err
	}
	next := current.clone()
	cs.applyContent(next)
	return next, nil
}

// MergeFull applies every present field of cs, including author and
// assignee. The id is never overwritten. current is not modified.
func MergeFull(current *Task, cs ChangeSet) (*Task, error) {
	if err := cs.validateContent(); err != nil {
		return nil, err
	}
	if err := cs.validateRefs(); err != nil {
		return nil, err
	}
	next := current.clone()
	cs.applyContent(next)
	if cs.Author != nil {
		next.Author = UserRef{ID: cs.Author.ID}
	}
	if cs.Assignee != nil {
		next.Assignee = &UserRef{ID: cs.Assignee.ID}
	}
	return next, nil
}

// Merge dispatches to MergeFull or MergePartial by tier.
func Merge(tier access.Tier, current *Task, cs ChangeSet) (*Task, error) {
	if tier == access.TierFull {
		return MergeFull(current, cs)
	}
	return MergePartial(current, cs)
}

// Draft builds a new task from cs. Title is required; status defaults to
// PENDING and priority to MEDIUM.
func Draft(cs ChangeSet) (*Task, error) {
	if cs.Title == nil {
		return nil, invalid("title is required")
	}
	base := &Task{Status: StatusPending, Priority: PriorityMedium}
	return MergeFull(base, cs)
}
