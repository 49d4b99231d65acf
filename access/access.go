// Package access decides whether a principal may act on a task. Every
// function here is pure: callers load the resource, ask for a decision,
// and only then touch persistence.
package access

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/tms/auth"
)

// ErrPermissionDenied is returned when an authorization rule fails.
var ErrPermissionDenied = errors.New("permission denied")

// Action is an operation a principal requests on a task.
type Action string

const (
	Read          Action = "READ"
	UpdateFull    Action = "UPDATE_FULL"
	UpdatePartial Action = "UPDATE_PARTIAL"
	Delete        Action = "DELETE"
	Comment       Action = "COMMENT"
)

// Resource carries the ownership attributes of a task. AssigneeID is nil
// when the task is unassigned.
type Resource struct {
	AuthorID   int64
	AssigneeID *int64
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// IsAuthor reports whether p authored r.
func IsAuthor(p auth.Principal, r Resource) bool {
	return p.ID == r.AuthorID
}

// IsAssignee reports whether p is assigned to r. An unassigned resource
// has no assignee to match.
func IsAssignee(p auth.Principal, r Resource) bool {
	return r.AssigneeID != nil && *r.AssigneeID == p.ID
}

// Owns reports whether p is the author or the assignee of r.
func Owns(p auth.Principal, r Resource) bool {
	return IsAuthor(p, r) || IsAssignee(p, r)
}

// Decide evaluates the rules in precedence order: admins may do anything;
// owners may read, partially update and comment; only the author may
// delete. Everything else is denied.
func Decide(p auth.Principal, r Resource, a Action) Decision {
	if p.IsAdmin() {
		return Allow
	}
	switch a {
	case Read, UpdatePartial, Comment:
		if Owns(p, r) {
			return Allow
		}
	case Delete:
		if IsAuthor(p, r) {
			return Allow
		}
	}
	return Deny
}

// CanAct reports whether p may perform a on r.
func CanAct(p auth.Principal, r Resource, a Action) bool {
	return Decide(p, r, a) == Allow
}

// Check is CanAct as an error: nil on allow, ErrPermissionDenied on deny.
func Check(p auth.Principal, r Resource, a Action) error {
	if !CanAct(p, r, a) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, a)
	}
	return nil
}

// RequireAdmin fails unless p is an admin.
func RequireAdmin(p auth.Principal) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrPermissionDenied)
	}
	return nil
}

// CheckListScope enforces list visibility: non-admins may only name their
// own id in either filter slot.
func CheckListScope(p auth.Principal, authorID, assigneeID *int64) error {
	if p.IsAdmin() {
		return nil
	}
	if authorID != nil && *authorID != p.ID {
		return fmt.Errorf("%w: cannot list tasks authored by another user", ErrPermissionDenied)
	}
	if assigneeID != nil && *assigneeID != p.ID {
		return fmt.Errorf("%w: cannot list tasks assigned to another user", ErrPermissionDenied)
	}
	return nil
}

// Tier selects the update merge strategy.
type Tier int

const (
	TierPartial Tier = iota
	TierFull
)

// TierFor returns TierFull for admins and TierPartial for everyone else.
func TierFor(p auth.Principal) Tier {
	if p.IsAdmin() {
		return TierFull
	}
	return TierPartial
}

// UpdateActionFor routes admins to UpdateFull and non-admins to UpdatePartial.
func UpdateActionFor(p auth.Principal) Action {
	if p.IsAdmin() {
		return UpdateFull
	}
	return UpdatePartial
}
