package access

import (
	"errors"
	"testing"

	"github.com/GoCodeAlone/tms/auth"
)

func ptr(v int64) *int64 { return &v }

var (
	admin    = auth.Principal{ID: 100, Identity: "admin@example.com", Role: auth.RoleAdmin}
	author   = auth.Principal{ID: 1, Identity: "author@example.com", Role: auth.RoleUser}
	assignee = auth.Principal{ID: 2, Identity: "assignee@example.com", Role: auth.RoleUser}
	stranger = auth.Principal{ID: 3, Identity: "stranger@example.com", Role: auth.RoleUser}
)

func TestDecide(t *testing.T) {
	assigned := Resource{AuthorID: 1, AssigneeID: ptr(2)}
	unassigned := Resource{AuthorID: 1}

	tests := []struct {
		name string
		p    auth.Principal
		r    Resource
		a    Action
		want Decision
	}{
		{"admin reads", admin, assigned, Read, Allow},
		{"admin full update", admin, assigned, UpdateFull, Allow},
		{"admin deletes", admin, unassigned, Delete, Allow},
		{"admin comments", admin, unassigned, Comment, Allow},

		{"author reads", author, assigned, Read, Allow},
		{"author partial update", author, assigned, UpdatePartial, Allow},
		{"author comments", author, assigned, Comment, Allow},
		{"author deletes", author, assigned, Delete, Allow},
		{"author full update", author, assigned, UpdateFull, Deny},

		{"assignee reads", assignee, assigned, Read, Allow},
		{"assignee partial update", assignee, assigned, UpdatePartial, Allow},
		{"assignee comments", assignee, assigned, Comment, Allow},
		{"assignee deletes", assignee, assigned, Delete, Deny},
		{"assignee full update", assignee, assigned, UpdateFull, Deny},

		{"stranger reads", stranger, assigned, Read, Deny},
		{"stranger partial update", stranger, assigned, UpdatePartial, Deny},
		{"stranger comments", stranger, assigned, Comment, Deny},
		{"stranger deletes", stranger, assigned, Delete, Deny},

		{"nil assignee never matches", assignee, unassigned, Read, Deny},
		{"unknown action", author, assigned, Action("ARCHIVE"), Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.p, tt.r, tt.a); got != tt.want {
				t.Errorf("Decide = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeleteRequiresAuthorOrAdmin(t *testing.T) {
	// Exhaustive over small ids: delete is allowed iff admin or author.
	for pid := int64(1); pid <= 4; pid++ {
		for aid := int64(1); aid <= 4; aid++ {
			for _, asg := range []*int64{nil, ptr(1), ptr(2), ptr(3), ptr(4)} {
				for _, role := range []auth.Role{auth.RoleUser, auth.RoleAdmin} {
					p := auth.Principal{ID: pid, Role: role}
					r := Resource{AuthorID: aid, AssigneeID: asg}
					want := role == auth.RoleAdmin || pid == aid
					if got := CanAct(p, r, Delete); got != want {
						t.Fatalf("CanAct(%+v, %+v, DELETE) = %v, want %v", p, r, got, want)
					}
				}
			}
		}
	}
}

func TestLargeIDsCompareByValue(t *testing.T) {
	const big = int64(1) << 40
	p := auth.Principal{ID: big, Role: auth.RoleUser}
	r := Resource{AuthorID: big + 1, AssigneeID: ptr(big)}
	if !CanAct(p, r, Read) {
		t.Error("assignee with a large id should be able to read")
	}
	if CanAct(p, r, Delete) {
		t.Error("assignee with a large id should not be able to delete")
	}
}

func TestCheck(t *testing.T) {
	r := Resource{AuthorID: 1, AssigneeID: ptr(2)}
	if err := Check(author, r, Delete); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	err := Check(assignee, r, Delete)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("assignee delete err = %v, want ErrPermissionDenied", err)
	}
}

func TestCheckListScope(t *testing.T) {
	tests := []struct {
		name     string
		p        auth.Principal
		authorID *int64
		asgID    *int64
		wantErr  bool
	}{
		{"admin any", admin, ptr(7), ptr(8), false},
		{"user own author", author, ptr(1), nil, false},
		{"user own both", author, ptr(1), ptr(1), false},
		{"user nothing", author, nil, nil, false},
		{"user other author", author, ptr(2), nil, true},
		{"user other assignee", author, nil, ptr(2), true},
		{"user mixed", author, ptr(1), ptr(2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckListScope(tt.p, tt.authorID, tt.asgID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("err = %v, want ErrPermissionDenied", err)
			}
		})
	}
}

func TestTiers(t *testing.T) {
	if TierFor(admin) != TierFull || UpdateActionFor(admin) != UpdateFull {
		t.Error("admin should get the full tier")
	}
	if TierFor(author) != TierPartial || UpdateActionFor(author) != UpdatePartial {
		t.Error("user should get the partial tier")
	}
	if err := RequireAdmin(author); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("RequireAdmin(user) = %v", err)
	}
	if err := RequireAdmin(admin); err != nil {
		t.Errorf("RequireAdmin(admin) = %v", err)
	}
}
