package task

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/GoCodeAlone/tms/access"
	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/comms"
)

type serviceFixture struct {
	svc    *Service
	store  *SQLiteStore
	bus    *comms.InMemoryBus
	admin  auth.Principal
	author auth.Principal
	asg    auth.Principal
	other  auth.Principal
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store, db := newTestStore(t)
	bus := comms.NewInMemoryBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &serviceFixture{svc: NewService(store, bus, logger), store: store, bus: bus}
	f.admin = auth.Principal{ID: seedUser(t, db, "admin@example.com", "ADMIN"), Identity: "admin@example.com", Role: auth.RoleAdmin}
	f.author = auth.Principal{ID: seedUser(t, db, "author@example.com", "USER"), Identity: "author@example.com", Role: auth.RoleUser}
	f.asg = auth.Principal{ID: seedUser(t, db, "asg@example.com", "USER"), Identity: "asg@example.com", Role: auth.RoleUser}
	f.other = auth.Principal{ID: seedUser(t, db, "other@example.com", "USER"), Identity: "other@example.com", Role: auth.RoleUser}
	return f
}

// seedTask creates a task authored by f.author and assigned to f.asg.
func (f *serviceFixture) seedTask(t *testing.T) *Task {
	t.Helper()
	task, err := f.svc.Create(context.Background(), f.author, ChangeSet{
		Title:    strp("seed"),
		Assignee: &UserRef{ID: f.asg.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

func TestService_CreateAuthorship(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// A user naming someone else as author is ignored.
	task, err := f.svc.Create(ctx, f.author, ChangeSet{Title: strp("mine"), Author: &UserRef{ID: f.other.ID}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Author.ID != f.author.ID {
		t.Errorf("Author = %d, want %d", task.Author.ID, f.author.ID)
	}
	if task.Status != StatusPending || task.Priority != PriorityMedium {
		t.Errorf("defaults = %s/%s", task.Status, task.Priority)
	}

	// An admin may create on behalf of another user.
	task, err = f.svc.Create(ctx, f.admin, ChangeSet{Title: strp("theirs"), Author: &UserRef{ID: f.other.ID}})
	if err != nil {
		t.Fatalf("admin Create: %v", err)
	}
	if task.Author.ID != f.other.ID {
		t.Errorf("Author = %d, want %d", task.Author.ID, f.other.ID)
	}

	if _, err := f.svc.Create(ctx, f.admin, ChangeSet{Title: strp("x"), Assignee: &UserRef{ID: 9999}}); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("unknown assignee err = %v", err)
	}

	hist, _ := f.bus.History(0)
	if len(hist) != 2 || hist[0].Type != comms.TypeTaskCreated {
		t.Errorf("history = %d events", len(hist))
	}
}

func TestService_NotFoundBeforePermission(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, f.other, 777); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(ctx, f.other, 777); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Update(ctx, f.other, 777, ChangeSet{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update err = %v, want ErrNotFound", err)
	}
}

func TestService_ReadAccess(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	task := f.seedTask(t)

	for _, p := range []auth.Principal{f.admin, f.author, f.asg} {
		if _, err := f.svc.Get(ctx, p, task.ID); err != nil {
			t.Errorf("Get as %s: %v", p.Identity, err)
		}
		if _, err := f.svc.ListComments(ctx, p, task.ID, PageRequest{Size: 10}); err != nil {
			t.Errorf("ListComments as %s: %v", p.Identity, err)
		}
	}
	if _, err := f.svc.Get(ctx, f.other, task.ID); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("stranger Get err = %v", err)
	}
	if _, err := f.svc.ListComments(ctx, f.other, task.ID, PageRequest{Size: 10}); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("stranger ListComments err = %v", err)
	}
}

func TestService_UpdateTiers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	task := f.seedTask(t)

	// The assignee may edit content but not ownership.
	got, err := f.svc.Update(ctx, f.asg, task.ID, ChangeSet{
		Status: statusp(StatusInProgress),
		Author: &UserRef{ID: f.asg.ID},
	})
	if err != nil {
		t.Fatalf("assignee Update: %v", err)
	}
	if got.Status != StatusInProgress || got.Author.ID != f.author.ID {
		t.Errorf("after partial update: %+v", got)
	}

	// An admin reassigns authorship; status stays.
	got, err = f.svc.Update(ctx, f.admin, task.ID, ChangeSet{
		Priority: priorityp(PriorityHigh),
		Author:   &UserRef{ID: f.other.ID},
	})
	if err != nil {
		t.Fatalf("admin Update: %v", err)
	}
	if got.Status != StatusInProgress || got.Author.ID != f.other.ID || got.Priority != PriorityHigh {
		t.Errorf("after full update: %+v", got)
	}

	// The previous author no longer owns the task.
	if _, err := f.svc.Update(ctx, f.author, task.ID, ChangeSet{Title: strp("x")}); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("former author Update err = %v", err)
	}

	// Invalid values are rejected after the access check and leave the task untouched.
	if _, err := f.svc.Update(ctx, f.asg, task.ID, ChangeSet{Status: statusp("DONE")}); !errors.Is(err, ErrInvalidChangeSet) {
		t.Errorf("invalid Update err = %v", err)
	}
	stored, _ := f.store.Get(ctx, task.ID)
	if stored.Status != StatusInProgress {
		t.Errorf("Status = %s after rejected update", stored.Status)
	}
}

func TestService_Delete(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	task := f.seedTask(t)

	if err := f.svc.Delete(ctx, f.asg, task.ID); !errors.Is(err, access.ErrPermissionDenied) {
		t.Fatalf("assignee Delete err = %v", err)
	}
	if _, err := f.store.Get(ctx, task.ID); err != nil {
		t.Fatalf("task gone after denied delete: %v", err)
	}
	if err := f.svc.Delete(ctx, f.author, task.ID); err != nil {
		t.Fatalf("author Delete: %v", err)
	}

	hist, _ := f.bus.History(1)
	if len(hist) != 1 || hist[0].Type != comms.TypeTaskDeleted || hist[0].TaskID != task.ID {
		t.Errorf("last event = %+v", hist)
	}
}

func TestService_ListScope(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.seedTask(t)
	if _, err := f.svc.Create(ctx, f.other, ChangeSet{Title: strp("other's")}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	page := PageRequest{Size: 10}

	if _, err := f.svc.List(ctx, f.author, &f.other.ID, nil, DefaultSort, page); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("foreign author filter err = %v", err)
	}

	own, err := f.svc.List(ctx, f.asg, nil, nil, DefaultSort, page)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if own.TotalElements != 1 {
		t.Errorf("assignee sees %d tasks, want 1", own.TotalElements)
	}

	all, err := f.svc.List(ctx, f.admin, nil, nil, DefaultSort, page)
	if err != nil {
		t.Fatalf("admin List: %v", err)
	}
	if all.TotalElements != 2 {
		t.Errorf("admin sees %d tasks, want 2", all.TotalElements)
	}

	mine, err := f.svc.ListAll(ctx, f.other, DefaultSort, page)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if mine.TotalElements != 1 || mine.Content[0].Title != "other's" {
		t.Errorf("ListAll for user = %+v", mine)
	}
}

func TestService_ListDefaultsSort(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	var logs bytes.Buffer
	f.svc.logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	first := f.seedTask(t)
	second := f.seedTask(t)

	all, err := f.svc.ListAll(ctx, f.admin, nil, PageRequest{Size: 10})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all.Content) != 2 || all.Content[0].ID != second.ID || all.Content[1].ID != first.ID {
		t.Errorf("ListAll order = %+v, want newest first", all.Content)
	}
	if !strings.Contains(logs.String(), "sort=id,desc") {
		t.Errorf("effective sort not logged: %s", logs.String())
	}
}

func TestService_Comments(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	task := f.seedTask(t)

	c, err := f.svc.AddComment(ctx, f.asg, task.ID, "on it")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c.Author.ID != f.asg.ID || c.TaskID != task.ID {
		t.Errorf("comment = %+v", c)
	}
	if _, err := f.svc.AddComment(ctx, f.other, task.ID, "hi"); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("stranger AddComment err = %v", err)
	}
	if _, err := f.svc.AddComment(ctx, f.author, task.ID, "   "); !errors.Is(err, ErrInvalidComment) {
		t.Errorf("blank AddComment err = %v", err)
	}
	if _, err := f.svc.AddComment(ctx, f.author, 4242, "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing task AddComment err = %v", err)
	}

	page, err := f.svc.ListComments(ctx, f.author, task.ID, PageRequest{Size: 10})
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if page.TotalElements != 1 || page.Content[0].Text != "on it" {
		t.Errorf("comments = %+v", page)
	}
}
