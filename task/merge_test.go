package task

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/GoCodeAlone/tms/access"
)

func strp(s string) *string { return &s }

func statusp(s Status) *Status { return &s }

func priorityp(p Priority) *Priority { return &p }

func sampleTask() *Task {
	return &Task{
		ID:          42,
		Title:       "Write report",
		Description: "quarterly",
		Status:      StatusCompleted,
		Priority:    PriorityLow,
		Author:      UserRef{ID: 1, Email: "a@example.com"},
		Assignee:    &UserRef{ID: 3, Email: "c@example.com"},
	}
}

func TestMergePartial_IgnoresOwnership(t *testing.T) {
	current := sampleTask()
	cs := ChangeSet{
		Title:    strp("Renamed"),
		Author:   &UserRef{ID: 2},
		Assignee: &UserRef{ID: 9},
	}
	got, err := MergePartial(current, cs)
	if err != nil {
		t.Fatalf("MergePartial: %v", err)
	}
	if got.Author.ID != 1 {
		t.Errorf("Author = %d, want 1", got.Author.ID)
	}
	if got.Assignee == nil || got.Assignee.ID != 3 {
		t.Errorf("Assignee = %+v, want id 3", got.Assignee)
	}
	if got.Title != "Renamed" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestMergePartial_AppliesContentFields(t *testing.T) {
	current := sampleTask()
	cs := ChangeSet{
		Description: strp(""),
		Status:      statusp(StatusInProgress),
		Priority:    priorityp(PriorityHigh),
	}
	got, err := MergePartial(current, cs)
	if err != nil {
		t.Fatalf("MergePartial: %v", err)
	}
	if got.Description != "" || got.Status != StatusInProgress || got.Priority != PriorityHigh {
		t.Errorf("got %+v", got)
	}
	if got.Title != current.Title {
		t.Errorf("absent title changed to %q", got.Title)
	}
}

func TestMergeFull_SparseOverwrite(t *testing.T) {
	current := sampleTask()
	cs := ChangeSet{Priority: priorityp(PriorityHigh), Author: &UserRef{ID: 2}}

	got, err := MergeFull(current, cs)
	if err != nil {
		t.Fatalf("MergeFull: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
	if got.Author.ID != 2 {
		t.Errorf("Author = %d, want 2", got.Author.ID)
	}
	if got.Priority != PriorityHigh {
		t.Errorf("Priority = %s, want HIGH", got.Priority)
	}
	if got.ID != 42 {
		t.Errorf("ID = %d, want 42", got.ID)
	}
	if got.Assignee == nil || got.Assignee.ID != 3 {
		t.Errorf("absent assignee changed: %+v", got.Assignee)
	}
}

func TestMergeFull_Idempotent(t *testing.T) {
	cs := ChangeSet{
		Title:    strp("x"),
		Status:   statusp(StatusPending),
		Author:   &UserRef{ID: 5},
		Assignee: &UserRef{ID: 6},
	}
	once, err := MergeFull(sampleTask(), cs)
	if err != nil {
		t.Fatalf("MergeFull: %v", err)
	}
	twice, err := MergeFull(once, cs)
	if err != nil {
		t.Fatalf("MergeFull twice: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent:\n once  %+v\n twice %+v", once, twice)
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	current := sampleTask()
	before := *current
	beforeAssignee := *current.Assignee

	cs := ChangeSet{Title: strp("changed"), Assignee: &UserRef{ID: 8}}
	if _, err := MergeFull(current, cs); err != nil {
		t.Fatalf("MergeFull: %v", err)
	}
	if current.Title != before.Title || *current.Assignee != beforeAssignee {
		t.Errorf("input mutated: %+v", current)
	}
}

func TestMerge_EmptyChangeSet(t *testing.T) {
	current := sampleTask()
	for _, tier := range []access.Tier{access.TierPartial, access.TierFull} {
		got, err := Merge(tier, current, ChangeSet{})
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if !reflect.DeepEqual(got, current) {
			t.Errorf("tier %d: empty change-set changed the task", tier)
		}
	}
}

func TestMerge_Invalid(t *testing.T) {
	tests := map[string]ChangeSet{
		"empty title":      {Title: strp("")},
		"long title":       {Title: strp(strings.Repeat("x", MaxTitleLength+1))},
		"long description": {Description: strp(strings.Repeat("d", MaxDescriptionLength+1))},
		"bad status":       {Status: statusp("DONE")},
		"bad priority":     {Priority: priorityp("URGENT")},
		"zero author":      {Author: &UserRef{ID: 0}},
		"negative asg":     {Assignee: &UserRef{ID: -1}},
	}
	for name, cs := range tests {
		t.Run(name, func(t *testing.T) {
			current := sampleTask()
			if _, err := MergeFull(current, cs); !errors.Is(err, ErrInvalidChangeSet) {
				t.Errorf("err = %v, want ErrInvalidChangeSet", err)
			}
		})
	}
}

func TestMergePartial_IgnoresInvalidRefs(t *testing.T) {
	// Refs are not applied by a partial merge, so they are not validated.
	if _, err := MergePartial(sampleTask(), ChangeSet{Author: &UserRef{ID: -4}}); err != nil {
		t.Fatalf("MergePartial: %v", err)
	}
}

func TestMerge_TitleCountsCharacters(t *testing.T) {
	title := strings.Repeat("é", MaxTitleLength)
	if _, err := MergePartial(sampleTask(), ChangeSet{Title: &title}); err != nil {
		t.Fatalf("multibyte title at the limit rejected: %v", err)
	}
}

func TestDraft(t *testing.T) {
	got, err := Draft(ChangeSet{Title: strp("New")})
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if got.Status != StatusPending || got.Priority != PriorityMedium {
		t.Errorf("defaults = %s/%s", got.Status, got.Priority)
	}
	if _, err := Draft(ChangeSet{}); !errors.Is(err, ErrInvalidChangeSet) {
		t.Errorf("missing title err = %v", err)
	}
}
