package task

import (
	"testing"
	"time"

	"github.com/taskflowhq/taskflow/internal/domain/user"
)

func TestApplyStatusLockstep(t *testing.T) {
	tests := []struct {
		name          string
		from          string
		to            string
		wantCompleted bool
	}{
		{"todo to done", StatusTodo, StatusDone, true},
		{"in-progress to done", StatusInProgress, StatusDone, true},
		{"done to todo", StatusDone, StatusTodo, false},
		{"done to in-progress", StatusDone, StatusInProgress, false},
		{"todo to in-progress", StatusTodo, StatusInProgress, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tk := Task{Status: tc.from}

			if tc.from == StatusDone {
				tk.ApplyStatus(StatusDone)
			}

			tk.ApplyStatus(tc.to)

			if tk.Status != tc.to {
				t.Fatalf("status: got %q, want %q", tk.Status, tc.to)
			}

			if tk.IsCompleted != tc.wantCompleted {
				t.Fatalf("isCompleted: got %v, want %v", tk.IsCompleted, tc.wantCompleted)
			}

			if tc.wantCompleted && tk.CompletedAt == nil {
				t.Fatalf("completedAt must be set when status is done")
			}

			if !tc.wantCompleted && tk.CompletedAt != nil {
				t.Fatalf("completedAt must be nil when status is %q", tc.to)
			}
		})
	}
}

func TestApplyStatusDoneTwiceKeepsCompletedAt(t *testing.T) {
	tk := Task{Status: StatusTodo}

	tk.ApplyStatus(StatusDone)
	first := *tk.CompletedAt

	time.Sleep(time.Millisecond)
	tk.ApplyStatus(StatusDone)

	if !tk.CompletedAt.Equal(first) {
		t.Fatalf("re-applying done must not move completedAt: %v vs %v", first, *tk.CompletedAt)
	}
}

func TestNewFromCreateRequestDefaults(t *testing.T) {
	creator := user.Ref{ID: "u1", Name: "Ann", Email: "ann@example.com"}

	tk := NewFromCreateRequest(CreateTaskRequest{
		Title:   "Write release notes",
		Project: "0d4ae0a8-9f6c-4f44-9a83-0e2f6f0f6b1b",
	}, creator, 3)

	if tk.Status != StatusTodo {
		t.Fatalf("default status: got %q, want todo", tk.Status)
	}

	if tk.Priority != "medium" {
		t.Fatalf("default priority: got %q, want medium", tk.Priority)
	}

	if tk.Order != 3 {
		t.Fatalf("order: got %d, want 3", tk.Order)
	}

	if tk.IsCompleted || tk.CompletedAt != nil {
		t.Fatalf("new todo task must not be completed")
	}
}

func TestNewFromCreateRequestDirectlyDone(t *testing.T) {
	tk := NewFromCreateRequest(CreateTaskRequest{
		Title:   "Already finished",
		Project: "0d4ae0a8-9f6c-4f44-9a83-0e2f6f0f6b1b",
		Status:  StatusDone,
	}, user.Ref{ID: "u1"}, 1)

	if !tk.IsCompleted || tk.CompletedAt == nil {
		t.Fatalf("task created in done must carry completion fields")
	}
}

func TestNewFromCreateRequestAllowsPastDueDate(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)

	tk := NewFromCreateRequest(CreateTaskRequest{
		Title:   "Backfilled item",
		Project: "0d4ae0a8-9f6c-4f44-9a83-0e2f6f0f6b1b",
		DueDate: &past,
	}, user.Ref{ID: "u1"}, 1)

	if tk.DueDate == nil || !tk.DueDate.Equal(past) {
		t.Fatalf("past due dates are allowed, got %v", tk.DueDate)
	}
}
