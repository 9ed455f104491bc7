package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/taskflowhq/taskflow/internal/domain/user"
)

func NewFromCreateRequest(req CreateTaskRequest, creator user.Ref, order int) Task {
	now := time.Now().UTC()

	status := req.Status
	if status == "" {
		status = StatusTodo
	}

	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	t := Task{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Priority:       priority,
		Project:        ProjectRef{ID: req.Project},
		CreatedBy:      creator,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		Tags:           tags,
		Comments:       []Comment{},
		Order:          order,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// ApplyStatus rather than a bare assignment keeps the completion
	// fields consistent when a task is created directly in done.
	t.ApplyStatus(status)

	return t
}
