package task

import (
	"errors"
	"time"

	"github.com/taskflowhq/taskflow/internal/domain/user"
)

var ErrNotFound = errors.New("task not found")

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}

	return false
}

type Comment struct {
	ID        string    `json:"id"`
	User      user.Ref  `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectRef is the slim parent-project view hydrated into task payloads.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	Project        ProjectRef `json:"project"`
	AssignedTo     *user.Ref  `json:"assignedTo,omitempty"`
	CreatedBy      user.Ref   `json:"createdBy"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	EstimatedHours float64    `json:"estimatedHours"`
	ActualHours    float64    `json:"actualHours"`
	Tags           []string   `json:"tags"`
	Comments       []Comment  `json:"comments"`
	IsCompleted    bool       `json:"isCompleted"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Order          int        `json:"order"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ApplyStatus keeps isCompleted/completedAt in lockstep with status:
// entering done sets both, leaving done clears both.
func (t *Task) ApplyStatus(status string) {
	t.Status = status

	if status == StatusDone {
		if !t.IsCompleted {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}
		t.IsCompleted = true
		return
	}

	t.IsCompleted = false
	t.CompletedAt = nil
}

type CreateTaskRequest struct {
	Title          string     `json:"title" binding:"required,min=3,max=200"`
	Description    string     `json:"description" binding:"omitempty,max=1000"`
	Project        string     `json:"project" binding:"required"`
	AssignedTo     string     `json:"assignedTo"`
	Status         string     `json:"status" binding:"omitempty,oneof=todo in-progress done"`
	Priority       string     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours float64    `json:"estimatedHours" binding:"omitempty,min=0"`
	Tags           []string   `json:"tags" binding:"omitempty,dive,max=30"`
}

type UpdateTaskRequest struct {
	Title          string     `json:"title" binding:"required,min=3,max=200"`
	Description    string     `json:"description" binding:"omitempty,max=1000"`
	AssignedTo     string     `json:"assignedTo"`
	Status         string     `json:"status" binding:"omitempty,oneof=todo in-progress done"`
	Priority       string     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours float64    `json:"estimatedHours" binding:"omitempty,min=0"`
	Tags           []string   `json:"tags" binding:"omitempty,dive,max=30"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=todo in-progress done"`
	Order  int    `json:"order" binding:"omitempty,min=0"`
}

type AddCommentRequest struct {
	Text string `json:"text" binding:"required,max=500"`
}

type LogTimeRequest struct {
	Hours float64 `json:"hours" binding:"required,gt=0"`
}

type ListFilter struct {
	Project    *string
	Status     *string
	Priority   *string
	AssignedTo *string
	Search     *string
	Overdue    bool
	DueDate    *time.Time
}

// Stats is the per-project aggregate served by the project stats endpoint.
type Stats struct {
	TotalTasks      int            `json:"totalTasks"`
	CompletedTasks  int            `json:"completedTasks"`
	OverdueTasks    int            `json:"overdueTasks"`
	Progress        int            `json:"progress"`
	TasksByStatus   map[string]int `json:"tasksByStatus"`
	TasksByPriority map[string]int `json:"tasksByPriority"`
}

type DashboardStats struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	OverdueTasks   int `json:"overdueTasks"`
	TodayTasks     int `json:"todayTasks"`
	CompletionRate int `json:"completionRate"`
}

// Dashboard aggregates the caller's assigned-task view.
type Dashboard struct {
	Stats           DashboardStats `json:"stats"`
	UpcomingTasks   []Task         `json:"upcomingTasks"`
	TasksByStatus   map[string]int `json:"tasksByStatus"`
	TasksByPriority map[string]int `json:"tasksByPriority"`
	Projects        int            `json:"projects"`
}
