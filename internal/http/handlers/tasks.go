package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taskflowhq/taskflow/internal/authz"
	"github.com/taskflowhq/taskflow/internal/cache"
	"github.com/taskflowhq/taskflow/internal/config"
	"github.com/taskflowhq/taskflow/internal/domain/project"
	"github.com/taskflowhq/taskflow/internal/domain/task"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/http/middlewares"
	"github.com/taskflowhq/taskflow/internal/utils"
)

type TaskStore interface {
	NextOrder(ctx context.Context, projectID, status string) (int, error)
	Create(ctx context.Context, t task.Task) error
	GetByID(ctx context.Context, id string) (task.Task, error)
	ListForUser(ctx context.Context, userID string, filter task.ListFilter) ([]task.Task, error)
	Update(ctx context.Context, t task.Task) (task.Task, error)
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, taskID string, c task.Comment) error
	LogTime(ctx context.Context, taskID string, hours float64) error
}

type TaskProjectLoader interface {
	GetByID(ctx context.Context, id string) (project.Project, error)
}

type TasksHandler struct {
	tasks    TaskStore
	projects TaskProjectLoader
	cache    cache.Store
}

func NewTasksHandler(tasks TaskStore, projects TaskProjectLoader, cacheStore cache.Store) *TasksHandler {
	return &TasksHandler{
		tasks:    tasks,
		projects: projects,
		cache:    cacheStore,
	}
}

// invalidate clears derived aggregates after a task mutation.
func (h *TasksHandler) invalidate(ctx context.Context, t task.Task) {
	h.cache.Delete(ctx, utils.BuildProjectStatsCacheKey(t.Project.ID))

	if t.AssignedTo != nil {
		h.cache.Delete(ctx, utils.BuildDashboardCacheKey(t.AssignedTo.ID))
	}
}

// loadWithAccess fetches the task named in the route and resolves the
// caller's role through its parent project. A task whose project has been
// deleted fails closed. Writes the error response itself on failure.
func (h *TasksHandler) loadWithAccess(ctx *gin.Context, cctx context.Context) (task.Task, project.Project, authz.Role, bool) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	t, err := h.tasks.GetByID(cctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return task.Task{}, project.Project{}, authz.RoleDenied, false
		}

		RespondInternal(ctx, "Could not load task")
		return task.Task{}, project.Project{}, authz.RoleDenied, false
	}

	p, err := h.projects.GetByID(cctx, t.Project.ID)

	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			// orphaned task: parent project was deleted
			RespondForbidden(ctx, "Access denied to this task")
			return task.Task{}, project.Project{}, authz.RoleDenied, false
		}

		RespondInternal(ctx, "Could not load task")
		return task.Task{}, project.Project{}, authz.RoleDenied, false
	}

	role := authz.Resolve(userID, p)

	if !role.Granted() {
		RespondForbidden(ctx, "Access denied to this task")
		return task.Task{}, project.Project{}, authz.RoleDenied, false
	}

	return t, p, role, true
}

// assigneeRef validates that the requested assignee belongs to the project
// and returns their slim reference.
func assigneeRef(p project.Project, assigneeID string) (*user.Ref, bool) {
	if assigneeID == "" {
		return nil, true
	}

	if p.Owner.ID == assigneeID {
		ref := p.Owner
		return &ref, true
	}

	for _, m := range p.Team {
		if m.User.ID == assigneeID {
			ref := m.User
			return &ref, true
		}
	}

	return nil, false
}

func (h *TasksHandler) List(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	filter := task.ListFilter{
		Project:    queryFilter(ctx, "project"),
		Status:     queryFilter(ctx, "status"),
		Priority:   queryFilter(ctx, "priority"),
		AssignedTo: queryFilter(ctx, "assignedTo"),
		Search:     queryFilter(ctx, "search"),
		Overdue:    ctx.Query("overdue") == "true",
	}

	if raw := ctx.Query("dueDate"); raw != "" {
		due, err := time.Parse("2006-01-02", raw)

		if err != nil {
			RespondBadRequest(ctx, "dueDate must be formatted as YYYY-MM-DD", nil)
			return
		}

		filter.DueDate = &due
	}

	list, err := h.tasks.ListForUser(cctx, userID, filter)

	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	RespondOK(ctx, "", gin.H{
		"tasks": list,
		"count": len(list),
	})
}

func (h *TasksHandler) Create(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	var req task.CreateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	p, err := h.projects.GetByID(cctx, req.Project)

	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			RespondNotFound(ctx, "Project not found")
			return
		}

		RespondInternal(ctx, "Could not create task")
		return
	}

	role := authz.Resolve(u.ID, p)

	if !role.CanModify() {
		RespondForbidden(ctx, "Access denied to this project")
		return
	}

	assignee, ok := assigneeRef(p, req.AssignedTo)

	if !ok {
		RespondBadRequest(ctx, "Assigned user must be a project team member", nil)
		return
	}

	status := req.Status

	if status == "" {
		status = task.StatusTodo
	}

	order, err := h.tasks.NextOrder(cctx, p.ID, status)

	if err != nil {
		RespondInternal(ctx, "Could not create task")
		return
	}

	t := task.NewFromCreateRequest(req, u.Ref(), order)
	t.Project = task.ProjectRef{ID: p.ID, Name: p.Name}
	t.AssignedTo = assignee

	err = h.tasks.Create(cctx, t)

	if err != nil {
		RespondInternal(ctx, "Could not create task")
		return
	}

	h.invalidate(cctx, t)

	RespondCreated(ctx, "Task created successfully", gin.H{"task": t})
}

func (h *TasksHandler) Get(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	t, _, _, ok := h.loadWithAccess(ctx, cctx)

	if !ok {
		return
	}

	RespondOK(ctx, "", gin.H{"task": t})
}

func (h *TasksHandler) Update(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	t, p, role, ok := h.loadWithAccess(ctx, cctx)

	if !ok {
		return
	}

	if !role.CanModify() {
		RespondForbidden(ctx, "Access denied to this task")
		return
	}

	var req task.UpdateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	assignee, valid := assigneeRef(p, req.AssignedTo)

	if !valid {
		RespondBadRequest(ctx, "Assigned user must be a project team member", nil)
		return
	}

	t.Title = req.Title
	t.Description = req.Description
	t.AssignedTo = assignee
	t.EstimatedHours = req.EstimatedHours
	t.DueDate = req.DueDate

	if req.Priority != "" {
		t.Priority = req.Priority
	}

	if req.Tags != nil {
		t.Tags = req.Tags
	}

	if req.Status != "" {
		t.ApplyStatus(req.Status)
	}

	updated, err := h.tasks.Update(cctx, t)

	if err != nil {
		RespondInternal(ctx, "Could not update task")
		return
	}

	h.invalidate(cctx, updated)

	RespondOK(ctx, "Task updated successfully", gin.H{"task": updated})
}

func (h *TasksHandler) Delete(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	t, _, role, ok := h.loadWithAccess(ctx, cctx)

	if !ok {
		return
	}

	if !role.CanModify() {
		RespondForbidden(ctx, "Access denied to this task")
		return
	}

	err := h.tasks.Delete(cctx, t.ID)

	if err != nil {
		RespondInternal(ctx, "Could not delete task")
		return
	}

	h.invalidate(cctx, t)

	RespondOK(ctx, "Task deleted successfully", nil)
}

// UpdateStatus is the drag-and-drop move: status plus an optional position
// in the target column.
func (h *TasksHandler) UpdateStatus(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	t, _, role, ok := h.loadWithAccess(ctx, cctx)

	if !ok {
		return
	}

	if !role.CanModify() {
		RespondForbidden(ctx, "Access denied to this task")
		return
	}

	var req task.UpdateStatusRequest

	if !BindJSON(ctx, &req) {
		return
	}

	t.ApplyStatus(req.Status)
	t.Order = req.Order

	updated, err := h.tasks.Update(cctx, t)

	if err != nil {
		RespondInternal(ctx, "Could not update task status")
		return
	}

	h.invalidate(cctx, updated)

	RespondOK(ctx, "Task status updated successfully", gin.H{"task": updated})
}

func (h *TasksHandler) AddComment(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	t, _, role, ok := h.loadWithAccess(ctx, cctx)

	if !ok {
		return
	}

	if !role.CanModify() {
		RespondForbidden(ctx, "Access denied to this task")
		return
	}

	var req task.AddCommentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	comment := task.Comment{
		ID:        uuid.NewString(),
		User:      u.Ref(),
		Text:      req.Text,
		CreatedAt: time.Now().UTC(),
	}

	err := h.tasks.AddComment(cctx, t.ID, comment)

	if err != nil {
		RespondInternal(ctx, "Could not add comment")
		return
	}

	updated, err := h.tasks.GetByID(cctx, t.ID)

	if err != nil {
		RespondInternal(ctx, "Could not add comment")
		return
	}

	RespondCreated(ctx, "Comment added successfully", gin.H{"task": updated})
}

func (h *TasksHandler) LogTime(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	t, _, role, ok := h.loadWithAccess(ctx, cctx)

	if !ok {
		return
	}

	if !role.CanModify() {
		RespondForbidden(ctx, "Access denied to this task")
		return
	}

	var req task.LogTimeRequest

	if !BindJSON(ctx, &req) {
		return
	}

	err := h.tasks.LogTime(cctx, t.ID, req.Hours)

	if err != nil {
		RespondInternal(ctx, "Could not log time")
		return
	}

	updated, err := h.tasks.GetByID(cctx, t.ID)

	if err != nil {
		RespondInternal(ctx, "Could not log time")
		return
	}

	h.invalidate(cctx, updated)

	RespondOK(ctx, "Time logged successfully", gin.H{"task": updated})
}
