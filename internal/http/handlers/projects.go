package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskflowhq/taskflow/internal/cache"
	"github.com/taskflowhq/taskflow/internal/config"
	"github.com/taskflowhq/taskflow/internal/domain/project"
	"github.com/taskflowhq/taskflow/internal/domain/task"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/http/middlewares"
	"github.com/taskflowhq/taskflow/internal/utils"
)

type ProjectStore interface {
	Create(ctx context.Context, p project.Project) error
	GetByID(ctx context.Context, id string) (project.Project, error)
	ListForUser(ctx context.Context, userID string, filter project.ListFilter) ([]project.Project, error)
	Update(ctx context.Context, p project.Project) (project.Project, error)
	Delete(ctx context.Context, id string) error
	UpsertMember(ctx context.Context, projectID, userID, role string) error
	RemoveMember(ctx context.Context, projectID, userID string) (bool, error)
}

type MemberLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type ProjectStatsStore interface {
	ProjectStats(ctx context.Context, projectID string) (task.Stats, error)
}

type ProjectsHandler struct {
	projects ProjectStore
	users    MemberLookup
	stats    ProjectStatsStore
	cache    cache.Store
}

func NewProjectsHandler(projects ProjectStore, users MemberLookup, stats ProjectStatsStore, cacheStore cache.Store) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		users:    users,
		stats:    stats,
		cache:    cacheStore,
	}
}

// queryFilter returns a *string for a non-empty query param.
func queryFilter(ctx *gin.Context, name string) *string {
	v := ctx.Query(name)

	if v == "" {
		return nil
	}

	return &v
}

func (h *ProjectsHandler) List(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	filter := project.ListFilter{
		Status:   queryFilter(ctx, "status"),
		Priority: queryFilter(ctx, "priority"),
		Search:   queryFilter(ctx, "search"),
	}

	list, err := h.projects.ListForUser(cctx, userID, filter)

	if err != nil {
		RespondInternal(ctx, "Could not list projects")
		return
	}

	RespondOK(ctx, "", gin.H{
		"projects": list,
		"count":    len(list),
	})
}

func (h *ProjectsHandler) Create(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	var req project.CreateProjectRequest

	if !BindJSON(ctx, &req) {
		return
	}

	err := project.ValidateDates(req.StartDate, req.EndDate)

	if err != nil {
		RespondBadRequest(ctx, "End date must be after start date", nil)
		return
	}

	p := project.NewFromCreateRequest(req, u.Ref())

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	err = h.projects.Create(cctx, p)

	if err != nil {
		RespondInternal(ctx, "Could not create project")
		return
	}

	RespondCreated(ctx, "Project created successfully", gin.H{"project": p})
}

func (h *ProjectsHandler) Get(ctx *gin.Context) {
	p, ok := middlewares.ProjectFromContext(ctx)

	if !ok {
		RespondInternal(ctx, "Missing project context")
		return
	}

	RespondOK(ctx, "", gin.H{"project": p})
}

func (h *ProjectsHandler) Update(ctx *gin.Context) {
	p, ok := middlewares.ProjectFromContext(ctx)

	if !ok {
		RespondInternal(ctx, "Missing project context")
		return
	}

	var req project.UpdateProjectRequest

	if !BindJSON(ctx, &req) {
		return
	}

	err := project.ValidateDates(req.StartDate, req.EndDate)

	if err != nil {
		RespondBadRequest(ctx, "End date must be after start date", nil)
		return
	}

	p.Name = req.Name
	p.Description = req.Description
	p.StartDate = req.StartDate
	p.EndDate = req.EndDate

	if req.Status != "" {
		p.Status = req.Status
	}

	if req.Priority != "" {
		p.Priority = req.Priority
	}

	if req.Tags != nil {
		p.Tags = req.Tags
	}

	if req.Progress != nil {
		p.Progress = *req.Progress
	}

	if req.Budget != nil {
		p.Budget = *req.Budget
	}

	if req.IsPublic != nil {
		p.IsPublic = *req.IsPublic
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	updated, err := h.projects.Update(cctx, p)

	if err != nil {
		RespondInternal(ctx, "Could not update project")
		return
	}

	RespondOK(ctx, "Project updated successfully", gin.H{"project": updated})
}

// Delete removes the project record only. Its tasks are left in place and
// become inaccessible through the normal project-scoped routes.
func (h *ProjectsHandler) Delete(ctx *gin.Context) {
	p, ok := middlewares.ProjectFromContext(ctx)

	if !ok {
		RespondInternal(ctx, "Missing project context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	err := h.projects.Delete(cctx, p.ID)

	if err != nil {
		RespondInternal(ctx, "Could not delete project")
		return
	}

	h.cache.Delete(cctx, utils.BuildProjectStatsCacheKey(p.ID))

	RespondOK(ctx, "Project deleted successfully", nil)
}

// AddTeamMember upserts: adding a user who is already on the team updates
// their role instead of erroring or duplicating the entry.
func (h *ProjectsHandler) AddTeamMember(ctx *gin.Context) {
	p, ok := middlewares.ProjectFromContext(ctx)

	if !ok {
		RespondInternal(ctx, "Missing project context")
		return
	}

	var req project.AddTeamMemberRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role := req.Role

	if role == "" {
		role = project.RoleMember
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	member, err := h.users.GetByID(cctx, req.UserID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not add team member")
		return
	}

	if p.IsOwner(member.ID) {
		RespondBadRequest(ctx, "Project owner cannot be added as a team member", nil)
		return
	}

	err = h.projects.UpsertMember(cctx, p.ID, member.ID, role)

	if err != nil {
		RespondInternal(ctx, "Could not add team member")
		return
	}

	updated, err := h.projects.GetByID(cctx, p.ID)

	if err != nil {
		RespondInternal(ctx, "Could not add team member")
		return
	}

	RespondOK(ctx, "Team member added successfully", gin.H{"project": updated})
}

func (h *ProjectsHandler) RemoveTeamMember(ctx *gin.Context) {
	p, ok := middlewares.ProjectFromContext(ctx)

	if !ok {
		RespondInternal(ctx, "Missing project context")
		return
	}

	memberID := ctx.Param("userId")

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	removed, err := h.projects.RemoveMember(cctx, p.ID, memberID)

	if err != nil {
		RespondInternal(ctx, "Could not remove team member")
		return
	}

	if !removed {
		RespondBadRequest(ctx, "User is not a team member", nil)
		return
	}

	updated, err := h.projects.GetByID(cctx, p.ID)

	if err != nil {
		RespondInternal(ctx, "Could not remove team member")
		return
	}

	RespondOK(ctx, "Team member removed successfully", gin.H{"project": updated})
}

func (h *ProjectsHandler) Stats(ctx *gin.Context) {
	p, ok := middlewares.ProjectFromContext(ctx)

	if !ok {
		RespondInternal(ctx, "Missing project context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	key := utils.BuildProjectStatsCacheKey(p.ID)

	var cached task.Stats

	if cache.GetJSON(cctx, h.cache, key, &cached) {
		RespondOK(ctx, "", gin.H{"stats": cached})
		return
	}

	stats, err := h.stats.ProjectStats(cctx, p.ID)

	if err != nil {
		RespondInternal(ctx, "Could not load project stats")
		return
	}

	cache.SetJSON(cctx, h.cache, key, stats)

	RespondOK(ctx, "", gin.H{"stats": stats})
}
