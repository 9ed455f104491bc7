package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskflowhq/taskflow/internal/cache"
	"github.com/taskflowhq/taskflow/internal/config"
	"github.com/taskflowhq/taskflow/internal/domain/task"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/http/middlewares"
	"github.com/taskflowhq/taskflow/internal/repo/postgres"
	"github.com/taskflowhq/taskflow/internal/security"
	"github.com/taskflowhq/taskflow/internal/utils"
)

type UserAdminStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context, filter user.ListFilter) ([]user.User, error)
	Update(ctx context.Context, id, name, email, role string, isActive bool) (user.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

type UserTaskStore interface {
	ListAssignedTo(ctx context.Context, userID string, filter task.ListFilter) ([]task.Task, error)
	CountAssignedTo(ctx context.Context, userID string) (int, error)
	Dashboard(ctx context.Context, userID string) (task.Dashboard, error)
}

type OwnershipCounter interface {
	CountOwnedBy(ctx context.Context, userID string) (int, error)
	CountForUser(ctx context.Context, userID string) (int, error)
}

type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

type UsersHandler struct {
	users    UserAdminStore
	tasks    UserTaskStore
	projects OwnershipCounter
	sessions SessionRevoker
	cache    cache.Store
}

func NewUsersHandler(users UserAdminStore, tasks UserTaskStore, projects OwnershipCounter, sessions SessionRevoker, cacheStore cache.Store) *UsersHandler {
	return &UsersHandler{
		users:    users,
		tasks:    tasks,
		projects: projects,
		sessions: sessions,
		cache:    cacheStore,
	}
}

func (h *UsersHandler) Profile(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	RespondOK(ctx, "", gin.H{"user": u})
}

func (h *UsersHandler) UpdateProfile(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	name := u.Name

	if req.Name != "" {
		name = req.Name
	}

	email := u.Email

	if req.Email != "" {
		email = req.Email
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	updated, err := h.users.Update(cctx, u.ID, name, email, u.Role, u.IsActive)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			RespondConflict(ctx, "Email is already in use")
			return
		}

		RespondInternal(ctx, "Could not update profile")
		return
	}

	RespondOK(ctx, "Profile updated successfully", gin.H{"user": updated})
}

// ChangePassword re-checks the current password and revokes every stored
// refresh token, so other devices are logged out along with the change.
func (h *UsersHandler) ChangePassword(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	var req user.ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	err := security.CheckPassword(u.PasswordHash, req.CurrentPassword)

	if err != nil {
		RespondUnauthorized(ctx, "Current password is incorrect")
		return
	}

	hash, err := security.HashPassword(req.NewPassword)

	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	err = h.users.UpdatePassword(cctx, u.ID, hash)

	if err != nil {
		RespondInternal(ctx, "Could not change password")
		return
	}

	_ = h.sessions.RevokeAllForUser(cctx, u.ID)

	RespondOK(ctx, "Password changed successfully", nil)
}

func (h *UsersHandler) MyTasks(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	filter := task.ListFilter{
		Status:   queryFilter(ctx, "status"),
		Priority: queryFilter(ctx, "priority"),
		Overdue:  ctx.Query("overdue") == "true",
	}

	list, err := h.tasks.ListAssignedTo(cctx, u.ID, filter)

	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	RespondOK(ctx, "", gin.H{
		"tasks": list,
		"count": len(list),
	})
}

func (h *UsersHandler) Dashboard(ctx *gin.Context) {
	u, _ := middlewares.UserFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	key := utils.BuildDashboardCacheKey(u.ID)

	var cached task.Dashboard

	if cache.GetJSON(cctx, h.cache, key, &cached) {
		RespondOK(ctx, "", gin.H{"dashboard": cached})
		return
	}

	d, err := h.tasks.Dashboard(cctx, u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	d.Projects, err = h.projects.CountForUser(cctx, u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	cache.SetJSON(cctx, h.cache, key, d)

	RespondOK(ctx, "", gin.H{"dashboard": d})
}

// admin endpoints

func (h *UsersHandler) AdminList(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	filter := user.ListFilter{
		Search: queryFilter(ctx, "search"),
		Role:   queryFilter(ctx, "role"),
	}

	if raw := ctx.Query("isActive"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	list, err := h.users.List(cctx, filter)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	RespondOK(ctx, "", gin.H{
		"users": list,
		"count": len(list),
	})
}

func (h *UsersHandler) AdminGet(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, err := h.users.GetByID(cctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load user")
		return
	}

	RespondOK(ctx, "", gin.H{"user": u})
}

func (h *UsersHandler) AdminUpdate(ctx *gin.Context) {
	var req user.AdminUpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, err := h.users.GetByID(cctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not update user")
		return
	}

	name := u.Name

	if req.Name != "" {
		name = req.Name
	}

	email := u.Email

	if req.Email != "" {
		email = req.Email
	}

	role := u.Role

	if req.Role != "" {
		role = req.Role
	}

	isActive := u.IsActive

	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	updated, err := h.users.Update(cctx, u.ID, name, email, role, isActive)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			RespondConflict(ctx, "Email is already in use")
			return
		}

		RespondInternal(ctx, "Could not update user")
		return
	}

	// deactivation kills the user's sessions immediately
	if !isActive && u.IsActive {
		_ = h.sessions.RevokeAllForUser(cctx, u.ID)
	}

	RespondOK(ctx, "User updated successfully", gin.H{"user": updated})
}

// AdminDelete hard-deletes an account, guarded so referenced users survive:
// owners of projects and assignees of tasks cannot be removed.
func (h *UsersHandler) AdminDelete(ctx *gin.Context) {
	actor, _ := middlewares.UserFromContext(ctx)

	targetID := ctx.Param("id")

	if targetID == actor.ID {
		RespondBadRequest(ctx, "Cannot delete your own account", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	owned, err := h.projects.CountOwnedBy(cctx, targetID)

	if err != nil {
		RespondInternal(ctx, "Could not delete user")
		return
	}

	if owned > 0 {
		RespondBadRequest(ctx, "Cannot delete user who owns projects", nil)
		return
	}

	assigned, err := h.tasks.CountAssignedTo(cctx, targetID)

	if err != nil {
		RespondInternal(ctx, "Could not delete user")
		return
	}

	if assigned > 0 {
		RespondBadRequest(ctx, "Cannot delete user who has assigned tasks", nil)
		return
	}

	err = h.users.Delete(cctx, targetID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not delete user")
		return
	}

	// refresh tokens go with the row via ON DELETE CASCADE

	RespondOK(ctx, "User deleted successfully", nil)
}
