package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskflowhq/taskflow/internal/cache"
	"github.com/taskflowhq/taskflow/internal/domain/project"
	"github.com/taskflowhq/taskflow/internal/domain/task"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/http/handlers"
	"github.com/taskflowhq/taskflow/internal/http/middlewares"
)

type stubTasks struct {
	tasks     map[string]task.Task
	nextOrder int
	deleted   []string
}

func (s *stubTasks) NextOrder(_ context.Context, _, _ string) (int, error) {
	return s.nextOrder, nil
}

func (s *stubTasks) Create(_ context.Context, t task.Task) error {
	s.tasks[t.ID] = t
	return nil
}

func (s *stubTasks) GetByID(_ context.Context, id string) (task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (s *stubTasks) ListForUser(_ context.Context, _ string, _ task.ListFilter) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (s *stubTasks) Update(_ context.Context, t task.Task) (task.Task, error) {
	s.tasks[t.ID] = t
	return t, nil
}

func (s *stubTasks) Delete(_ context.Context, id string) error {
	delete(s.tasks, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubTasks) AddComment(_ context.Context, taskID string, c task.Comment) error {
	t := s.tasks[taskID]
	t.Comments = append(t.Comments, c)
	s.tasks[taskID] = t
	return nil
}

func (s *stubTasks) LogTime(_ context.Context, taskID string, hours float64) error {
	t := s.tasks[taskID]
	t.ActualHours += hours
	s.tasks[taskID] = t
	return nil
}

func newTasksRig(t *testing.T) (*gin.Engine, *stubProjects, *stubTasks) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &stubUsers{users: map[string]user.User{
		"owner-a":  {ID: "owner-a", Name: "A", IsActive: true},
		"user-b":   {ID: "user-b", Name: "B", IsActive: true},
		"member-c": {ID: "member-c", Name: "C", IsActive: true},
	}}
	projects := &stubProjects{projects: map[string]project.Project{}}
	tasks := &stubTasks{tasks: map[string]task.Task{}}

	authMW := middlewares.NewAuthMiddleware(stubVerifier{}, users)
	h := handlers.NewTasksHandler(tasks, projects, cache.NewMemory(time.Minute))

	r := gin.New()
	g := r.Group("/api/tasks", authMW.RequireAuth())
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.PUT("/:id/status", h.UpdateStatus)
	g.POST("/:id/comments", h.AddComment)
	g.PUT("/:id/time", h.LogTime)

	return r, projects, tasks
}

const projectUUID = "6b1a86f1-8f2e-4f0e-9f21-1f6a0f8f2e4f"

func seedTeamProject(projects *stubProjects) {
	p := project.Project{
		ID:     projectUUID,
		Name:   "Website Redesign",
		Owner:  user.Ref{ID: "owner-a", Name: "A"},
		Status: project.StatusActive,
	}
	p.UpsertMember(user.Ref{ID: "member-c", Name: "C"}, project.RoleMember)
	projects.projects[projectUUID] = p
}

func TestCreateTask_MemberGetsNextOrder(t *testing.T) {
	r, projects, tasks := newTasksRig(t)

	seedTeamProject(projects)
	tasks.nextOrder = 4

	body := `{"title":"Build nav bar","project":"` + projectUUID + `","assignedTo":"member-c"}`
	w := doAs(t, r, "member-c", http.MethodPost, "/api/tasks", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp envelope
	_ = json.Unmarshal(w.Body.Bytes(), &resp)

	var created task.Task
	_ = json.Unmarshal(resp.Data["task"], &created)

	if created.Order != 4 {
		t.Fatalf("expected order 4, got %d", created.Order)
	}
	if created.Status != task.StatusTodo {
		t.Fatalf("expected default status todo, got %q", created.Status)
	}
	if created.AssignedTo == nil || created.AssignedTo.ID != "member-c" {
		t.Fatalf("expected assignee member-c, got %+v", created.AssignedTo)
	}
}

func TestCreateTask_NonMemberIsForbidden(t *testing.T) {
	r, projects, _ := newTasksRig(t)

	seedTeamProject(projects)

	body := `{"title":"Sneaky task","project":"` + projectUUID + `"}`
	w := doAs(t, r, "user-b", http.MethodPost, "/api/tasks", body)

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusForbidden, w.Body.String())
	}
}

func TestCreateTask_AssigneeMustBelongToProject(t *testing.T) {
	r, projects, _ := newTasksRig(t)

	seedTeamProject(projects)

	body := `{"title":"Build nav bar","project":"` + projectUUID + `","assignedTo":"` + "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" + `"}`
	w := doAs(t, r, "owner-a", http.MethodPost, "/api/tasks", body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

// A task whose parent project is gone fails closed for everyone.
func TestGetTask_OrphanFailsClosed(t *testing.T) {
	r, _, tasks := newTasksRig(t)

	tasks.tasks["t1"] = task.Task{
		ID:      "t1",
		Title:   "Orphaned",
		Project: task.ProjectRef{ID: "deleted-project"},
	}

	w := doAs(t, r, "owner-a", http.MethodGet, "/api/tasks/t1", "")

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusForbidden, w.Body.String())
	}
}

func TestGetTask_UnknownIs404(t *testing.T) {
	r, _, _ := newTasksRig(t)

	w := doAs(t, r, "owner-a", http.MethodGet, "/api/tasks/nope", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateStatus_DoneSetsCompletionMarkers(t *testing.T) {
	r, projects, tasks := newTasksRig(t)

	seedTeamProject(projects)
	tasks.tasks["t1"] = task.Task{
		ID:      "t1",
		Title:   "Build nav bar",
		Status:  task.StatusInProgress,
		Project: task.ProjectRef{ID: projectUUID},
	}

	w := doAs(t, r, "member-c", http.MethodPut, "/api/tasks/t1/status", `{"status":"done","order":2}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	got := tasks.tasks["t1"]
	if !got.IsCompleted || got.CompletedAt == nil {
		t.Fatalf("expected completion markers set, got %+v", got)
	}
	if got.Order != 2 {
		t.Fatalf("expected order 2, got %d", got.Order)
	}

	// moving it back out of done clears the markers
	w = doAs(t, r, "member-c", http.MethodPut, "/api/tasks/t1/status", `{"status":"todo"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	got = tasks.tasks["t1"]
	if got.IsCompleted || got.CompletedAt != nil {
		t.Fatalf("expected completion markers cleared, got %+v", got)
	}
}

func TestAddComment_ViewerIsForbidden(t *testing.T) {
	r, projects, tasks := newTasksRig(t)

	seedTeamProject(projects)

	p := projects.projects[projectUUID]
	p.IsPublic = true
	projects.projects[projectUUID] = p

	tasks.tasks["t1"] = task.Task{
		ID:      "t1",
		Title:   "Build nav bar",
		Project: task.ProjectRef{ID: projectUUID},
	}

	// public viewer can read
	w := doAs(t, r, "user-b", http.MethodGet, "/api/tasks/t1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("read: got status %d, body=%s", w.Code, w.Body.String())
	}

	// but not comment
	w = doAs(t, r, "user-b", http.MethodPost, "/api/tasks/t1/comments", `{"text":"drive-by comment"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("comment: got status %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAddComment_AppendsWithAuthor(t *testing.T) {
	r, projects, tasks := newTasksRig(t)

	seedTeamProject(projects)
	tasks.tasks["t1"] = task.Task{
		ID:      "t1",
		Title:   "Build nav bar",
		Project: task.ProjectRef{ID: projectUUID},
	}

	w := doAs(t, r, "member-c", http.MethodPost, "/api/tasks/t1/comments", `{"text":"looks good"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	got := tasks.tasks["t1"]
	if len(got.Comments) != 1 {
		t.Fatalf("expected one comment, got %d", len(got.Comments))
	}
	if got.Comments[0].User.ID != "member-c" {
		t.Fatalf("expected comment author member-c, got %q", got.Comments[0].User.ID)
	}
	if got.Comments[0].ID == "" {
		t.Fatalf("expected a generated comment id")
	}
}

func TestLogTime_Accumulates(t *testing.T) {
	r, projects, tasks := newTasksRig(t)

	seedTeamProject(projects)
	tasks.tasks["t1"] = task.Task{
		ID:          "t1",
		Title:       "Build nav bar",
		Project:     task.ProjectRef{ID: projectUUID},
		ActualHours: 1.5,
	}

	w := doAs(t, r, "owner-a", http.MethodPut, "/api/tasks/t1/time", `{"hours":2}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if got := tasks.tasks["t1"].ActualHours; got != 3.5 {
		t.Fatalf("expected 3.5 actual hours, got %v", got)
	}
}

func TestDeleteTask_MemberAllowed(t *testing.T) {
	r, projects, tasks := newTasksRig(t)

	seedTeamProject(projects)
	tasks.tasks["t1"] = task.Task{
		ID:      "t1",
		Title:   "Build nav bar",
		Project: task.ProjectRef{ID: projectUUID},
	}

	w := doAs(t, r, "member-c", http.MethodDelete, "/api/tasks/t1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if len(tasks.deleted) != 1 || tasks.deleted[0] != "t1" {
		t.Fatalf("expected t1 deleted, got %v", tasks.deleted)
	}
}
