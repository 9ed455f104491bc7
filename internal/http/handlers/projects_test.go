package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskflowhq/taskflow/internal/auth"
	"github.com/taskflowhq/taskflow/internal/cache"
	"github.com/taskflowhq/taskflow/internal/domain/project"
	"github.com/taskflowhq/taskflow/internal/domain/task"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/http/handlers"
	"github.com/taskflowhq/taskflow/internal/http/middlewares"
)

// stubVerifier treats the bearer token itself as the user id, so tests can
// act as any user without minting real tokens.
type stubVerifier struct{}

func (stubVerifier) VerifyAccessToken(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{UserID: token}, nil
}

type stubUsers struct {
	users map[string]user.User
}

func (s *stubUsers) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type stubProjects struct {
	projects map[string]project.Project
	updated  []project.Project
	members  map[string]string
}

func (s *stubProjects) Create(_ context.Context, p project.Project) error {
	s.projects[p.ID] = p
	return nil
}

func (s *stubProjects) GetByID(_ context.Context, id string) (project.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (s *stubProjects) ListForUser(_ context.Context, userID string, _ project.ListFilter) ([]project.Project, error) {
	var out []project.Project
	for _, p := range s.projects {
		if p.IsOwner(userID) {
			out = append(out, p)
			continue
		}
		if _, ok := p.MemberRole(userID); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProjects) Update(_ context.Context, p project.Project) (project.Project, error) {
	s.projects[p.ID] = p
	s.updated = append(s.updated, p)
	return p, nil
}

func (s *stubProjects) Delete(_ context.Context, id string) error {
	delete(s.projects, id)
	return nil
}

func (s *stubProjects) UpsertMember(_ context.Context, projectID, userID, role string) error {
	if s.members == nil {
		s.members = map[string]string{}
	}
	s.members[projectID+"/"+userID] = role

	p := s.projects[projectID]
	p.UpsertMember(user.Ref{ID: userID}, role)
	s.projects[projectID] = p
	return nil
}

func (s *stubProjects) RemoveMember(_ context.Context, projectID, userID string) (bool, error) {
	p := s.projects[projectID]
	removed := p.RemoveMember(userID)
	s.projects[projectID] = p
	return removed, nil
}

type stubStats struct {
	calls int
}

func (s *stubStats) ProjectStats(_ context.Context, _ string) (task.Stats, error) {
	s.calls++
	return task.Stats{TotalTasks: 3, CompletedTasks: 1}, nil
}

func newProjectsRig(t *testing.T) (*gin.Engine, *stubUsers, *stubProjects, *stubStats) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &stubUsers{users: map[string]user.User{
		"owner-a":  {ID: "owner-a", Name: "A", IsActive: true},
		"user-b":   {ID: "user-b", Name: "B", IsActive: true},
		"member-c": {ID: "member-c", Name: "C", IsActive: true},
	}}
	projects := &stubProjects{projects: map[string]project.Project{}}
	stats := &stubStats{}

	authMW := middlewares.NewAuthMiddleware(stubVerifier{}, users)
	access := middlewares.NewProjectAccess(projects)
	h := handlers.NewProjectsHandler(projects, users, stats, cache.NewMemory(time.Minute))

	r := gin.New()
	g := r.Group("/api/projects", authMW.RequireAuth())
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", access.RequireAccess(), h.Get)
	g.GET("/:id/stats", access.RequireAccess(), h.Stats)
	g.PUT("/:id", access.RequireOwner(), h.Update)
	g.DELETE("/:id", access.RequireOwner(), h.Delete)
	g.POST("/:id/team", access.RequireOwner(), h.AddTeamMember)
	g.DELETE("/:id/team/:userId", access.RequireOwner(), h.RemoveTeamMember)

	return r, users, projects, stats
}

func doAs(t *testing.T, r *gin.Engine, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Authorization", "Bearer "+userID)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedProject(projects *stubProjects, id, ownerID string, isPublic bool) {
	projects.projects[id] = project.Project{
		ID:       id,
		Name:     "Website Redesign",
		Owner:    user.Ref{ID: ownerID, Name: "A"},
		Status:   project.StatusActive,
		IsPublic: isPublic,
	}
}

// Non-member access to a private project is denied; flipping isPublic grants
// read-only viewer access to the same caller.
func TestGetProject_PublicFlagGrantsViewerAccess(t *testing.T) {
	r, _, projects, _ := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", false)

	w := doAs(t, r, "user-b", http.MethodGet, "/api/projects/p1", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("private project: got status %d, want %d", w.Code, http.StatusForbidden)
	}

	seedProject(projects, "p1", "owner-a", true)

	w = doAs(t, r, "user-b", http.MethodGet, "/api/projects/p1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("public project: got status %d, body=%s", w.Code, w.Body.String())
	}
}

func TestGetProject_OwnerAndTeamMemberAllowed(t *testing.T) {
	r, _, projects, _ := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", false)

	p := projects.projects["p1"]
	p.UpsertMember(user.Ref{ID: "member-c", Name: "C"}, project.RoleLead)
	projects.projects["p1"] = p

	for _, caller := range []string{"owner-a", "member-c"} {
		w := doAs(t, r, caller, http.MethodGet, "/api/projects/p1", "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: got status %d, body=%s", caller, w.Code, w.Body.String())
		}
	}
}

func TestGetProject_UnknownProjectIs404(t *testing.T) {
	r, _, _, _ := newProjectsRig(t)

	w := doAs(t, r, "user-b", http.MethodGet, "/api/projects/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

// Public visibility grants reads only; mutation stays owner-gated.
func TestUpdateProject_ViewerCannotMutate(t *testing.T) {
	r, _, projects, _ := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", true)

	body := `{"name":"New Name!","description":"A longer description here","startDate":"2026-01-01T00:00:00Z","endDate":"2026-02-01T00:00:00Z"}`
	w := doAs(t, r, "user-b", http.MethodPut, "/api/projects/p1", body)

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusForbidden, w.Body.String())
	}

	var resp envelope
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Message != "Project owner access required" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestCreateProject_RejectsInvertedDates(t *testing.T) {
	r, _, _, _ := newProjectsRig(t)

	body := `{"name":"Backwards","description":"Dates are the wrong way around","startDate":"2026-06-01T00:00:00Z","endDate":"2026-01-01T00:00:00Z"}`
	w := doAs(t, r, "owner-a", http.MethodPost, "/api/projects", body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestAddTeamMember_UpsertsRole(t *testing.T) {
	r, _, projects, _ := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", false)

	w := doAs(t, r, "owner-a", http.MethodPost, "/api/projects/p1/team", `{"userId":"member-c","role":"member"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("first add: got status %d, body=%s", w.Code, w.Body.String())
	}

	// re-adding updates the role rather than erroring or duplicating
	w = doAs(t, r, "owner-a", http.MethodPost, "/api/projects/p1/team", `{"userId":"member-c","role":"lead"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("second add: got status %d, body=%s", w.Code, w.Body.String())
	}

	p := projects.projects["p1"]
	if len(p.Team) != 1 {
		t.Fatalf("expected one team entry, got %d", len(p.Team))
	}
	if role, _ := p.MemberRole("member-c"); role != project.RoleLead {
		t.Fatalf("expected role lead after upsert, got %q", role)
	}
}

func TestAddTeamMember_UnknownUserIs404(t *testing.T) {
	r, _, projects, _ := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", false)

	w := doAs(t, r, "owner-a", http.MethodPost, "/api/projects/p1/team", `{"userId":"ghost"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRemoveTeamMember_NotAMemberIs400(t *testing.T) {
	r, _, projects, _ := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", false)

	w := doAs(t, r, "owner-a", http.MethodDelete, "/api/projects/p1/team/user-b", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestProjectStats_SecondReadServedFromCache(t *testing.T) {
	r, _, projects, stats := newProjectsRig(t)

	seedProject(projects, "p1", "owner-a", false)

	for i := 0; i < 2; i++ {
		w := doAs(t, r, "owner-a", http.MethodGet, "/api/projects/p1/stats", "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, body=%s", i, w.Code, w.Body.String())
		}
	}

	if stats.calls != 1 {
		t.Fatalf("expected one stats query, got %d", stats.calls)
	}
}

func TestRequireAuth_MissingBearerIsUnauthorized(t *testing.T) {
	r, _, _, _ := newProjectsRig(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuth_InactiveUserIsUnauthorized(t *testing.T) {
	r, users, projects, _ := newProjectsRig(t)

	users.users["ghost-d"] = user.User{ID: "ghost-d", IsActive: false}
	seedProject(projects, "p1", "ghost-d", false)

	w := doAs(t, r, "ghost-d", http.MethodGet, "/api/projects/p1", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
