package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskflowhq/taskflow/internal/auth"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/http/handlers"
	"github.com/taskflowhq/taskflow/internal/repo/postgres"
	"github.com/taskflowhq/taskflow/internal/security"
)

type fakeUserStore struct {
	byEmail map[string]user.User
	touched []string
}

func (f *fakeUserStore) Create(_ context.Context, name, email, passwordHash, role string) (user.User, error) {
	email = strings.ToLower(email)

	if _, ok := f.byEmail[email]; ok {
		return user.User{}, postgres.ErrEmailAlreadyUsed
	}

	u := user.User{
		ID:           "u-" + email,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
	}
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (user.User, error) {
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) TouchLastLogin(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeTokenStore struct {
	recorded  []postgres.RefreshTokenRow
	rotateErr error
	revoked   []string
}

func (f *fakeTokenStore) Record(_ context.Context, row postgres.RefreshTokenRow) error {
	f.recorded = append(f.recorded, row)
	return nil
}

func (f *fakeTokenStore) Rotate(_ context.Context, _, _ string, next postgres.RefreshTokenRow) error {
	if f.rotateErr != nil {
		return f.rotateErr
	}
	f.recorded = append(f.recorded, next)
	return nil
}

func (f *fakeTokenStore) Revoke(_ context.Context, _, tokenHash string) error {
	f.revoked = append(f.revoked, tokenHash)
	return nil
}

func (f *fakeTokenStore) PruneExpired(_ context.Context, _ string) error {
	return nil
}

func newAuthRig(t *testing.T) (*gin.Engine, *fakeUserStore, *fakeTokenStore, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &fakeUserStore{byEmail: map[string]user.User{}}
	tokens := &fakeTokenStore{}
	jwt := auth.NewManager("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)

	h := handlers.NewAuthHandler(users, tokens, jwt, nil)

	r := gin.New()
	r.POST("/api/auth/register", h.Register)
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/refresh", h.Refresh)
	r.POST("/api/auth/logout", h.Logout)

	return r, users, tokens, jwt
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_IssuesSessionAndRecordsRefreshToken(t *testing.T) {
	r, _, tokens, jwt := newAuthRig(t)

	w := postJSON(t, r, "/api/auth/register", `{"name":"Ada","email":"Ada@Example.com","password":"hunter22"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var accessToken, refreshToken string
	_ = json.Unmarshal(resp.Data["accessToken"], &accessToken)
	_ = json.Unmarshal(resp.Data["refreshToken"], &refreshToken)

	if accessToken == "" || refreshToken == "" {
		t.Fatalf("expected both tokens in response, got %s", w.Body.String())
	}

	if _, err := jwt.VerifyAccessToken(accessToken); err != nil {
		t.Fatalf("issued access token should verify: %v", err)
	}

	if len(tokens.recorded) != 1 {
		t.Fatalf("expected one recorded refresh token, got %d", len(tokens.recorded))
	}
	if tokens.recorded[0].TokenHash != jwt.HashRefreshToken(refreshToken) {
		t.Fatalf("stored hash does not match issued refresh token")
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	r, _, _, _ := newAuthRig(t)

	postJSON(t, r, "/api/auth/register", `{"name":"Ada","email":"ada@example.com","password":"hunter22"}`)
	w := postJSON(t, r, "/api/auth/register", `{"name":"Ada Again","email":"ADA@example.com","password":"hunter22"}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestLogin_WrongPasswordIsUnauthorized(t *testing.T) {
	r, users, _, _ := newAuthRig(t)

	hash, err := security.HashPassword("right-password")
	if err != nil {
		t.Fatal(err)
	}
	users.byEmail["ada@example.com"] = user.User{
		ID:           "u-ada",
		Email:        "ada@example.com",
		PasswordHash: hash,
		IsActive:     true,
	}

	w := postJSON(t, r, "/api/auth/login", `{"email":"ada@example.com","password":"wrong-password"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}

	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Invalid credentials" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestLogin_DeactivatedAccountIsRejected(t *testing.T) {
	r, users, _, _ := newAuthRig(t)

	hash, _ := security.HashPassword("hunter22")
	users.byEmail["ada@example.com"] = user.User{
		ID:           "u-ada",
		Email:        "ada@example.com",
		PasswordHash: hash,
		IsActive:     false,
	}

	w := postJSON(t, r, "/api/auth/login", `{"email":"ada@example.com","password":"hunter22"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogin_TouchesLastLogin(t *testing.T) {
	r, users, _, _ := newAuthRig(t)

	hash, _ := security.HashPassword("hunter22")
	users.byEmail["ada@example.com"] = user.User{
		ID:           "u-ada",
		Email:        "ada@example.com",
		PasswordHash: hash,
		IsActive:     true,
	}

	w := postJSON(t, r, "/api/auth/login", `{"email":"ada@example.com","password":"hunter22"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if len(users.touched) != 1 || users.touched[0] != "u-ada" {
		t.Fatalf("expected last login touch for u-ada, got %v", users.touched)
	}
}

// A refresh token whose signature still verifies but which is no longer in
// the stored list (logged out, evicted, already rotated) must be rejected.
func TestRefresh_RevokedTokenIsRejected(t *testing.T) {
	r, _, tokens, jwt := newAuthRig(t)

	raw, _, _, err := jwt.GenerateRefreshToken("u-ada")
	if err != nil {
		t.Fatal(err)
	}

	tokens.rotateErr = postgres.ErrRefreshTokenNotFound

	w := postJSON(t, r, "/api/auth/refresh", `{"refreshToken":"`+raw+`"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}

func TestRefresh_RotatesStoredToken(t *testing.T) {
	r, _, tokens, jwt := newAuthRig(t)

	raw, _, _, err := jwt.GenerateRefreshToken("u-ada")
	if err != nil {
		t.Fatal(err)
	}

	w := postJSON(t, r, "/api/auth/refresh", `{"refreshToken":"`+raw+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var refreshToken string
	_ = json.Unmarshal(resp.Data["refreshToken"], &refreshToken)

	if refreshToken == "" || refreshToken == raw {
		t.Fatalf("expected a fresh refresh token")
	}

	if len(tokens.recorded) != 1 {
		t.Fatalf("expected the rotated token to be recorded, got %d rows", len(tokens.recorded))
	}
	if tokens.recorded[0].TokenHash != jwt.HashRefreshToken(refreshToken) {
		t.Fatalf("recorded hash does not match the new refresh token")
	}
}

// An access token presented to the refresh endpoint must not pass, even
// though it is signed by the same service.
func TestRefresh_AccessTokenIsRejected(t *testing.T) {
	r, _, _, jwt := newAuthRig(t)

	accessToken, err := jwt.GenerateAccessToken("u-ada")
	if err != nil {
		t.Fatal(err)
	}

	w := postJSON(t, r, "/api/auth/refresh", `{"refreshToken":"`+accessToken+`"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogout_RevokesPresentedToken(t *testing.T) {
	r, _, tokens, jwt := newAuthRig(t)

	raw, _, _, err := jwt.GenerateRefreshToken("u-ada")
	if err != nil {
		t.Fatal(err)
	}

	w := postJSON(t, r, "/api/auth/logout", `{"refreshToken":"`+raw+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if len(tokens.revoked) != 1 || tokens.revoked[0] != jwt.HashRefreshToken(raw) {
		t.Fatalf("expected the presented token's hash to be revoked, got %v", tokens.revoked)
	}
}
