package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskflowhq/taskflow/internal/auth"
	"github.com/taskflowhq/taskflow/internal/config"
	"github.com/taskflowhq/taskflow/internal/domain/user"
	"github.com/taskflowhq/taskflow/internal/observability"
	"github.com/taskflowhq/taskflow/internal/repo/postgres"
	"github.com/taskflowhq/taskflow/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash, role string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	TouchLastLogin(ctx context.Context, id string) error
}

type RefreshTokenStore interface {
	Record(ctx context.Context, row postgres.RefreshTokenRow) error
	Rotate(ctx context.Context, userID, oldTokenHash string, next postgres.RefreshTokenRow) error
	Revoke(ctx context.Context, userID, tokenHash string) error
	PruneExpired(ctx context.Context, userID string) error
}

type AuthHandler struct {
	users  UserStore
	tokens RefreshTokenStore
	jwt    *auth.Manager
	prom   *observability.Prom
}

func NewAuthHandler(users UserStore, tokens RefreshTokenStore, jwtManager *auth.Manager, prom *observability.Prom) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		jwt:    jwtManager,
		prom:   prom,
	}
}

func (h *AuthHandler) countAuth(op, result string) {
	if h.prom != nil {
		h.prom.AuthResults.WithLabelValues(op, result).Inc()
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// authPayload is the body shape shared by register, login and refresh.
type authPayload struct {
	User         user.User `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

// issueSession mints a token pair and records the refresh half server-side.
func (h *AuthHandler) issueSession(ctx context.Context, u user.User) (authPayload, error) {
	pair, err := h.jwt.GenerateTokenPair(u.ID)

	if err != nil {
		return authPayload{}, err
	}

	err = h.tokens.Record(ctx, postgres.RefreshTokenRow{
		ID:        pair.RefreshJTI,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: time.Now().UTC(),
	})

	if err != nil {
		return authPayload{}, err
	}

	return authPayload{
		User:         u,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, req.Name, req.Email, hash, user.RoleUser)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			h.countAuth("register", "rejected")
			RespondConflict(ctx, "User with this email already exists")
			return
		}

		h.countAuth("register", "error")
		RespondInternal(ctx, "Could not create user")
		return
	}

	payload, err := h.issueSession(cctx, u)

	if err != nil {
		h.countAuth("register", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.countAuth("register", "ok")
	RespondCreated(ctx, "User registered successfully", payload)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		h.countAuth("login", "rejected")
		RespondUnauthorized(ctx, "Invalid credentials")
		return
	}

	err = security.CheckPassword(u.PasswordHash, req.Password)

	if err != nil {
		h.countAuth("login", "rejected")
		RespondUnauthorized(ctx, "Invalid credentials")
		return
	}

	if !u.IsActive {
		h.countAuth("login", "rejected")
		RespondUnauthorized(ctx, "Account is deactivated")
		return
	}

	// housekeeping; neither failure should block the login
	_ = h.tokens.PruneExpired(cctx, u.ID)
	_ = h.users.TouchLastLogin(cctx, u.ID)

	now := time.Now().UTC()
	u.LastLogin = &now

	payload, err := h.issueSession(cctx, u)

	if err != nil {
		h.countAuth("login", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.countAuth("login", "ok")
	RespondOK(ctx, "Login successful", payload)
}

// Refresh rotates the presented refresh token: verify the signature, then
// atomically swap the stored entry for a new one. A token that was logged out
// or evicted from the list is rejected even though its signature still
// verifies.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)

	if err != nil {
		h.countAuth("refresh", "rejected")
		RespondUnauthorized(ctx, "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	pair, err := h.jwt.GenerateTokenPair(claims.UserID)

	if err != nil {
		h.countAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	err = h.tokens.Rotate(cctx, claims.UserID, h.jwt.HashRefreshToken(req.RefreshToken), postgres.RefreshTokenRow{
		ID:        pair.RefreshJTI,
		UserID:    claims.UserID,
		TokenHash: h.jwt.HashRefreshToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: time.Now().UTC(),
	})

	if err != nil {
		if errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			h.countAuth("refresh", "rejected")
			RespondUnauthorized(ctx, "Invalid refresh token")
			return
		}

		h.countAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	h.countAuth("refresh", "ok")
	RespondOK(ctx, "Token refreshed successfully", gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout revokes the presented refresh token. Revocation is idempotent, so a
// token that is already gone still logs out cleanly.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)

	if err != nil {
		h.countAuth("logout", "rejected")
		RespondUnauthorized(ctx, "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	err = h.tokens.Revoke(cctx, claims.UserID, h.jwt.HashRefreshToken(req.RefreshToken))

	if err != nil {
		h.countAuth("logout", "error")
		RespondInternal(ctx, "Could not log out")
		return
	}

	h.countAuth("logout", "ok")
	RespondOK(ctx, "Logged out successfully", nil)
}
