package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/models"
	"github.com/autotab/api/internal/registry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	store         registry.Store
	sessions      *middleware.Sessions
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store registry.Store, sessions *middleware.Sessions, secureCookies bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{store: store, sessions: sessions, secureCookies: secureCookies, logger: logger}
}

// RegisterRequest is the request body for registration
type RegisterRequest struct {
	Username string `json:"username" form:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// AuthResponse is the response for auth endpoints
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register creates a new user account
// @Summary Register a user
// @Tags auth
// @Accept json
// @Produce json
// @Param body body RegisterRequest true "Credentials"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} middleware.APIError
// @Failure 409 {object} middleware.APIError
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		middleware.InternalError(c, "internal server error")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		Role:         models.RoleUser,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, registry.ErrUsernameTaken) {
			middleware.Conflict(c, "username already exists")
			return
		}
		h.logger.Error("failed to create user", zap.Error(err))
		middleware.InternalError(c, "internal server error")
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()))

	h.startSession(c, http.StatusCreated, user)
}

// Login authenticates a user
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} middleware.APIError
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	user, err := h.store.UserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			h.logger.Error("failed to load user", zap.Error(err))
			middleware.InternalError(c, "internal server error")
			return
		}
		middleware.Unauthorized(c, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		middleware.Unauthorized(c, "invalid credentials")
		return
	}

	h.startSession(c, http.StatusOK, user)
}

// Logout revokes the current session
// @Summary Log out
// @Tags auth
// @Security Bearer
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		middleware.Unauthorized(c, "unauthorized")
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), claims); err != nil {
		h.logger.Error("failed to revoke session", zap.Error(err))
		middleware.InternalError(c, "internal server error")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.Status(http.StatusNoContent)
}

// GetCurrentUser returns the current authenticated user
// @Summary Current user
// @Tags user
// @Security Bearer
// @Produce json
// @Success 200 {object} models.User
// @Router /user/me [get]
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		middleware.Unauthorized(c, "unauthorized")
		return
	}

	user, err := h.store.UserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			middleware.NotFound(c, "user not found")
			return
		}
		h.logger.Error("failed to load user", zap.Error(err))
		middleware.InternalError(c, "internal server error")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) startSession(c *gin.Context, status int, user *models.User) {
	token, claims, err := h.sessions.Issue(user)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		middleware.InternalError(c, "internal server error")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.sessions.TTL().Seconds()), "/", "", h.secureCookies, true)
	c.JSON(status, AuthResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	})
}
