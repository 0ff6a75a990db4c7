package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/security"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, u user.User) (user.User, error)
}

type TokenIssuer interface {
	Issue(subjectID string) (string, error)
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	tokens     TokenIssuer
	timeout    time.Duration
}

func NewAuthHandler(users UserReader, userWriter UserWriter, tokens TokenIssuer, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		tokens:     tokens,
		timeout:    timeout,
	}
}

type AuthResponse struct {
	Message     string        `json:"message,omitempty"`
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	User        user.AuthView `json:"user"`
}

const tokenTypeBearer = "bearer"

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSONWithFields(ctx, &req, "name", "email", "password", "role") {
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			RespondBadRequest(ctx, "Password is too long", nil)
			return
		}
		RespondInternal(ctx, "Could not create user", err)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	u, err := h.userWriter.Create(cctx, user.NewFromRegisterRequest(req, hash))

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email already registered", nil)
			return
		}
		RespondInternal(ctx, "Could not create user", err)
		return
	}

	token, err := h.tokens.Issue(u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not issue token", err)
		return
	}

	ctx.JSON(http.StatusCreated, AuthResponse{
		Message:     "User registered successfully",
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		User:        u.AuthView(),
	})
}

// Login answers every credential failure with the same 401 body. The role
// must match the stored role.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSONWithFields(ctx, &req, "email", "password", "role") {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			RespondInternal(ctx, "Could not log in", err)
			return
		}
		security.BurnCompare(req.Password)
		respondInvalidCredentials(ctx)
		return
	}

	if security.CheckPassword(u.PasswordHash, req.Password) != nil || u.Role != req.Role {
		respondInvalidCredentials(ctx)
		return
	}

	token, err := h.tokens.Issue(u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not issue token", err)
		return
	}

	ctx.JSON(http.StatusOK, AuthResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		User:        u.AuthView(),
	})
}

func respondInvalidCredentials(ctx *gin.Context) {
	RespondUnauthorized(ctx, "invalid_credentials", "Invalid credentials")
}
